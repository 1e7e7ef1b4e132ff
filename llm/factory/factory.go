// Package factory creates llm.Provider instances by name.
// It keeps the mapping from provider names to endpoint presets out of the
// llm package so that llm stays free of concrete provider imports.
package factory

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/config"
	"github.com/BaSui01/roundtable/llm"
	"github.com/BaSui01/roundtable/llm/providers"
	"github.com/BaSui01/roundtable/llm/providers/openaicompat"
)

// ProviderConfig is the generic configuration accepted by the factory function.
// It uses a flat structure with an Extra map for provider-specific fields.
type ProviderConfig struct {
	APIKey  string         `json:"api_key" yaml:"api_key"`
	BaseURL string         `json:"base_url" yaml:"base_url"`
	Model   string         `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout time.Duration  `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Extra   map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

type preset struct {
	baseURL       string
	endpointPath  string
	fallbackModel string
}

var presets = map[string]preset{
	"openrouter": {baseURL: "https://openrouter.ai/api", endpointPath: "/v1/chat/completions", fallbackModel: "anthropic/claude-sonnet-4"},
	"openai":     {baseURL: "https://api.openai.com", endpointPath: "/v1/chat/completions", fallbackModel: "gpt-4o-mini"},
	"deepseek":   {baseURL: "https://api.deepseek.com", endpointPath: "/chat/completions", fallbackModel: "deepseek-chat"},
}

// NewProviderFromConfig creates a Provider instance based on the provider name
// and a generic ProviderConfig.
//
// Built-in names: openrouter, openai, deepseek. Any other name is treated as a
// generic OpenAI-compatible endpoint and requires base_url.
func NewProviderFromConfig(name string, cfg ProviderConfig, logger *zap.Logger) (llm.Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	oc := openaicompat.Config{
		ProviderName: name,
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		DefaultModel: cfg.Model,
		Timeout:      cfg.Timeout,
	}

	if p, ok := presets[name]; ok {
		if oc.BaseURL == "" {
			oc.BaseURL = p.baseURL
		}
		oc.EndpointPath = p.endpointPath
		oc.FallbackModel = p.fallbackModel
	} else {
		// 通用 OpenAI 兼容提供商：任意名称 + base_url 即可接入
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("unknown provider %q: built-in provider not found, and base_url is required for generic OpenAI-compatible provider", name)
		}
		logger.Info("creating generic OpenAI-compatible provider",
			zap.String("provider", name),
			zap.String("base_url", cfg.BaseURL))
	}

	if cfg.Extra != nil {
		if v, ok := cfg.Extra["endpoint_path"].(string); ok && v != "" {
			oc.EndpointPath = v
		}
		if v, ok := cfg.Extra["models_endpoint"].(string); ok && v != "" {
			oc.ModelsEndpoint = v
		}
	}

	if name == "openrouter" {
		or := providers.OpenRouterConfig{}
		if cfg.Extra != nil {
			or.Referer, _ = cfg.Extra["referer"].(string)
			or.Title, _ = cfg.Extra["title"].(string)
		}
		oc.ExtraHeaders = map[string]string{
			"HTTP-Referer": or.Referer,
			"X-Title":      or.Title,
		}
	}

	return openaicompat.New(oc, logger), nil
}

// FromConfig 根据应用配置创建 Provider
func FromConfig(cfg config.LLMConfig, logger *zap.Logger) (llm.Provider, error) {
	return NewProviderFromConfig(cfg.Provider, ProviderConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
		Extra: map[string]any{
			"referer": cfg.Referer,
			"title":   cfg.Title,
		},
	}, logger)
}

// SupportedProviders returns the list of built-in provider names.
// Any name not in this list will be treated as a generic OpenAI-compatible
// provider, requiring base_url in the configuration.
func SupportedProviders() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
