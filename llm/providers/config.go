package providers

import "time"

// BaseProviderConfig 所有 Provider 共享的基础配置字段。
type BaseProviderConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// OpenRouterConfig OpenRouter Provider 配置。
// Referer 与 Title 会作为 HTTP-Referer / X-Title 头发送，用于 OpenRouter 的应用归属统计。
type OpenRouterConfig struct {
	BaseProviderConfig `yaml:",inline"`
	Referer            string `json:"referer,omitempty" yaml:"referer,omitempty"`
	Title              string `json:"title,omitempty" yaml:"title,omitempty"`
}
