// Package openaicompat implements llm.Provider for any endpoint that speaks
// the OpenAI Chat Completions format.
//
// OpenRouter, OpenAI and DeepSeek presets are assembled in llm/factory; they
// differ only in base URL, endpoint path, fallback model and extra headers.
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName:  "openrouter",
//	    APIKey:        cfg.APIKey,
//	    BaseURL:       "https://openrouter.ai/api",
//	    FallbackModel: "anthropic/claude-sonnet-4",
//	    ExtraHeaders:  map[string]string{"X-Title": "Roundtable"},
//	}, logger)
package openaicompat
