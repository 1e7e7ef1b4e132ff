// Package factory 按名称创建 llm.Provider，内置 openrouter / openai / deepseek 预设。
package factory
