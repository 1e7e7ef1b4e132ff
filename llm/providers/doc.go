// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 提供 OpenAI 兼容聊天补全接口的公共适配层。
openaicompat 子包基于本包完成请求/响应转换与错误映射。

# 核心类型

  - BaseProviderConfig：共享的基础配置（APIKey、BaseURL、Model、Timeout）
  - OpenRouterConfig：OpenRouter 专属的 Referer / Title 归属头
  - OpenAICompat* 系列：OpenAI 兼容 API 的请求/响应结构体

# 核心函数

  - MapHTTPError：将 HTTP 状态码映射为语义化的 llm.Error（含 Retryable 标记）
  - ReadErrorMessage：解析错误响应体
  - ConvertMessagesToOpenAI / ToLLMChatResponse：格式转换
  - ChooseModel：按优先级选择模型（请求 > 默认 > 兜底）
*/
package providers
