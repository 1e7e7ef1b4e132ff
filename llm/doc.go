// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供文本补全服务的统一接入层。

# 概述

对话核心只需要一次"提交提示词，拿回文本"的调用。本包定义请求/响应模型、
[Provider] 接口与统一错误码，具体服务商由 providers/openaicompat 实现，
按名称创建由 factory 子包负责。

# 核心接口

  - [Provider]：Completion / HealthCheck / Name
  - [Error]：带 [ErrorCode]、HTTP 状态与可重试标记的上游错误

# 中间件

[Chain] 把 [Middleware] 按注册顺序包裹在 Provider 的 Completion 外层，
[Wrap] 返回套好链路的 Provider：

  - [RecoveryMiddleware]：panic 转为 [PanicError]
  - [LoggingMiddleware]：记录模型、耗时与 token 用量
  - [MetricsMiddleware]：上报到 [MetricsCollector]
  - [TimeoutMiddleware]：超时以 ErrUpstreamTimeout 返回

# 辅助函数

  - [FirstChoice] / [CompletionText]：取第一条候选，空文本视为 ErrEmptyCompletion
*/
package llm
