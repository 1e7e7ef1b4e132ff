// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 roundtable HTTP API 的请求处理器实现。

# 概述

handlers 包实现对话服务全部 HTTP 端点的请求处理逻辑：读取与重置对话、
推进回合、归档查询与手动快照、角色统计、外部上下文条目、管理员硬清空、
WebSocket 实时推送以及健康检查。所有 Handler 均遵循标准 net/http 接口，
路由在 cmd/roundtable 中以 Go 1.22 的 "METHOD /path" 模式注册，
错误的请求方法由 ServeMux 直接返回 405。

# 核心类型

  - ConversationHandler：对话、归档、统计与上下文端点
  - ConversationService：handler 依赖的服务接口，*conversation.Service 满足
  - FeedHandler：WebSocket 推送，每个成功回合一条 JSON 文本帧
  - HealthHandler：服务健康检查（/health, /healthz, /ready, /readyz, /version）
  - Response：统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo：结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter：包装 http.ResponseWriter 以捕获状态码与字节数
  - PingCheck：基于 ping 函数的可插拔健康检查

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteServiceError / WriteJSON
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx），非 types.Error 一律 500 且不泄露原因
  - 推送连接不受服务器 WriteTimeout 约束，定时 ping，慢订阅者丢弃消息而不阻塞回合
*/
package handlers
