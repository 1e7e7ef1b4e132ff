// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 roundtable 服务端程序入口。

# 概述

cmd/roundtable 启动对话服务：HTTP API、WebSocket 实时推送、
独立端口的 Prometheus 指标，以及可选的自动推进循环。配置按
dotenv → 默认值 → YAML → ROUNDTABLE_* 环境变量的顺序加载。

# 核心类型

  - App：组装存储、归档缓存、角色名单、模型提供方与对话服务
  - Middleware：HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、wipe、migrate、health、version
  - 中间件链：Recovery、RequestID、OTelTracing、MetricsMiddleware、
    SecurityHeaders、RequestLogger、CORS、RateLimiter、APIKeyAuth
  - 管理路由（重置、硬清空、新增上下文）在配置密钥后要求 AdminJWT
  - 运行期由 errgroup 统一编排 HTTP、Metrics、Autopilot 与推送指标同步
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
