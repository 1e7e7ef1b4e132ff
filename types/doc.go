// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 roundtable 服务的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 store、conversation、
api 等上层模块提供统一的数据契约，以避免循环依赖。

# 核心类型

  - ConversationState：单例对话文档（消息窗口、发言者索引、生成租约、时间戳）
  - Message：不可变的对话消息
  - ArchiveRecord：追加写入的对话快照；ArchiveSummary 为其列表视图
  - PersonaStats：角色级计数器
  - ContextEntry：外部注入的上下文（note / task）
  - Error / ErrorCode：结构化错误体系，含 HTTP 状态码与 Retryable 标记

# 约定

所有时间戳均为 Unix 毫秒，0 表示"从未发生"。
*/
package types
