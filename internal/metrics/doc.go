// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、LLM、回合调度、实时推送、缓存与存储六个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - LLM 指标：请求总数、请求耗时、Token 用量与调用成本，
    按 provider/model 分组。Collector 满足 llm.MetricsCollector。
  - 回合指标：按结果统计的回合次数与耗时、按触发方式统计的归档次数、
    过期租约回收次数。Collector 满足 conversation.Metrics。
  - 实时推送指标：当前订阅者数量与慢订阅者丢弃数。
  - 缓存指标：归档读缓存的命中与未命中计数，按 cache_type 分组。
  - 存储指标：按 backend/operation 分组的操作耗时与失败次数，
    由 store.Instrument 装饰器上报。
*/
package metrics
