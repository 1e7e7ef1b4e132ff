// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的 JSON 缓存，以及归档记录的读穿缓存装饰器。

# 概述

Manager 封装 go-redis 客户端，提供带前缀的 Get/Set/GetJSON/SetJSON/
Delete/DeletePrefix。客户端可以由 Manager 独占，也可以与 redis 存储
后端共享。

ArchiveStore 包装任意 store.Store：归档记录一经写入不可变，按 id
缓存；Wipe 成功后按前缀清空。Redis 故障时降级为直接读存储。

# 核心类型

  - Manager：缓存管理器。
  - ArchiveStore：归档读穿缓存装饰器。
  - HitRecorder：命中/未命中上报接口，*metrics.Collector 满足该接口。
*/
package cache
