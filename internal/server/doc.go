// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动、
阻塞式运行与优雅关闭。

# 概述

本包通过 Manager 封装 net/http.Server，统一管理监听、服务、
关闭与错误传播流程。roundtable 进程同时运行 API 服务与独立的
指标服务，两者各持有一个 Manager，由 errgroup 统一编排。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道，
    提供 Start/Run/Shutdown 生命周期方法。
  - Config：监听地址、读写超时、空闲超时、最大请求头大小与
    优雅关闭超时。ConfigFrom 从应用配置派生。

# 主要能力

  - Run 阻塞直到 ctx 结束或服务器异常退出，适合放入 errgroup。
  - RegisterOnShutdown 通知被劫持的 WebSocket 连接主动收尾。
  - Addr 在启动后返回实际绑定地址，便于使用 :0 端口测试。
*/
package server
