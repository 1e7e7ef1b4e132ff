// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库打开与连接池管理，支持健康检查
与事务重试，是 store 包关系型后端的底座。

# 概述

Open 按驱动（postgres / mysql / sqlite）选择 GORM 方言；sqlite 使用
纯 Go 的 glebarez 驱动并默认开启 busy_timeout 与 WAL。PoolManager
封装 GORM 与 database/sql 的连接池配置，统一管理连接生命周期，
后台健康检查定时探活，异常时通过 zap 日志输出诊断信息。

# 核心类型

  - PoolManager：连接池管理器，提供 DB()、Ping()、Stats()、Close()。
  - PoolConfig：连接池配置；PoolConfigFrom 从 config.DatabaseConfig 派生，
    sqlite 固定为单连接。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - 事务管理：WithTransaction 提供单次事务执行，
    WithTransactionRetry 支持指数退避重试（死锁、序列化失败、SQLITE_BUSY）。
*/
package database
