// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 为 database 存储后端提供版本化 Schema 迁移，
支持 PostgreSQL 与 MySQL，基于 golang-migrate 实现。

# 概述

对话文档、归档记录、角色统计与上下文条目四张表的 DDL 以
embed.FS 内嵌在二进制中。SQLite 部署不走版本化迁移，由 GORM
AutoMigrate 在启动时建表。

# 核心类型

  - Migrator / DefaultMigrator：Up/Down/DownAll/Steps/Goto/Force/
    Version/Status/Info/Close 完整操作集。
  - Config：数据库类型、golang-migrate URL 与锁超时。
  - CLI：面向终端的格式化输出，Run 按命令行参数分派动作，
    由 `roundtable migrate` 子命令调用。
*/
package migration
