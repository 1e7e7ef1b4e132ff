// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package conversation 实现永续、轮流发言的多角色对话编排核心。

一次"推进回合"由三个组件协作完成：

  - Scheduler.TryBeginTurn：在单个存储事务中判定冷却、检查生成租约，
    并为当前发言者获取租约（过期租约会被回收并记录告警）
  - Pipeline.RunTurn：组装提示词，调用一次 llm.Provider，提交新消息、
    推进发言者索引、裁剪保留窗口并释放租约
  - Archiver：定时归档（回合后异步、尽力而为）、重置前归档、手动快照、
    归档查询

StatsTracker 负责每个角色的计数器与派生展示值。Service 将上述组件
组合成对外暴露的操作集合，Autopilot 可在进程内按固定间隔推进回合。

所有协调都发生在 store.Store 的 Update 事务中，Service 本身不持有
对话状态，可以在多个进程中同时运行。
*/
package conversation
