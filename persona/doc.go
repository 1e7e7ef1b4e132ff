// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package persona 提供轮流发言的角色名单（Roster）及其周边纯函数。

名单、场景池与话题池都是启动时加载的静态配置：默认名单以 YAML 形式内嵌，
也可以通过 conversation.roster_file 指向另一份文件。编排核心只依赖
Roster 的顺序与长度，不关心具体内容。

主要能力：

  - Load / Parse / Validate：读取并校验 YAML 名单
  - PickSituation：使用注入的随机源均匀抽取场景与话题
  - BuildPrompt：组装人设、场景、外部上下文与最近对话窗口
  - StatDefinition.Evaluate：由消息计数计算展示用的派生数值
*/
package persona
