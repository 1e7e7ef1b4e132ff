// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 roundtable 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 可控时钟: FakeClock，驱动冷却、租约与归档间隔等时间相关逻辑
  - 异步断言: AssertEventuallyTrue / AssertEventuallyEqual / WaitFor
  - 数据工具: MustJSON / MustParseJSON

# 子包

  - testutil/mocks: MockProvider（LLM Provider），支持脚本化响应、
    阻塞与错误注入
  - testutil/fixtures: 最小角色名单、消息序列与 ChatResponse 样例

# 使用示例

	clock := testutil.NewFakeClock(time.UnixMilli(1_000_000))
	provider := mocks.NewMockProvider().WithResponses("hello", "again")
*/
package testutil
