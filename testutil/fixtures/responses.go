// =============================================================================
// 📦 测试数据工厂 - 对话与 LLM 响应测试数据
// =============================================================================
package fixtures

import (
	"fmt"
	"time"

	"github.com/BaSui01/roundtable/llm"
	"github.com/BaSui01/roundtable/persona"
	"github.com/BaSui01/roundtable/types"
)

// =============================================================================
// 🎯 ChatResponse 工厂
// =============================================================================

// SimpleResponse 返回简单的文本响应
func SimpleResponse(content string) *llm.ChatResponse {
	return &llm.ChatResponse{
		ID:       "resp-001",
		Provider: "mock",
		Model:    "mock-model",
		Choices: []llm.ChatChoice{
			{
				Index:        0,
				FinishReason: "stop",
				Message: llm.Message{
					Role:    llm.RoleAssistant,
					Content: content,
				},
			},
		},
		Usage: llm.ChatUsage{
			PromptTokens:     10,
			CompletionTokens: 20,
			TotalTokens:      30,
		},
		CreatedAt: time.Now(),
	}
}

// EmptyResponse 返回没有任何选项的响应
func EmptyResponse() *llm.ChatResponse {
	return &llm.ChatResponse{ID: "resp-empty", Provider: "mock", Model: "mock-model"}
}

// =============================================================================
// 💬 对话数据工厂
// =============================================================================

// Messages 生成 n 条按时间递增的消息，从 startMs 开始每条间隔 stepMs
func Messages(n int, startMs, stepMs int64) []types.Message {
	out := make([]types.Message, n)
	for i := range out {
		key := fmt.Sprintf("p%d", i%3)
		out[i] = types.Message{
			ID:         fmt.Sprintf("msg_%d_fixture%02d", startMs+int64(i)*stepMs, i),
			SpeakerKey: key,
			Speaker:    fmt.Sprintf("P%d", i%3),
			Content:    fmt.Sprintf("message %d", i),
			Color:      "#ffffff",
			Timestamp:  startMs + int64(i)*stepMs,
		}
	}
	return out
}

// RosterYAML 是包含三位角色的最小名单
const RosterYAML = `
title: fixture
setting: "{{names}} are {{scenario}}."
guidelines: "Reply as {{name}}."
scenarios: ["waiting in a lobby", "walking a corridor"]
events: ["the weather", "lunch"]
personas:
  - key: p0
    name: P0
    color: "#ff0000"
    prompt: "You are P0."
    stats:
      - {name: level, kind: percent, base: 10, slope: 10, min: 0, max: 100}
  - key: p1
    name: P1
    color: "#00ff00"
    prompt: "You are P1."
    stats:
      - {name: jokes, kind: count, factor: 2}
  - key: p2
    name: P2
    color: "#0000ff"
    prompt: "You are P2."
`

// Roster 返回最小名单
func Roster() *persona.Roster {
	r, err := persona.Parse([]byte(RosterYAML))
	if err != nil {
		panic(err)
	}
	return r
}
