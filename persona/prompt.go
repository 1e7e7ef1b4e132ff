package persona

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/BaSui01/roundtable/types"
)

// =============================================================================
// 🎲 场景选择
// =============================================================================

// Rand 是场景选择所需的随机源，*rand.Rand 满足该接口
type Rand interface {
	Intn(n int) int
}

// Situation 是一轮生成使用的场景与话题提示，不会被持久化
type Situation struct {
	Scenario string `json:"scenario"`
	Event    string `json:"event"`
}

// PickSituation 从名单的场景池与话题池中各均匀抽取一项
func PickSituation(rng Rand, r *Roster) Situation {
	return Situation{
		Scenario: r.Scenarios[rng.Intn(len(r.Scenarios))],
		Event:    r.Events[rng.Intn(len(r.Events))],
	}
}

// =============================================================================
// 📝 提示词组装
// =============================================================================

// StartMarker 在没有历史消息时替代最近对话窗口
const StartMarker = "[This is the start of the conversation]"

var templateVarRegexp = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.-]*)\s*\}\}`)

// PromptInput 是组装一轮提示词所需的全部输入
type PromptInput struct {
	Roster    *Roster
	Speaker   Persona
	Situation Situation
	// Recent 为按时间顺序排列的上下文窗口
	Recent []types.Message
	Notes  []types.ContextEntry
	Tasks  []types.ContextEntry
}

// BuildPrompt 渲染发送给模型的单条用户提示词
func BuildPrompt(in PromptInput) string {
	vars := map[string]string{
		"name":     in.Speaker.Name,
		"key":      in.Speaker.Key,
		"names":    strings.Join(in.Roster.Names(), ", "),
		"count":    strconv.Itoa(in.Roster.Len()),
		"scenario": in.Situation.Scenario,
		"event":    in.Situation.Event,
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(in.Speaker.Prompt))

	if setting := strings.TrimSpace(replaceTemplateVars(in.Roster.Setting, vars)); setting != "" {
		sb.WriteString("\n\nCURRENT SITUATION: ")
		sb.WriteString(setting)
	}
	if in.Situation.Event != "" {
		sb.WriteString("\n\nA topic that might come up naturally: ")
		sb.WriteString(in.Situation.Event)
	}

	if len(in.Notes) > 0 {
		sb.WriteString("\n\nCUSTOM CONTEXT:")
		for _, n := range in.Notes {
			sb.WriteString("\n- ")
			sb.WriteString(strings.TrimSpace(n.Content))
		}
	}
	if len(in.Tasks) > 0 {
		sb.WriteString("\n\nTASKS:")
		for _, t := range in.Tasks {
			fmt.Fprintf(&sb, "\n- [%s] ", taskStatus(t.Status))
			if t.Title != "" {
				sb.WriteString(t.Title)
				sb.WriteString(": ")
			}
			sb.WriteString(strings.TrimSpace(t.Content))
		}
	}

	sb.WriteString("\n\nRECENT CONVERSATION:\n")
	sb.WriteString(RenderWindow(in.Recent))

	if guidelines := strings.TrimSpace(replaceTemplateVars(in.Roster.Guidelines, vars)); guidelines != "" {
		sb.WriteString("\n\n")
		sb.WriteString(guidelines)
	}
	return sb.String()
}

// RenderWindow 将消息渲染为 "SPEAKER: content" 行；空窗口返回 StartMarker
func RenderWindow(msgs []types.Message) string {
	if len(msgs) == 0 {
		return StartMarker
	}
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = m.Speaker + ": " + m.Content
	}
	return strings.Join(lines, "\n")
}

func taskStatus(s types.TaskStatus) string {
	if s == "" {
		return string(types.TaskStatusOpen)
	}
	return string(s)
}

// replaceTemplateVars 替换 {{var}} 形式的模板变量，未知变量保留原样
func replaceTemplateVars(text string, vars map[string]string) string {
	if text == "" || len(vars) == 0 {
		return text
	}
	return templateVarRegexp.ReplaceAllStringFunc(text, func(match string) string {
		submatch := templateVarRegexp.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}
		if val, ok := vars[submatch[1]]; ok {
			return val
		}
		return match
	})
}
