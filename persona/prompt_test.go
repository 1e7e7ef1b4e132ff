package persona

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/roundtable/types"
)

type fixedRand []int

func (f *fixedRand) Intn(n int) int {
	v := (*f)[0] % n
	*f = (*f)[1:]
	return v
}

func TestPickSituation_Deterministic(t *testing.T) {
	r := MustDefault()

	a := PickSituation(rand.New(rand.NewSource(42)), r)
	b := PickSituation(rand.New(rand.NewSource(42)), r)
	assert.Equal(t, a, b)

	seq := fixedRand{2, 5}
	got := PickSituation(&seq, r)
	assert.Equal(t, r.Scenarios[2], got.Scenario)
	assert.Equal(t, r.Events[5], got.Event)
}

func TestPickSituation_AlwaysFromPools(t *testing.T) {
	r := MustDefault()
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Int64().Draw(t, "seed")
		s := PickSituation(rand.New(rand.NewSource(seed)), r)
		assert.Contains(t, r.Scenarios, s.Scenario)
		assert.Contains(t, r.Events, s.Event)
	})
}

func TestBuildPrompt(t *testing.T) {
	r, err := Parse([]byte(minimalRoster))
	require.NoError(t, err)

	prompt := BuildPrompt(PromptInput{
		Roster:    r,
		Speaker:   r.At(1),
		Situation: Situation{Scenario: "stuck", Event: "weather"},
		Recent: []types.Message{
			{Speaker: "A", Content: "hello"},
			{Speaker: "B", Content: "hi back"},
		},
		Notes: []types.ContextEntry{{Kind: types.ContextKindNote, Content: "the lift is broken"}},
		Tasks: []types.ContextEntry{{Kind: types.ContextKindTask, Title: "log", Content: "fill the log", Status: types.TaskStatusDone}},
	})

	assert.True(t, strings.HasPrefix(prompt, "You are B."))
	assert.Contains(t, prompt, "CURRENT SITUATION: A, B are stuck")
	assert.Contains(t, prompt, "A topic that might come up naturally: weather")
	assert.Contains(t, prompt, "CUSTOM CONTEXT:\n- the lift is broken")
	assert.Contains(t, prompt, "TASKS:\n- [done] log: fill the log")
	assert.Contains(t, prompt, "RECENT CONVERSATION:\nA: hello\nB: hi back")
	assert.True(t, strings.HasSuffix(prompt, "Speak as B."))
	assert.NotContains(t, prompt, StartMarker)
}

func TestBuildPrompt_StartMarker(t *testing.T) {
	r, err := Parse([]byte(minimalRoster))
	require.NoError(t, err)

	prompt := BuildPrompt(PromptInput{Roster: r, Speaker: r.At(0), Situation: Situation{Scenario: "stuck", Event: "weather"}})
	assert.Contains(t, prompt, "RECENT CONVERSATION:\n"+StartMarker)
	assert.NotContains(t, prompt, "CUSTOM CONTEXT")
	assert.NotContains(t, prompt, "TASKS")
}

func TestReplaceTemplateVars_UnknownKept(t *testing.T) {
	got := replaceTemplateVars("{{ name }} meets {{stranger}}", map[string]string{"name": "Ada"})
	assert.Equal(t, "Ada meets {{stranger}}", got)
}
