package persona

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalRoster = `
title: test
setting: "{{names}} are {{scenario}}"
guidelines: "Speak as {{name}}."
scenarios: [stuck]
events: [weather]
personas:
  - {key: a, name: A, color: "#000000", prompt: "You are A."}
  - {key: b, name: B, prompt: "You are B."}
`

func TestDefaultRoster(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	assert.Equal(t, 5, r.Len())
	assert.Equal(t, []string{"maren", "tobias", "priya", "lev", "odette"}, r.Keys())
	assert.NotEmpty(t, r.Scenarios)
	assert.NotEmpty(t, r.Events)
	for _, p := range r.Personas {
		assert.NotEmpty(t, p.Stats, p.Key)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalRoster), 0o600))

	r, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, r.Names())

	def, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5, def.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"empty", `title: x`, "at least one persona"},
		{"duplicate key", `
scenarios: [s]
events: [e]
personas:
  - {key: a, name: A, prompt: p}
  - {key: a, name: B, prompt: p}
`, "duplicate key"},
		{"bad color", `
scenarios: [s]
events: [e]
personas:
  - {key: a, name: A, prompt: p, color: green}
`, "#rrggbb"},
		{"bad stat", `
scenarios: [s]
events: [e]
personas:
  - key: a
    name: A
    prompt: p
    stats:
      - {name: x, kind: mystery}
`, "unknown kind"},
		{"malformed", `personas: [`, "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRoster_At(t *testing.T) {
	r, err := Parse([]byte(minimalRoster))
	require.NoError(t, err)

	assert.Equal(t, "a", r.At(0).Key)
	assert.Equal(t, "b", r.At(1).Key)
	assert.Equal(t, "a", r.At(2).Key)
	assert.Equal(t, "b", r.At(-1).Key)
	assert.Equal(t, 1, r.Normalize(7))

	p, ok := r.Lookup("b")
	assert.True(t, ok)
	assert.Equal(t, "B", p.Name)
	_, ok = r.Lookup("zz")
	assert.False(t, ok)
}
