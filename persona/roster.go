package persona

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎭 Roster 角色名单
// =============================================================================

//go:embed default_roster.yaml
var defaultRosterYAML []byte

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Persona 是名单中的一个发言角色
type Persona struct {
	Key    string           `yaml:"key" json:"key"`
	Name   string           `yaml:"name" json:"name"`
	Color  string           `yaml:"color" json:"color"`
	Prompt string           `yaml:"prompt" json:"-"`
	Stats  []StatDefinition `yaml:"stats,omitempty" json:"stats,omitempty"`
}

// Roster 是启动时加载的静态角色与场景配置。
// 核心编排逻辑与加载哪份 Roster 无关。
type Roster struct {
	Title      string    `yaml:"title" json:"title"`
	Setting    string    `yaml:"setting" json:"-"`
	Guidelines string    `yaml:"guidelines" json:"-"`
	Scenarios  []string  `yaml:"scenarios" json:"-"`
	Events     []string  `yaml:"events" json:"-"`
	Personas   []Persona `yaml:"personas" json:"personas"`
}

// Default 返回内置的默认名单
func Default() (*Roster, error) {
	return Parse(defaultRosterYAML)
}

// MustDefault 与 Default 相同，失败时 panic
func MustDefault() *Roster {
	r, err := Default()
	if err != nil {
		panic(fmt.Sprintf("embedded roster is invalid: %v", err))
	}
	return r
}

// Load 从 YAML 文件加载名单；path 为空时返回内置名单
func Load(path string) (*Roster, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster file %s: %w", path, err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("roster file %s: %w", path, err)
	}
	return r, nil
}

// Parse 解析并校验 YAML 名单
func Parse(data []byte) (*Roster, error) {
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate 检查名单的完整性，返回全部问题
func (r *Roster) Validate() error {
	var errs []string

	if len(r.Personas) == 0 {
		errs = append(errs, "at least one persona is required")
	}
	if len(r.Scenarios) == 0 {
		errs = append(errs, "at least one scenario is required")
	}
	if len(r.Events) == 0 {
		errs = append(errs, "at least one event is required")
	}

	seen := make(map[string]struct{}, len(r.Personas))
	for i, p := range r.Personas {
		switch {
		case strings.TrimSpace(p.Key) == "":
			errs = append(errs, fmt.Sprintf("personas[%d]: key is required", i))
		case strings.ContainsAny(p.Key, " :/"):
			errs = append(errs, fmt.Sprintf("personas[%d]: key %q must not contain spaces, ':' or '/'", i, p.Key))
		}
		if _, dup := seen[p.Key]; dup {
			errs = append(errs, fmt.Sprintf("personas[%d]: duplicate key %q", i, p.Key))
		}
		seen[p.Key] = struct{}{}

		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, fmt.Sprintf("personas[%d]: name is required", i))
		}
		if strings.TrimSpace(p.Prompt) == "" {
			errs = append(errs, fmt.Sprintf("personas[%d]: prompt is required", i))
		}
		if p.Color != "" && !colorPattern.MatchString(p.Color) {
			errs = append(errs, fmt.Sprintf("personas[%d]: color %q must look like #rrggbb", i, p.Color))
		}
		for j, s := range p.Stats {
			if err := s.Validate(); err != nil {
				errs = append(errs, fmt.Sprintf("personas[%d].stats[%d]: %v", i, j, err))
			}
		}
	}

	if len(errs) > 0 {
		return errors.New("invalid roster: " + strings.Join(errs, "; "))
	}
	return nil
}

// Len 返回名单人数
func (r *Roster) Len() int { return len(r.Personas) }

// At 返回第 i 位发言者；越界索引按名单长度取模
func (r *Roster) At(i int) Persona {
	return r.Personas[r.Normalize(i)]
}

// Normalize 将任意索引规整到 [0, Len())
func (r *Roster) Normalize(i int) int {
	n := len(r.Personas)
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// Lookup 按 key 查找角色
func (r *Roster) Lookup(key string) (Persona, bool) {
	for _, p := range r.Personas {
		if p.Key == key {
			return p, true
		}
	}
	return Persona{}, false
}

// Keys 按发言顺序返回全部 key
func (r *Roster) Keys() []string {
	keys := make([]string, len(r.Personas))
	for i, p := range r.Personas {
		keys[i] = p.Key
	}
	return keys
}

// Names 按发言顺序返回全部显示名
func (r *Roster) Names() []string {
	names := make([]string, len(r.Personas))
	for i, p := range r.Personas {
		names[i] = p.Name
	}
	return names
}
