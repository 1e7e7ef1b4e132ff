package persona

import (
	"fmt"
	"math"
	"strings"
)

// StatKind 派生统计的计算方式
type StatKind string

const (
	// StatPercent: clamp(base + slope*count, min, max)，输出 "%.1f%%"
	StatPercent StatKind = "percent"
	// StatCount: floor(count * factor)
	StatCount StatKind = "count"
	// StatThreshold: count > threshold 时输出 above，否则 below
	StatThreshold StatKind = "threshold"
	// StatConstant: 固定标签
	StatConstant StatKind = "constant"
)

// StatDefinition 描述一个只读展示用的派生数值。
// 它是消息计数的纯函数，不会被持久化。
type StatDefinition struct {
	Name      string   `yaml:"name" json:"name"`
	Kind      StatKind `yaml:"kind" json:"kind"`
	Base      float64  `yaml:"base,omitempty" json:"base,omitempty"`
	Slope     float64  `yaml:"slope,omitempty" json:"slope,omitempty"`
	Min       float64  `yaml:"min,omitempty" json:"min,omitempty"`
	Max       float64  `yaml:"max,omitempty" json:"max,omitempty"`
	Factor    float64  `yaml:"factor,omitempty" json:"factor,omitempty"`
	Threshold int64    `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Above     string   `yaml:"above,omitempty" json:"above,omitempty"`
	Below     string   `yaml:"below,omitempty" json:"below,omitempty"`
	Value     string   `yaml:"value,omitempty" json:"value,omitempty"`
}

// Validate 检查定义是否可计算
func (d StatDefinition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("name is required")
	}
	switch d.Kind {
	case StatPercent:
		if d.Min > d.Max {
			return fmt.Errorf("%s: min %.2f exceeds max %.2f", d.Name, d.Min, d.Max)
		}
	case StatCount:
		if d.Factor < 0 {
			return fmt.Errorf("%s: factor must not be negative", d.Name)
		}
	case StatThreshold:
		if d.Above == "" || d.Below == "" {
			return fmt.Errorf("%s: above and below labels are required", d.Name)
		}
	case StatConstant:
		if d.Value == "" {
			return fmt.Errorf("%s: value is required", d.Name)
		}
	default:
		return fmt.Errorf("%s: unknown kind %q", d.Name, d.Kind)
	}
	return nil
}

// Evaluate 根据消息计数计算派生值
func (d StatDefinition) Evaluate(count int64) any {
	switch d.Kind {
	case StatPercent:
		v := d.Base + d.Slope*float64(count)
		v = math.Max(d.Min, math.Min(d.Max, v))
		return fmt.Sprintf("%.1f%%", v)
	case StatCount:
		return int64(math.Floor(float64(count) * d.Factor))
	case StatThreshold:
		if count > d.Threshold {
			return d.Above
		}
		return d.Below
	case StatConstant:
		return d.Value
	default:
		return nil
	}
}

// Derive 计算一个角色的全部派生值
func Derive(defs []StatDefinition, count int64) map[string]any {
	out := make(map[string]any, len(defs))
	for _, d := range defs {
		out[d.Name] = d.Evaluate(count)
	}
	return out
}
