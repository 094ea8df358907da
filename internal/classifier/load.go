package classifier

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/kuko798/appli.io/internal/model"

	"gopkg.in/yaml.v3"
)

// ModelSpec 是模型文件的 YAML 结构。
type ModelSpec struct {
	Priors  Weights            `yaml:"priors"`
	Lexicon map[string]Weights `yaml:"lexicon"`
	Rules   []RuleSpec         `yaml:"rules"`
	Order   []string           `yaml:"order"`
}

// RuleSpec 描述一条覆盖规则，表达式统一按不区分大小写编译。
type RuleSpec struct {
	Name     string     `yaml:"name"`
	Mode     MatchMode  `yaml:"mode"`
	Patterns []string   `yaml:"patterns"`
	Unless   string     `yaml:"unless"`
	Guard    *GuardSpec `yaml:"guard"`
	Deltas   Weights    `yaml:"deltas"`
}

// GuardSpec 对应 Guard。
type GuardSpec struct {
	Class string `yaml:"class"`
	Above *int   `yaml:"above"`
	Below *int   `yaml:"below"`
}

// LoadModel 从 YAML 文件读取模型。
func LoadModel(path string) (Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Model{}, fmt.Errorf("read model file: %w", err)
	}
	return ParseModel(data)
}

// ParseModel 解析 YAML 模型，未给出 order 时使用默认决胜顺序。
func ParseModel(data []byte) (Model, error) {
	var spec ModelSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return Model{}, fmt.Errorf("parse model yaml: %w", err)
	}

	m := Model{Priors: spec.Priors, Lexicon: spec.Lexicon}

	for i, rs := range spec.Rules {
		r, err := compileRule(rs)
		if err != nil {
			return Model{}, fmt.Errorf("rule %d: %w", i, err)
		}
		if rs.Guard != nil {
			class, err := model.ParseStatus(rs.Guard.Class)
			if err != nil {
				return Model{}, fmt.Errorf("rule %s guard: %w", rs.Name, err)
			}
			r.Guard = &Guard{Class: class, Above: rs.Guard.Above, Below: rs.Guard.Below}
		}
		m.Rules = append(m.Rules, r)
	}

	order, err := parseOrder(spec.Order)
	if err != nil {
		return Model{}, err
	}
	m.Order = order
	return m, nil
}

func compileRule(spec RuleSpec) (Rule, error) {
	if len(spec.Patterns) == 0 {
		return Rule{}, fmt.Errorf("rule %q has no patterns", spec.Name)
	}
	mode := spec.Mode
	switch mode {
	case "":
		mode = MatchAny
	case MatchAny, MatchAll, MatchEach:
	default:
		return Rule{}, fmt.Errorf("rule %q: unknown mode %q", spec.Name, spec.Mode)
	}

	r := Rule{Name: spec.Name, Mode: mode, Deltas: spec.Deltas}
	for _, p := range spec.Patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return Rule{}, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		r.Patterns = append(r.Patterns, re)
	}
	if strings.TrimSpace(spec.Unless) != "" {
		re, err := regexp.Compile("(?i)" + spec.Unless)
		if err != nil {
			return Rule{}, fmt.Errorf("compile unless %q: %w", spec.Unless, err)
		}
		r.Unless = re
	}
	return r, nil
}

func parseOrder(values []string) ([]model.Status, error) {
	if len(values) == 0 {
		return DefaultOrder(), nil
	}
	seen := make(map[model.Status]struct{}, len(values))
	order := make([]model.Status, 0, len(values))
	for _, v := range values {
		s, err := model.ParseStatus(v)
		if err != nil {
			return nil, fmt.Errorf("order: %w", err)
		}
		if _, dup := seen[s]; dup {
			return nil, fmt.Errorf("order: duplicate status %s", s)
		}
		seen[s] = struct{}{}
		order = append(order, s)
	}
	if len(order) != len(model.Statuses()) {
		return nil, fmt.Errorf("order must list all %d statuses", len(model.Statuses()))
	}
	return order, nil
}
