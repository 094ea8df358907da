package classifier

import (
	"regexp"

	"github.com/kuko798/appli.io/internal/model"
)

// Weights 为四个状态各自的分值。
type Weights struct {
	Rejected  int `yaml:"rejected" json:"rejected"`
	Offer     int `yaml:"offer" json:"offer"`
	Interview int `yaml:"interview" json:"interview"`
	Applied   int `yaml:"applied" json:"applied"`
}

// Get 返回指定状态的分值。
func (w Weights) Get(s model.Status) int {
	switch s {
	case model.StatusRejected:
		return w.Rejected
	case model.StatusOffer:
		return w.Offer
	case model.StatusInterview:
		return w.Interview
	case model.StatusApplied:
		return w.Applied
	}
	return 0
}

// MatchMode 决定规则的多个表达式如何组合。
type MatchMode string

const (
	// MatchAny 任一表达式命中即触发一次。
	MatchAny MatchMode = "any"
	// MatchAll 全部表达式命中才触发一次。
	MatchAll MatchMode = "all"
	// MatchEach 每个命中的表达式各触发一次。
	MatchEach MatchMode = "each"
)

// Guard 限定规则只在某个状态的当前累计分满足阈值时生效。
type Guard struct {
	Class model.Status
	Above *int // 要求分数 > Above
	Below *int // 要求分数 < Below
}

func (g *Guard) allows(scores map[model.Status]int) bool {
	if g == nil {
		return true
	}
	v := scores[g.Class]
	if g.Above != nil && v <= *g.Above {
		return false
	}
	if g.Below != nil && v >= *g.Below {
		return false
	}
	return true
}

// Rule 是一条作用于原文的覆盖规则，命中后按 Deltas 调整分数，负向调整后不低于 0。
type Rule struct {
	Name     string
	Mode     MatchMode
	Patterns []*regexp.Regexp
	Unless   *regexp.Regexp
	Guard    *Guard
	Deltas   Weights
}

func (r Rule) hits(text string) int {
	if r.Unless != nil && r.Unless.MatchString(text) {
		return 0
	}
	switch r.Mode {
	case MatchEach:
		n := 0
		for _, p := range r.Patterns {
			if p.MatchString(text) {
				n++
			}
		}
		return n
	case MatchAll:
		if len(r.Patterns) == 0 {
			return 0
		}
		for _, p := range r.Patterns {
			if !p.MatchString(text) {
				return 0
			}
		}
		return 1
	default:
		for _, p := range r.Patterns {
			if p.MatchString(text) {
				return 1
			}
		}
		return 0
	}
}

// Model 是分类器的全部可调参数：先验、词表、规则与平分时的决胜顺序。
type Model struct {
	Priors  Weights
	Lexicon map[string]Weights
	Rules   []Rule
	Order   []model.Status
}

// DefaultOrder 为平分时的决胜顺序，排在前面的状态胜出。
func DefaultOrder() []model.Status {
	return []model.Status{model.StatusRejected, model.StatusOffer, model.StatusInterview, model.StatusApplied}
}

// DefaultModel 返回手工调校的默认模型。
func DefaultModel() Model {
	return Model{
		Priors:  Weights{Rejected: 1, Offer: 1, Interview: 1, Applied: 2},
		Lexicon: defaultLexicon(),
		Rules:   defaultRules(),
		Order:   DefaultOrder(),
	}
}

// defaultLexicon 按单个词查表；带下划线的短语键不会与任何词匹配，短语由规则处理。
func defaultLexicon() map[string]Weights {
	return map[string]Weights{
		"unfortunately":            {Rejected: 50, Applied: 1},
		"reject":                   {Rejected: 100},
		"sorry":                    {Rejected: 10, Applied: 1},
		"not_selected":             {Rejected: 80},
		"moving_forward":           {Rejected: 60, Offer: 5, Interview: 5, Applied: 5},
		"unable_to_offer":          {Rejected: 90},
		"regret":                   {Rejected: 40},
		"position_has_been_filled": {Rejected: 90},
		"other_candidates":         {Rejected: 60, Applied: 5},
		"pursue_other":             {Rejected: 70},

		"schedule":     {Offer: 2, Interview: 40, Applied: 5},
		"availability": {Offer: 2, Interview: 30, Applied: 5},
		"interview":    {Rejected: 10, Offer: 5, Interview: 80, Applied: 20},
		"chat":         {Offer: 1, Interview: 20, Applied: 2},
		"meet":         {Offer: 1, Interview: 20, Applied: 2},
		"screening":    {Rejected: 5, Interview: 50, Applied: 10},
		"invite":       {Offer: 5, Interview: 30, Applied: 5},

		"offer":           {Rejected: 5, Offer: 80, Interview: 5, Applied: 10},
		"pleased":         {Offer: 30, Interview: 5, Applied: 2},
		"salary":          {Offer: 40, Interview: 10, Applied: 5},
		"compensation":    {Offer: 40, Interview: 5, Applied: 5},
		"contract":        {Offer: 50, Interview: 5, Applied: 5},
		"congratulations": {Offer: 60, Interview: 5, Applied: 1},
		"hired":           {Offer: 90},

		"received":    {Rejected: 1, Offer: 1, Interview: 1, Applied: 30},
		"reviewing":   {Rejected: 2, Interview: 2, Applied: 40},
		"submission":  {Applied: 30},
		"application": {Rejected: 5, Offer: 5, Interview: 5, Applied: 20},
	}
}

// defaultRules 顺序有意义：强拒绝短语先于 offer 判断，礼貌结尾规则依赖此前累计的拒绝分。
func defaultRules() []Rule {
	return []Rule{
		mustRule("strong_rejection", MatchEach, "", nil, Weights{Rejected: 200},
			`not (be )?moving forward`,
			`decided not to move forward`,
			`will not be moving forward`,
			`unable to offer`,
			`not selected`,
			`decided to pursue other candidates`,
			`pursuing other candidates`,
			`offered? (the )?(position|role) to (another|other) candidate`,
			`extended an offer to (another|other) candidate`,
			`position has been filled`,
			`filled (the )?(position|role)`,
			`no longer considering`,
			`not the right fit`,
			`going (in )?a different direction`,
			`more qualified candidates`,
		),
		mustRule("polite_rejection", MatchAll, "", &Guard{Class: model.StatusRejected, Above: intPtr(10)}, Weights{Rejected: 50},
			`\b(sincerely|regards|best wishes|best regards|kind regards|thank you)\b`,
			`appreciate|thank you for|wish you (the )?best|good luck`,
		),
		mustRule("offer_to_other_candidate", MatchAny, "", nil, Weights{Offer: -100, Rejected: 80},
			`offer.{0,30}(other|another) candidate`,
			`(other|another) candidate.{0,30}offer`,
		),
		mustRule("offer_extended", MatchAny, `not (be )?moving forward|other candidate`, nil, Weights{Offer: 100},
			`pleased to (extend|offer)|delighted to offer|happy to offer|would like to (extend|offer)`,
		),
		mustRule("interview_scheduling", MatchAny, "", nil, Weights{Interview: 60},
			`schedule (a |an )?(time|call|interview)|availability for (a |an )?(call|interview)|invite you to interview|next steps? (is|are|would be) (a |an )?interview`,
		),
		mustRule("application_received", MatchAny, "", &Guard{Class: model.StatusRejected, Below: intPtr(50)}, Weights{Applied: 30},
			`received your application|thank you for (your )?applying|application (has been )?received`,
		),
	}
}

func mustRule(name string, mode MatchMode, unless string, guard *Guard, deltas Weights, patterns ...string) Rule {
	r, err := compileRule(RuleSpec{Name: name, Mode: mode, Unless: unless, Deltas: deltas, Patterns: patterns})
	if err != nil {
		panic(err)
	}
	r.Guard = guard
	return r
}

func intPtr(v int) *int { return &v }
