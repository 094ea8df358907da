package extractor

import (
	"regexp"
	"strings"
	"unicode"
)

// Tier 标识职位表达式的具体程度，数值越小越具体。
type Tier int

const (
	// TierCompound 多词职位，如 "Senior Software Engineer"。
	TierCompound Tier = iota
	// TierSingle 带资历前缀的单词职位或常见固定搭配。
	TierSingle
	// TierStandalone 单个职位名词，只有出现在主题中才算数。
	TierStandalone
)

func (t Tier) String() string {
	switch t {
	case TierCompound:
		return "compound"
	case TierSingle:
		return "single"
	case TierStandalone:
		return "standalone"
	}
	return "unknown"
}

// RolePattern 是级联中的一项。
type RolePattern struct {
	Tier    Tier
	Pattern *regexp.Regexp
}

// RoleExtractor 按顺序尝试表达式，第一个命中者胜出。
type RoleExtractor struct {
	patterns []RolePattern
}

// NewRoleExtractor 使用给定级联创建提取器，为空时使用默认级联。
func NewRoleExtractor(patterns ...RolePattern) *RoleExtractor {
	if len(patterns) == 0 {
		patterns = DefaultRolePatterns()
	}
	return &RoleExtractor{patterns: append([]RolePattern(nil), patterns...)}
}

var defaultRoles = NewRoleExtractor()

// ExtractRole 使用默认级联从主题与正文中提取职位。
func ExtractRole(subject, body string) (string, bool) {
	return defaultRoles.Extract(subject, body)
}

// Extract 返回首个命中的职位（已按标题格式大小写），找不到时返回 false。
func (e *RoleExtractor) Extract(subject, body string) (string, bool) {
	text := strings.ToLower(subject + " " + body)
	lowerSubject := strings.ToLower(subject)

	for _, p := range e.patterns {
		match := strings.TrimSpace(p.Pattern.FindString(text))
		if match == "" {
			continue
		}
		if p.Tier == TierStandalone && !strings.Contains(lowerSubject, match) {
			// 泛称只看全文第一次出现的位置
			continue
		}
		return TitleCase(match), true
	}
	return "", false
}

// DefaultRolePatterns 返回默认的职位级联。
func DefaultRolePatterns() []RolePattern {
	compound := []string{
		`\b(senior|junior|lead|staff|principal|associate)\s+(software|frontend|backend|full[\s-]?stack|mobile|web|cloud|data|machine learning|ml|ai)\s+(engineer|developer|architect)\b`,
		`\b(senior|junior|lead|staff|principal)\s+(product|project|program|engineering|technical)\s+(manager|director|lead)\b`,
		`\b(senior|junior|lead)\s+(data|business|financial|marketing|sales)\s+(analyst|scientist)\b`,
		`\b(senior|junior|lead)\s+(ux|ui|product|graphic|web)\s+designer\b`,
		`\b(software|frontend|backend|full[\s-]?stack|mobile|web|cloud|data|machine learning|ml|ai)\s+(engineer|developer|architect)\b`,
		`\b(product|project|program|engineering|technical)\s+(manager|director|lead)\b`,
		`\b(data|business|financial|marketing|sales)\s+(analyst|scientist)\b`,
		`\b(ux|ui|product|graphic|web)\s+designer\b`,
		`\b(devops|qa|quality assurance)\s+engineer\b`,
	}
	single := []string{
		`\b(senior|junior|lead|staff|principal)\s+(engineer|developer|designer|analyst|manager|director|architect|consultant|coordinator|specialist)\b`,
		`\b(software engineer|data scientist|product manager|project manager|program manager)\b`,
	}
	standalone := []string{
		`\b(engineer|developer|designer|analyst|scientist|manager|director|architect|consultant|coordinator|specialist|intern)\b`,
	}

	var out []RolePattern
	for _, group := range []struct {
		tier     Tier
		patterns []string
	}{
		{TierCompound, compound},
		{TierSingle, single},
		{TierStandalone, standalone},
	} {
		for _, p := range group.patterns {
			out = append(out, RolePattern{Tier: group.tier, Pattern: regexp.MustCompile("(?i)" + p)})
		}
	}
	return out
}

var minorWords = map[string]struct{}{
	"and": {}, "or": {}, "of": {}, "the": {}, "a": {}, "an": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {},
}

// TitleCase 将每个词首字母大写、其余小写；介词与冠词除首词外保持小写。
func TitleCase(title string) string {
	words := strings.Fields(title)
	for i, w := range words {
		lower := strings.ToLower(w)
		if _, minor := minorWords[lower]; minor && i > 0 {
			words[i] = lower
			continue
		}
		words[i] = upperFirst(lower)
	}
	return strings.Join(words, " ")
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
