package filter

import (
	"strings"
)

// Config 定义推广邮件过滤词表，留空时使用默认值。
type Config struct {
	Keywords []string `yaml:"keywords" json:"keywords"`
	Senders  []string `yaml:"senders" json:"senders"`
}

// DefaultKeywords 返回默认的推广/资讯关键字。
func DefaultKeywords() []string {
	return []string{
		"newsletter", "job alert", "recommended for you", "digest",
		"courses", "webinar", "subscribe", "job recommendations",
		"matches for you", "new jobs", "marketing", "promo",
		"coursera", "flash sale", "on sale", "save $", "ends soon", "limited time",
		"discount", "% off", "black friday", "cyber monday",
	}
}

// DefaultSenders 返回默认的自动发件人。
func DefaultSenders() []string {
	return []string{
		"noreply@glassdoor.com",
		"notifications@linkedin.com",
	}
}

// Filter 判断邮件是否为推广、资讯类噪声。构造后只读，可并发使用。
type Filter struct {
	keywords []string
	senders  []string
}

// New 创建过滤器，词表统一转为小写。
func New(cfg Config) *Filter {
	keywords := cfg.Keywords
	if len(keywords) == 0 {
		keywords = DefaultKeywords()
	}
	senders := cfg.Senders
	if len(senders) == 0 {
		senders = DefaultSenders()
	}
	return &Filter{keywords: normalize(keywords), senders: normalize(senders)}
}

// IsPromotional 返回邮件是否应被过滤。
func (f *Filter) IsPromotional(subject, body, from string) bool {
	_, ok := f.Match(subject, body, from)
	return ok
}

// Match 返回命中的词条（形如 "sender:..." 或 "keyword:..."），用于记录跳过原因。
func (f *Filter) Match(subject, body, from string) (string, bool) {
	lowerFrom := strings.ToLower(from)
	for _, s := range f.senders {
		if strings.Contains(lowerFrom, s) {
			return "sender:" + s, true
		}
	}

	text := strings.ToLower(subject + " " + body + " " + from)
	for _, k := range f.keywords {
		if strings.Contains(text, k) {
			return "keyword:" + k, true
		}
	}
	return "", false
}

func normalize(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
