package extractor

import (
	"regexp"
	"strings"
)

// UnknownCompany 是无法从发件人解析公司时的默认值。
const UnknownCompany = "Unknown"

var (
	domainLabel   = regexp.MustCompile(`@([a-zA-Z0-9-]+)\.`)
	companySuffix = regexp.MustCompile(`(?i),?\s*\b(inc|llc|ltd|corp|corporation)\.?$`)
)

// ExtractCompany 从 From 头解析公司名：优先取 <地址> 之前的显示名，否则取域名第一段，
// 并去掉结尾的 Inc/LLC/Ltd/Corp/Corporation。
func ExtractCompany(from string) string {
	from = strings.TrimSpace(from)

	var company string
	if i := strings.Index(from, "<"); i >= 0 {
		company = strings.Trim(strings.TrimSpace(from[:i]), `"' `)
		if company == "" {
			company = domainOf(from[i:])
		}
	} else if strings.Contains(from, "@") {
		company = domainOf(from)
	} else {
		company = strings.Trim(from, `"' `)
	}

	company = strings.TrimSpace(companySuffix.ReplaceAllString(company, ""))
	if company == "" {
		return UnknownCompany
	}
	return company
}

func domainOf(addr string) string {
	if m := domainLabel.FindStringSubmatch(addr); m != nil {
		return m[1]
	}
	return ""
}
