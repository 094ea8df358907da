package extractor

import (
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/kuko798/appli.io/internal/model"

	"golang.org/x/net/html"
)

const (
	// UnknownPageCompany 页面中无法识别公司时的默认值。
	UnknownPageCompany = "Unknown Company"
	// UnknownPageRole 页面中无法识别职位时的默认值。
	UnknownPageRole = "Unknown Role"
)

var pageSuccessPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)application submitted`),
	regexp.MustCompile(`(?i)thank you for applying`),
	regexp.MustCompile(`(?i)application received`),
	regexp.MustCompile(`(?i)successfully submitted`),
	regexp.MustCompile(`(?i)received your application`),
}

var trailingDash = regexp.MustCompile(` - .*`)

// PageApplication 是从投递成功页识别出的申请。
type PageApplication struct {
	Company string       `json:"company"`
	Role    string       `json:"role"`
	URL     string       `json:"url"`
	Status  model.Status `json:"status"`
}

type pageInfo struct {
	text       string
	title      string
	ogTitle    string
	ogSiteName string
	h1         string
}

// DetectApplication 判断页面是否为投递成功页，并按招聘系统的标题约定提取公司与职位。
// 页面不含成功提示时返回 false。
func DetectApplication(pageURL string, r io.Reader) (PageApplication, bool, error) {
	root, err := html.Parse(r)
	if err != nil {
		return PageApplication{}, false, fmt.Errorf("parse html: %w", err)
	}
	info := collectPage(root)

	if !matchesAny(pageSuccessPatterns, info.text) {
		return PageApplication{}, false, nil
	}

	app := PageApplication{
		Company: UnknownPageCompany,
		Role:    UnknownPageRole,
		URL:     pageURL,
		Status:  model.StatusApplied,
	}

	host := ""
	if u, err := url.Parse(pageURL); err == nil {
		host = strings.ToLower(u.Hostname())
	}

	switch {
	case strings.Contains(host, "greenhouse.io"):
		// "Role at Company - Greenhouse"
		if parts := strings.Split(info.title, " at "); len(parts) >= 2 {
			app.Role = strings.TrimSpace(parts[0])
			app.Company = strings.TrimSpace(trailingDash.ReplaceAllString(parts[1], ""))
		}
	case strings.Contains(host, "lever.co"):
		if parts := strings.Split(info.title, " - "); len(parts) >= 2 {
			app.Company = strings.TrimSpace(parts[0])
			app.Role = strings.TrimSpace(parts[1])
		}
	case strings.Contains(host, "ashbyhq.com"):
		if parts := strings.Split(info.title, " - "); len(parts) >= 2 {
			app.Role = strings.TrimSpace(parts[0])
			app.Company = strings.TrimSpace(parts[1])
		}
	default:
		if info.ogTitle != "" {
			app.Role = info.ogTitle
		}
		if info.ogSiteName != "" {
			app.Company = info.ogSiteName
		}
	}

	if (app.Role == "" || app.Role == UnknownPageRole) && info.h1 != "" {
		app.Role = info.h1
	}
	if app.Role == "" {
		app.Role = UnknownPageRole
	}
	if app.Company == "" {
		app.Company = UnknownPageCompany
	}
	return app, true, nil
}

func collectPage(root *html.Node) pageInfo {
	var info pageInfo
	var body strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "title":
				if info.title == "" {
					info.title = strings.TrimSpace(nodeText(n))
				}
				return
			case "meta":
				switch attr(n, "property") {
				case "og:title":
					info.ogTitle = strings.TrimSpace(attr(n, "content"))
				case "og:site_name":
					info.ogSiteName = strings.TrimSpace(attr(n, "content"))
				}
			case "h1":
				if info.h1 == "" {
					info.h1 = strings.Join(strings.Fields(nodeText(n)), " ")
				}
			}
		}
		if n.Type == html.TextNode {
			body.WriteString(n.Data)
			body.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	info.text = strings.Join(strings.Fields(body.String()), " ")
	return info
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
