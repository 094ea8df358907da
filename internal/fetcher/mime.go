package fetcher

import (
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

type messageHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type messageBody struct {
	Data string `json:"data"`
	Size int    `json:"size"`
}

// messagePart 对应 Gmail API 的 MessagePart（精简字段）。
type messagePart struct {
	MimeType string          `json:"mimeType"`
	Headers  []messageHeader `json:"headers"`
	Body     messageBody     `json:"body"`
	Parts    []messagePart   `json:"parts"`
}

func (p messagePart) header(name string) string {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// extractBody 优先取顶层 body，其次递归查找第一个 text/plain 分段，最后退回 text/html 转纯文本。
func extractBody(p messagePart) (string, error) {
	if p.Body.Data != "" {
		text, err := decodeBase64URL(p.Body.Data)
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(strings.ToLower(p.MimeType), "text/html") {
			return htmlToText(text), nil
		}
		return text, nil
	}

	if part := findPart(p, "text/plain"); part != nil {
		return decodeBase64URL(part.Body.Data)
	}
	if part := findPart(p, "text/html"); part != nil {
		text, err := decodeBase64URL(part.Body.Data)
		if err != nil {
			return "", err
		}
		return htmlToText(text), nil
	}
	return "", nil
}

func findPart(p messagePart, mimeType string) *messagePart {
	for i := range p.Parts {
		part := &p.Parts[i]
		if strings.HasPrefix(strings.ToLower(part.MimeType), mimeType) && part.Body.Data != "" {
			return part
		}
		if found := findPart(*part, mimeType); found != nil {
			return found
		}
	}
	return nil
}

// decodeBase64URL 解码 Gmail 使用的 base64url，容忍有无填充。
func decodeBase64URL(data string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", fmt.Errorf("decode body: %w", err)
	}
	return string(raw), nil
}

func htmlToText(src string) string {
	node, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return src
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "head") {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return strings.Join(strings.Fields(b.String()), " ")
}
