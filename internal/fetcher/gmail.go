package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kuko798/appli.io/internal/model"

	"golang.org/x/sync/errgroup"
)

// Config 定义 Gmail 抓取配置。
type Config struct {
	BaseURL     string `yaml:"base_url" json:"base_url"`
	Token       string `yaml:"token" json:"-"`
	Query       string `yaml:"query" json:"query"`
	Range       string `yaml:"range" json:"range"`
	MaxResults  int    `yaml:"max_results" json:"max_results"`
	MaxPages    int    `yaml:"max_pages" json:"max_pages"`
	Concurrency int    `yaml:"concurrency" json:"concurrency"`
}

// MessageFetcher 抓取统一接口。
type MessageFetcher interface {
	Fetch(ctx context.Context) ([]model.RawMessage, error)
}

const (
	defaultGmailBase  = "https://gmail.googleapis.com/gmail/v1/users/me"
	defaultGmailQuery = "subject:(application OR interview OR offer OR rejection)"
)

// GmailFetcher 通过 Gmail REST API 搜索并下载求职相关邮件。
// Token 为已获取的 OAuth access token。
type GmailFetcher struct {
	baseURL string
	client  *http.Client
	cfg     Config
	now     func() time.Time
	logger  *log.Logger
}

// NewGmailFetcher 创建抓取器并补齐默认配置。
func NewGmailFetcher(cfg Config, client *http.Client) *GmailFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultGmailBase
	}
	if strings.TrimSpace(cfg.Query) == "" {
		cfg.Query = defaultGmailQuery
	}
	if _, ok := rangeMonths[cfg.Range]; !ok {
		cfg.Range = "1m"
	}
	if cfg.MaxResults <= 0 || cfg.MaxResults > 500 {
		cfg.MaxResults = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 20
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	return &GmailFetcher{
		baseURL: strings.TrimSuffix(base, "/"),
		client:  client,
		cfg:     cfg,
		now:     time.Now,
		logger:  log.New(os.Stdout, "[fetcher] ", log.LstdFlags),
	}
}

// rangeMonths 为可选的回溯范围。
var rangeMonths = map[string]int{"1m": 1, "3m": 3, "6m": 6, "1y": 12}

// afterDate 返回 Gmail 搜索语法使用的起始日期 YYYY/MM/DD。
func afterDate(now time.Time, rng string) string {
	months, ok := rangeMonths[rng]
	if !ok {
		months = 1
	}
	return now.AddDate(0, -months, 0).Format("2006/01/02")
}

// Query 返回带时间窗口的完整搜索语句。
func (g *GmailFetcher) Query() string {
	return g.cfg.Query + " after:" + afterDate(g.now(), g.cfg.Range)
}

// Fetch 分页列出匹配邮件，并发下载详情，按列表顺序返回待处理的原始邮件。
// 列表请求失败会中止本次抓取；单封邮件下载失败只记录日志并跳过。
func (g *GmailFetcher) Fetch(ctx context.Context) ([]model.RawMessage, error) {
	if strings.TrimSpace(g.cfg.Token) == "" {
		return nil, fmt.Errorf("gmail token missing")
	}

	query := g.Query()
	g.logf("start fetch: query=%q max_pages=%d", query, g.cfg.MaxPages)

	var ids []string
	seen := make(map[string]struct{})
	pageToken := ""
	for page := 1; page <= g.cfg.MaxPages; page++ {
		list, err := g.listPage(ctx, query, pageToken)
		if err != nil {
			return nil, fmt.Errorf("list messages page %d: %w", page, err)
		}
		for _, m := range list.Messages {
			if _, ok := seen[m.ID]; ok || m.ID == "" {
				continue
			}
			seen[m.ID] = struct{}{}
			ids = append(ids, m.ID)
		}
		g.logf("page=%d listed=%d cumulative=%d", page, len(list.Messages), len(ids))
		if list.NextPageToken == "" {
			break
		}
		pageToken = list.NextPageToken
	}

	results := make([]*model.RawMessage, len(ids))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Concurrency)
	for i, id := range ids {
		i, id := i, id
		eg.Go(func() error {
			msg, err := g.getMessage(egCtx, id)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				g.logf("skip message id=%s: %v", id, err)
				return nil
			}
			results[i] = msg
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}

	msgs := make([]model.RawMessage, 0, len(results))
	for _, m := range results {
		if m != nil {
			msgs = append(msgs, *m)
		}
	}
	g.logf("fetch done total_messages=%d", len(msgs))
	return msgs, nil
}

type listResponse struct {
	Messages []struct {
		ID       string `json:"id"`
		ThreadID string `json:"threadId"`
	} `json:"messages"`
	NextPageToken string `json:"nextPageToken"`
}

type messageResponse struct {
	ID      string      `json:"id"`
	Snippet string      `json:"snippet"`
	Payload messagePart `json:"payload"`
}

func (g *GmailFetcher) listPage(ctx context.Context, query, pageToken string) (listResponse, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("maxResults", strconv.Itoa(g.cfg.MaxResults))
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var out listResponse
	if err := g.getJSON(ctx, g.baseURL+"/messages?"+params.Encode(), &out); err != nil {
		return listResponse{}, err
	}
	return out, nil
}

func (g *GmailFetcher) getMessage(ctx context.Context, id string) (*model.RawMessage, error) {
	var resp messageResponse
	if err := g.getJSON(ctx, g.baseURL+"/messages/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}

	body, err := extractBody(resp.Payload)
	if err != nil || strings.TrimSpace(body) == "" {
		body = resp.Snippet
	}

	return &model.RawMessage{
		MessageID:  id,
		Subject:    resp.Payload.header("Subject"),
		From:       resp.Payload.header("From"),
		DateHeader: resp.Payload.header("Date"),
		Body:       body,
		Status:     model.RawMessagePending,
	}, nil
}

func (g *GmailFetcher) getJSON(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (g *GmailFetcher) logf(format string, args ...any) {
	if g.logger == nil {
		g.logger = log.New(os.Stdout, "[fetcher] ", log.LstdFlags)
	}
	g.logger.Printf(format, args...)
}
