package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/kuko798/appli.io/internal/classifier"
	"github.com/kuko798/appli.io/internal/extractor"
	"github.com/kuko798/appli.io/internal/filter"
	"github.com/kuko798/appli.io/internal/model"

	"gorm.io/datatypes"
)

// Config 描述单封邮件的处理配置。
type Config struct {
	Filter         filter.Config `yaml:"filter" json:"filter"`
	ModelPath      string        `yaml:"model_path" json:"model_path"`
	UseLLM         bool          `yaml:"use_llm" json:"use_llm"`
	PromptTemplate string        `yaml:"prompt_template" json:"prompt_template"`
	BodyLimit      int           `yaml:"body_limit" json:"body_limit"`
	Groq           GroqConfig    `yaml:"groq" json:"groq"`
}

// LLMClient 抽象大模型调用，便于测试注入。
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// PromoFilter 判断邮件是否为推广噪声。
type PromoFilter interface {
	Match(subject, body, from string) (string, bool)
}

// StatusClassifier 给出状态判定。
type StatusClassifier interface {
	Classify(text string) classifier.Prediction
}

// RoleExtractor 提取职位。
type RoleExtractor interface {
	Extract(subject, body string) (string, bool)
}

// MessageProcessor 描述处理接口。
type MessageProcessor interface {
	Process(ctx context.Context, raw model.RawMessage) (Result, error)
}

// ResultOutcome 指示处理结果。
type ResultOutcome string

const (
	ResultAccepted ResultOutcome = "accepted"
	ResultSkipped  ResultOutcome = "skipped"
)

// Result 包含处理结果与候选记录。
type Result struct {
	Outcome ResultOutcome
	Job     *model.JobRecord
	Reason  string
	Trace   datatypes.JSONMap
}

// Processor 依次执行过滤、职位提取、公司提取与状态判定；配置了 LLM 时优先使用 LLM，失败回退到规则。
type Processor struct {
	cfg        Config
	filter     PromoFilter
	classifier StatusClassifier
	roles      RoleExtractor
	llm        LLMClient
}

// New 创建 Processor，未注入的组件使用默认实现，llm 为 nil 时只走规则。
func New(cfg Config, f PromoFilter, c StatusClassifier, r RoleExtractor, llm LLMClient) *Processor {
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = 5000
	}
	if f == nil {
		f = filter.New(cfg.Filter)
	}
	if c == nil {
		c = classifier.New(classifier.DefaultModel())
	}
	if r == nil {
		r = extractor.NewRoleExtractor()
	}
	return &Processor{cfg: cfg, filter: f, classifier: c, roles: r, llm: llm}
}

// Process 处理一封原始邮件。被过滤或找不到职位时返回 skipped，不视为错误。
func (p *Processor) Process(ctx context.Context, raw model.RawMessage) (Result, error) {
	if term, ok := p.filter.Match(raw.Subject, raw.Body, raw.From); ok {
		return Result{
			Outcome: ResultSkipped,
			Reason:  "promotional " + term,
			Trace:   datatypes.JSONMap{"stage": "filter", "term": term},
		}, nil
	}

	trace := datatypes.JSONMap{}
	date, err := parseDate(raw.DateHeader)
	if err != nil {
		trace["date_error"] = err.Error()
		date = raw.CreatedAt
	}

	if p.llm != nil && p.cfg.UseLLM {
		res, err := p.processLLM(ctx, raw, date, trace)
		if err == nil {
			return res, nil
		}
		trace["llm_error"] = err.Error()
	}
	return p.processRules(raw, date, trace), nil
}

// Analysis 为单封邮件的诊断输出，不写入任何存储。
type Analysis struct {
	Promotional bool           `json:"promotional"`
	Term        string         `json:"term,omitempty"`
	Status      model.Status   `json:"status"`
	Scores      map[string]int `json:"scores"`
	Signals     []string       `json:"signals"`
	Role        string         `json:"role,omitempty"`
	Company     string         `json:"company"`
}

// Analyze 只走规则流水线并返回每一步的结果；即使被过滤也会给出分类结果，便于排查。
func (p *Processor) Analyze(subject, body, from string) Analysis {
	term, promo := p.filter.Match(subject, body, from)
	role, _ := p.roles.Extract(subject, body)
	pred := p.classifier.Classify(subject + " " + body)
	signals := pred.Signals
	if signals == nil {
		signals = []string{}
	}
	return Analysis{
		Promotional: promo,
		Term:        term,
		Status:      pred.Status,
		Scores:      scoreMap(pred.Scores),
		Signals:     signals,
		Role:        role,
		Company:     extractor.ExtractCompany(from),
	}
}

func (p *Processor) processRules(raw model.RawMessage, date time.Time, trace datatypes.JSONMap) Result {
	trace["stage"] = "rules"

	role, ok := p.roles.Extract(raw.Subject, raw.Body)
	if !ok {
		return Result{Outcome: ResultSkipped, Reason: "no role found", Trace: trace}
	}
	company := extractor.ExtractCompany(raw.From)
	pred := p.classifier.Classify(raw.Subject + " " + raw.Body)

	trace["role"] = role
	trace["company"] = company
	trace["scores"] = scoreMap(pred.Scores)
	trace["signals"] = pred.Signals

	job := p.buildJob(raw, role, company, pred.Status, date)
	return Result{Outcome: ResultAccepted, Job: &job, Trace: trace}
}

func (p *Processor) processLLM(ctx context.Context, raw model.RawMessage, date time.Time, trace datatypes.JSONMap) (Result, error) {
	prompt := p.buildPrompt(raw)
	respText, err := p.llm.Complete(ctx, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("llm complete: %w", err)
	}

	var payload llmAnalysis
	if err := json.Unmarshal([]byte(stripFence(respText)), &payload); err != nil {
		return Result{}, fmt.Errorf("parse llm response: %w", err)
	}

	trace["stage"] = "llm"
	trace["llm_response"] = respText

	role := strings.TrimSpace(deref(payload.Role))
	if role == "" {
		return Result{Outcome: ResultSkipped, Reason: "llm: not a job application", Trace: trace}, nil
	}

	status := model.StatusApplied
	if v := strings.TrimSpace(deref(payload.Status)); v != "" {
		parsed, err := model.ParseStatus(v)
		if err != nil {
			return Result{}, fmt.Errorf("llm status: %w", err)
		}
		status = parsed
	}

	company := strings.TrimSpace(deref(payload.Company))
	if company == "" {
		company = extractor.ExtractCompany(raw.From)
	}

	job := p.buildJob(raw, role, company, status, date)
	return Result{Outcome: ResultAccepted, Job: &job, Trace: trace}, nil
}

func (p *Processor) buildJob(raw model.RawMessage, role, company string, status model.Status, date time.Time) model.JobRecord {
	id := raw.MessageID
	if id == "" {
		id = fmt.Sprintf("raw-%d", raw.ID)
	}
	return model.JobRecord{
		ID:      id,
		Company: company,
		Title:   role,
		Subject: raw.Subject,
		Status:  status,
		Date:    date,
		Source:  model.SourceGmail,
	}
}

func (p *Processor) buildPrompt(raw model.RawMessage) string {
	template := strings.TrimSpace(p.cfg.PromptTemplate)
	if template == "" {
		template = defaultPrompt
	}
	body := raw.Body
	if r := []rune(body); len(r) > p.cfg.BodyLimit {
		body = string(r[:p.cfg.BodyLimit])
	}
	prompt := strings.ReplaceAll(template, "{{SUBJECT}}", raw.Subject)
	prompt = strings.ReplaceAll(prompt, "{{FROM}}", raw.From)
	return strings.ReplaceAll(prompt, "{{BODY}}", body)
}

// parseDate 解析 RFC 5322 Date 头。
func parseDate(header string) (time.Time, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return time.Time{}, fmt.Errorf("empty date header")
	}
	t, err := mail.ParseDate(header)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date header: %w", err)
	}
	return t, nil
}

func scoreMap(scores map[model.Status]int) map[string]int {
	out := make(map[string]int, len(scores))
	for s, v := range scores {
		out[string(s)] = v
	}
	return out
}

func stripFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

const defaultPrompt = `You are a job application email classifier.

First decide whether this email is about a real job application (application confirmation, interview, rejection or offer).
If it is not (newsletters, job alerts, promotions, marketing, generic recruiting ads, events, spam), respond with
{"status": null, "role": null, "company": null}.

Otherwise infer:
1. status: one of "Applied", "Interview", "Offer", "Rejected"
2. role: the job title
3. company: the company name
Use null for anything that cannot be inferred. Do not invent companies or roles.

Respond ONLY with a JSON object: {"status": string|null, "role": string|null, "company": string|null}

From: {{FROM}}
Subject: {{SUBJECT}}

Body:
{{BODY}}`

// llmAnalysis 对应 LLM JSON 响应。
type llmAnalysis struct {
	Status  *string `json:"status"`
	Role    *string `json:"role"`
	Company *string `json:"company"`
}
