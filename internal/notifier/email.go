package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/kuko798/appli.io/internal/reconcile"
)

// EmailConfig 邮件配置。Host 为空时不启用邮件通知。
type EmailConfig struct {
	Host     string   `yaml:"host" json:"host"`
	Port     int      `yaml:"port" json:"port"`
	Username string   `yaml:"username" json:"username"`
	Password string   `yaml:"password" json:"password"`
	From     string   `yaml:"from" json:"from"`
	To       []string `yaml:"to" json:"to"`
	Subject  string   `yaml:"subject" json:"subject"`
}

// EmailMessage 表示一封邮件。
type EmailMessage struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// EmailSender 抽象发送接口，便于测试替换。
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// SMTPClient 封装 SMTP 发送。
type SMTPClient struct {
	addr string
	auth smtp.Auth
}

// NewSMTPClient 按配置创建客户端，用户名和密码都存在时才使用 PLAIN 认证。
func NewSMTPClient(cfg EmailConfig) *SMTPClient {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	var auth smtp.Auth
	if cfg.Username != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPClient{addr: addr, auth: auth}
}

func (c *SMTPClient) Send(ctx context.Context, msg EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data := buildEmailData(msg)
	if err := smtp.SendMail(c.addr, c.auth, msg.From, msg.To, []byte(data)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// EmailNotifier 将一次同步中的变更汇总为一封邮件。
type EmailNotifier struct {
	cfg    EmailConfig
	sender EmailSender
}

// NewEmailNotifier 创建 EmailNotifier。
func NewEmailNotifier(cfg EmailConfig, sender EmailSender) *EmailNotifier {
	if sender == nil {
		sender = NewSMTPClient(cfg)
	}
	if cfg.Subject == "" {
		cfg.Subject = "Job application updates"
	}
	return &EmailNotifier{cfg: cfg, sender: sender}
}

// Notify 发送变更汇总，若列表为空或未配置收件人则跳过。
func (n EmailNotifier) Notify(ctx context.Context, results []reconcile.Result) error {
	if len(results) == 0 || len(n.cfg.To) == 0 {
		return nil
	}

	body := buildBody(results)
	msg := EmailMessage{
		From:    n.cfg.From,
		To:      n.cfg.To,
		Subject: n.cfg.Subject,
		Body:    body,
	}
	return n.sender.Send(ctx, msg)
}

func buildBody(results []reconcile.Result) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%d application update(s):\n", len(results)))
	for _, r := range results {
		b.WriteString("- " + describe(r))
		if !r.Job.Date.IsZero() {
			b.WriteString(" on " + r.Job.Date.Format("2006-01-02"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func buildEmailData(msg EmailMessage) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: %s\r\n", msg.From))
	b.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.To, ",")))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)
	return b.String()
}
