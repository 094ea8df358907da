package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kuko798/appli.io/internal/processor"
)

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
database:
  path: data/jobs.db
fetcher:
  token: from-file
  range: 3m
processor:
  use_llm: true
  groq:
    api_key: file-key
reconcile:
  similarity_window: 720h
scheduler:
  interval: "0 */6 * * *"
notify:
  statuses: [Interview, Offer]
  email:
    host: smtp.example.com
    port: 587
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GMAIL_TOKEN", "env-token")
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("SMTP_PASSWORD", "secret")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig error: %v", err)
	}
	if cfg.Fetcher.Token != "env-token" || cfg.Fetcher.Range != "3m" {
		t.Fatalf("unexpected fetcher config %+v", cfg.Fetcher)
	}
	if cfg.Processor.Groq.APIKey != "file-key" || !cfg.Processor.UseLLM {
		t.Fatalf("expected file api key kept when env empty, got %+v", cfg.Processor)
	}
	if cfg.Notify.Email.Password != "secret" || len(cfg.Notify.Statuses) != 2 {
		t.Fatalf("unexpected notify config %+v", cfg.Notify)
	}
	if cfg.Reconcile.SimilarityWindow != "720h" || cfg.Scheduler.Interval != "0 */6 * * *" {
		t.Fatalf("unexpected reconcile/scheduler config %+v %+v", cfg.Reconcile, cfg.Scheduler)
	}
	if cfg.Database.Path != "data/jobs.db" || cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected defaults %+v %+v", cfg.Database, cfg.Server)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for explicit missing config")
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("CONFIG_FILE", "")
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("expected defaults without config.yaml, got %v", err)
	}
	if cfg.Database.Path != "jobs.db" {
		t.Fatalf("expected default db path, got %q", cfg.Database.Path)
	}
}

func TestLoadConfigRejectsBadWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("reconcile:\n  similarity_window: two months\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := loadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "similarity_window") {
		t.Fatalf("expected similarity_window error, got %v", err)
	}

	if err := os.WriteFile(path, []byte("reconcile:\n  similarity_window: 60d\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadConfig(path); err != nil {
		t.Fatalf("expected day suffix accepted, got %v", err)
	}
}

func TestBuildNotifierRejectsUnknownStatus(t *testing.T) {
	if _, err := buildNotifier(NotifyConfig{Statuses: []string{"Ghosted"}}); err == nil {
		t.Fatalf("expected error for unknown notify status")
	}
}

func TestRunClassify(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	proc := processor.New(processor.Config{}, nil, nil, nil, nil)
	err := runClassify(&buf, proc, "Interview for Senior Software Engineer", "We would like to schedule an interview.", "Acme <talent@acme.com>")
	if err != nil {
		t.Fatalf("runClassify error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"status": "Interview"`, `"role": "Senior Software Engineer"`, `"company": "Acme"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in output: %s", want, out)
		}
	}

	if err := runClassify(&buf, proc, "", "", "x@y.com"); err == nil {
		t.Fatalf("expected error without subject or body")
	}
}
