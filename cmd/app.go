package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kuko798/appli.io/internal/api"
	"github.com/kuko798/appli.io/internal/classifier"
	"github.com/kuko798/appli.io/internal/fetcher"
	"github.com/kuko798/appli.io/internal/notifier"
	"github.com/kuko798/appli.io/internal/processor"
	"github.com/kuko798/appli.io/internal/reconcile"
	"github.com/kuko798/appli.io/internal/scheduler"
	"github.com/kuko798/appli.io/internal/storage"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config.yaml"

// AppConfig 应用配置。
type AppConfig struct {
	Database  DatabaseConfig   `yaml:"database"`
	Server    ServerConfig     `yaml:"server"`
	Fetcher   fetcher.Config   `yaml:"fetcher"`
	Processor processor.Config `yaml:"processor"`
	Reconcile reconcile.Config `yaml:"reconcile"`
	Scheduler scheduler.Config `yaml:"scheduler"`
	Notify    NotifyConfig     `yaml:"notify"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// NotifyConfig 通知配置；Statuses 为空时所有变更都会通知。
type NotifyConfig struct {
	Statuses []string             `yaml:"statuses"`
	Email    notifier.EmailConfig `yaml:"email"`
}

// loadConfig 读取 YAML 配置并用环境变量覆盖密钥。显式指定的文件不存在时报错，默认文件缺失时使用默认值。
func loadConfig(path string) (AppConfig, error) {
	explicit := true
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path == "" {
		path = defaultConfigPath
		explicit = false
	}

	var cfg AppConfig
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return AppConfig{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)
	if cfg.Database.Path == "" {
		cfg.Database.Path = "jobs.db"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if _, err := reconcile.ParseWindow(cfg.Reconcile.SimilarityWindow); err != nil {
		return AppConfig{}, fmt.Errorf("reconcile config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv("GMAIL_TOKEN")); v != "" {
		cfg.Fetcher.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("GROQ_API_KEY")); v != "" {
		cfg.Processor.Groq.APIKey = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.Notify.Email.Password = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_PATH")); v != "" {
		cfg.Database.Path = v
	}
}

// appScheduler 为 cmd 层使用的调度能力。
type appScheduler interface {
	Start(ctx context.Context) error
	RunOnce(ctx context.Context) (scheduler.Summary, error)
}

type appDeps struct {
	sched   appScheduler
	handler http.Handler
}

type depsBuilder func(AppConfig) (appDeps, func(), error)

// buildProcessor 只构建离线分类所需的组件，classify 命令不需要数据库。
func buildProcessor(cfg AppConfig) (*processor.Processor, error) {
	m := classifier.DefaultModel()
	if cfg.Processor.ModelPath != "" {
		loaded, err := classifier.LoadModel(cfg.Processor.ModelPath)
		if err != nil {
			return nil, fmt.Errorf("load classifier model: %w", err)
		}
		m = loaded
	}

	var llm processor.LLMClient
	if cfg.Processor.UseLLM {
		if cfg.Processor.Groq.APIKey == "" {
			log.Printf("llm analysis disabled: GROQ_API_KEY missing")
		} else {
			llm = processor.NewGroqClient(cfg.Processor.Groq, nil)
		}
	}
	return processor.New(cfg.Processor, nil, classifier.New(m), nil, llm), nil
}

func buildNotifier(cfg NotifyConfig) (scheduler.Notifier, error) {
	chain := notifier.Multi{notifier.NewLogNotifier(nil)}
	email := cfg.Email
	if email.Host == "" || email.Port == 0 || email.From == "" || len(email.To) == 0 {
		log.Printf("email notifier disabled: missing host/port/from/to")
	} else {
		chain = append(chain, notifier.NewEmailNotifier(email, nil))
	}
	n, err := notifier.NewStatusNotifier(cfg.Statuses, chain)
	if err != nil {
		return nil, fmt.Errorf("notify statuses: %w", err)
	}
	return n, nil
}

// buildDeps 组装完整依赖，返回的 cleanup 负责关闭数据库。
func buildDeps(cfg AppConfig) (appDeps, func(), error) {
	proc, err := buildProcessor(cfg)
	if err != nil {
		return appDeps{}, func() {}, err
	}
	notif, err := buildNotifier(cfg.Notify)
	if err != nil {
		return appDeps{}, func() {}, err
	}

	store, err := storage.NewStore(cfg.Database.Path)
	if err != nil {
		return appDeps{}, func() {}, fmt.Errorf("init store: %w", err)
	}
	cleanup := func() { _ = store.Close() }

	rec := reconcile.NewStore(store, cfg.Reconcile)
	fetch := fetcher.NewGmailFetcher(cfg.Fetcher, nil)
	sched := scheduler.NewScheduler(fetch, store, proc, rec, notif, cfg.Scheduler)

	handler := api.NewHandler(api.Deps{
		Store:      store,
		Reconciler: rec,
		Scheduler:  sched,
		Analyzer:   proc,
	})
	return appDeps{sched: sched, handler: handler}, cleanup, nil
}

// runOnceManual 构建依赖并执行一次同步。
func runOnceManual(ctx context.Context, cfg AppConfig, build depsBuilder) (scheduler.Summary, error) {
	deps, cleanup, err := build(cfg)
	if err != nil {
		return scheduler.Summary{}, fmt.Errorf("build deps: %w", err)
	}
	defer cleanup()

	sum, err := deps.sched.RunOnce(ctx)
	if err != nil {
		return sum, fmt.Errorf("run sync: %w", err)
	}
	return sum, nil
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// runServer 并行运行 HTTP 服务和调度循环，ctx 取消后优雅关闭服务器。
func runServer(ctx context.Context, srv httpServer, sched appScheduler, shutdownTimeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := sched.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scheduler stopped: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	})

	return g.Wait()
}
