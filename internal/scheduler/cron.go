package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/kuko798/appli.io/internal/fetcher"
	"github.com/kuko798/appli.io/internal/model"
	"github.com/kuko798/appli.io/internal/processor"
	"github.com/kuko798/appli.io/internal/reconcile"
	"github.com/kuko798/appli.io/internal/storage"

	"golang.org/x/sync/errgroup"
)

// Config 用于调度配置。Interval 可以是时长（如 "30m"）或 5 段 cron 表达式。
type Config struct {
	Interval  string `yaml:"interval" json:"interval"`
	Timeout   string `yaml:"timeout" json:"timeout"`
	BatchSize int    `yaml:"batch_size" json:"batch_size"`
}

// Store 抽象原始邮件存储接口，便于测试替换。
type Store interface {
	UpsertRawMessages(ctx context.Context, msgs []model.RawMessage) (storage.RawUpsertResult, error)
	ListRawMessages(ctx context.Context, query storage.RawMessageQuery) ([]model.RawMessage, error)
	UpdateRawMessageStatus(ctx context.Context, id uint, update storage.RawMessageUpdate) error
}

// Reconciler 将候选记录合并进集合。
type Reconciler interface {
	SaveJob(ctx context.Context, candidate model.JobRecord) (reconcile.Result, error)
}

// Notifier 用于发送新建或状态升级通知。
type Notifier interface {
	Notify(ctx context.Context, results []reconcile.Result) error
}

// Summary 汇总一次同步的结果。
type Summary struct {
	Busy      bool `json:"busy,omitempty"`
	Fetched   int  `json:"fetched"`
	New       int  `json:"new"`
	Processed int  `json:"processed"`
	Skipped   int  `json:"skipped"`
	Created   int  `json:"created"`
	Upgraded  int  `json:"upgraded"`
	Merged    int  `json:"merged"`
	Unchanged int  `json:"unchanged"`
}

// Changed 返回本次写入集合的记录数。
func (s Summary) Changed() int {
	return s.Created + s.Upgraded + s.Merged
}

// Scheduler 负责周期性同步：抓取、落原始表、逐封处理并合并。
type Scheduler struct {
	fetcher   fetcher.MessageFetcher
	store     Store
	processor processor.MessageProcessor
	rec       Reconciler
	notif     Notifier
	interval  time.Duration
	cronSpec  string
	cron      *cronSchedule
	timeout   time.Duration
	batchSize int
	running   atomic.Bool
	newTicker func(time.Duration) ticker
	now       func() time.Time
	logger    *log.Logger
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

// NewScheduler 创建 Scheduler，解析配置的间隔与超时。
func NewScheduler(f fetcher.MessageFetcher, s Store, proc processor.MessageProcessor, rec Reconciler, n Notifier, cfg Config) *Scheduler {
	interval, cronCfg := parseSchedule(cfg.Interval)
	timeout := 5 * time.Minute
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
			timeout = d
		}
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}

	return &Scheduler{
		fetcher:   f,
		store:     s,
		processor: proc,
		rec:       rec,
		notif:     n,
		interval:  interval,
		cronSpec:  cronCfg.spec,
		cron:      cronCfg.schedule,
		timeout:   timeout,
		batchSize: batch,
		newTicker: defaultTicker,
		now:       time.Now,
		logger:    log.New(os.Stdout, "[scheduler] ", log.LstdFlags),
	}
}

// Start 启动调度循环，直到上下文取消。单次同步失败只记录日志，不终止循环。
func (s *Scheduler) Start(ctx context.Context) error {
	if s.fetcher == nil || s.store == nil || s.processor == nil || s.rec == nil {
		return fmt.Errorf("scheduler missing dependencies")
	}

	g, ctx := errgroup.WithContext(ctx)

	if s.cron != nil {
		s.logf("start cron schedule %q", s.cronSpec)
		g.Go(func() error {
			return s.startCron(ctx)
		})
	} else {
		s.logf("start interval schedule %s", s.interval)
		tick := s.newTicker(s.interval)
		ch := tick.C()

		g.Go(func() error {
			defer tick.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ch:
					s.tick(ctx)
				drain:
					for {
						select {
						case <-ch:
							continue
						default:
							break drain
						}
					}
				}
			}
		})
	}

	return g.Wait()
}

// RunOnce 对外暴露单次同步接口，便于手动刷新；已有同步在进行时直接返回 Busy。
func (s *Scheduler) RunOnce(ctx context.Context) (Summary, error) {
	return s.runOnce(ctx)
}

func (s *Scheduler) tick(ctx context.Context) {
	sum, err := s.runOnce(ctx)
	if err != nil {
		s.logf("sync failed: %v", err)
		return
	}
	if !sum.Busy {
		s.logf("sync done fetched=%d new=%d processed=%d skipped=%d created=%d upgraded=%d merged=%d",
			sum.Fetched, sum.New, sum.Processed, sum.Skipped, sum.Created, sum.Upgraded, sum.Merged)
	}
}

func (s *Scheduler) runOnce(ctx context.Context) (Summary, error) {
	if s.running.Swap(true) {
		return Summary{Busy: true}, nil
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var sum Summary
	msgs, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return sum, fmt.Errorf("fetch messages: %w", err)
	}
	sum.Fetched = len(msgs)

	upserted, err := s.store.UpsertRawMessages(ctx, msgs)
	if err != nil {
		return sum, fmt.Errorf("upsert raw messages: %w", err)
	}
	sum.New = upserted.Created

	var changed []reconcile.Result
	for {
		pending, err := s.store.ListRawMessages(ctx, storage.RawMessageQuery{Status: model.RawMessagePending, Limit: s.batchSize})
		if err != nil {
			return sum, fmt.Errorf("list raw messages: %w", err)
		}

		for _, raw := range pending {
			res, err := s.handle(ctx, raw, &sum)
			if err != nil {
				return sum, err
			}
			if res != nil && res.Changed() {
				changed = append(changed, *res)
			}
		}
		if len(pending) < s.batchSize {
			break
		}
	}

	if s.notif != nil && len(changed) > 0 {
		if err := s.notif.Notify(ctx, changed); err != nil {
			return sum, fmt.Errorf("notify: %w", err)
		}
	}
	return sum, nil
}

// handle 处理一封原始邮件并更新其状态；存储或合并端口出错时返回错误，邮件保持 pending。
func (s *Scheduler) handle(ctx context.Context, raw model.RawMessage, sum *Summary) (*reconcile.Result, error) {
	res, err := s.processor.Process(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("process message %s: %w", raw.MessageID, err)
	}

	update := storage.RawMessageUpdate{Status: model.RawMessageSkipped, Reason: res.Reason, Details: res.Trace}
	var merged *reconcile.Result
	if res.Outcome == processor.ResultAccepted && res.Job != nil {
		out, err := s.rec.SaveJob(ctx, *res.Job)
		switch {
		case err == nil:
			merged = &out
			update.Status = model.RawMessageProcessed
			update.Reason = ""
			if update.Details == nil {
				update.Details = map[string]any{}
			}
			update.Details["merge"] = string(out.Outcome)
			if out.MatchedID != "" {
				update.Details["matched_id"] = out.MatchedID
			}
			countOutcome(sum, out.Outcome)
		case errors.Is(err, reconcile.ErrInvalidStatus), errors.Is(err, reconcile.ErrMissingID), errors.Is(err, reconcile.ErrMissingTitle):
			update.Reason = err.Error()
		default:
			return nil, fmt.Errorf("save message %s: %w", raw.MessageID, err)
		}
	}

	if update.Status == model.RawMessageProcessed {
		sum.Processed++
	} else {
		sum.Skipped++
	}
	if err := s.store.UpdateRawMessageStatus(ctx, raw.ID, update); err != nil {
		return nil, fmt.Errorf("update raw message status: %w", err)
	}
	return merged, nil
}

func countOutcome(sum *Summary, o reconcile.Outcome) {
	switch o {
	case reconcile.OutcomeCreated:
		sum.Created++
	case reconcile.OutcomeUpgraded:
		sum.Upgraded++
	case reconcile.OutcomeMerged:
		sum.Merged++
	default:
		sum.Unchanged++
	}
}

func (s *Scheduler) logf(format string, args ...any) {
	if s.logger == nil {
		s.logger = log.New(os.Stdout, "[scheduler] ", log.LstdFlags)
	}
	s.logger.Printf(format, args...)
}

func defaultTicker(d time.Duration) ticker {
	t := time.NewTicker(d)
	return tickerWrapper{t}
}

type tickerWrapper struct {
	*time.Ticker
}

func (t tickerWrapper) C() <-chan time.Time { return t.Ticker.C }
func (t tickerWrapper) Stop()               { t.Ticker.Stop() }
