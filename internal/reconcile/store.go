package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kuko798/appli.io/internal/model"

	"github.com/google/uuid"
)

var (
	// ErrInvalidStatus 状态不在四个取值之内。
	ErrInvalidStatus = errors.New("invalid status")
	// ErrMissingID 候选记录缺少 id。
	ErrMissingID = errors.New("missing id")
	// ErrMissingTitle 新建记录缺少职位。
	ErrMissingTitle = errors.New("missing title")
	// ErrNotFound 指定 id 的记录不存在。
	ErrNotFound = errors.New("job not found")
)

// DefaultSimilarityWindow 为同公司记录视为同一申请的最大日期间隔。
const DefaultSimilarityWindow = 60 * 24 * time.Hour

// Port 是记录集合的持久化接口，每次合并整体读取、整体写回。
type Port interface {
	GetJobs(ctx context.Context) ([]model.JobRecord, error)
	SetJobs(ctx context.Context, jobs []model.JobRecord) error
}

// Config 定义合并策略。
type Config struct {
	SimilarityWindow string `yaml:"similarity_window" json:"similarity_window"`
}

// Outcome 描述一次 SaveJob 的结果。
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpgraded  Outcome = "upgraded"
	OutcomeMerged    Outcome = "merged"
	OutcomeUnchanged Outcome = "unchanged"
)

// Result 为合并结果。Job 是写入（或保持）后的记录；Previous 是合并前的状态，新建时为空。
type Result struct {
	Outcome   Outcome         `json:"outcome"`
	Job       model.JobRecord `json:"job"`
	Previous  model.Status    `json:"previous,omitempty"`
	MatchedID string          `json:"matchedId,omitempty"`
}

// Changed 报告集合是否被写入。
func (r Result) Changed() bool {
	return r.Outcome == OutcomeCreated || r.Outcome == OutcomeUpgraded || r.Outcome == OutcomeMerged
}

// Store 将候选记录合并进集合：先按 id，再按公司与日期相近程度匹配，状态只升不降。
// 所有读改写都在同一把锁内完成。
type Store struct {
	mu     sync.Mutex
	port   Port
	window time.Duration
	now    func() time.Time
	logger *log.Logger
}

// NewStore 创建合并器，窗口无法解析时记录日志并使用默认 60 天。
func NewStore(port Port, cfg Config) *Store {
	s := &Store{
		port:   port,
		window: DefaultSimilarityWindow,
		now:    time.Now,
		logger: log.New(os.Stdout, "[reconcile] ", log.LstdFlags),
	}
	window, err := ParseWindow(cfg.SimilarityWindow)
	if err != nil {
		s.logger.Printf("%v, using %s", err, DefaultSimilarityWindow)
		return s
	}
	s.window = window
	return s
}

// ParseWindow 解析合并窗口，接受 Go duration（"72h"）或天数（"60d"），空串返回默认值。
func ParseWindow(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return DefaultSimilarityWindow, nil
	}
	var (
		d   time.Duration
		err error
	)
	if days, ok := strings.CutSuffix(v, "d"); ok {
		var n int
		n, err = strconv.Atoi(days)
		d = time.Duration(n) * 24 * time.Hour
	} else {
		d, err = time.ParseDuration(v)
	}
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid similarity_window %q", v)
	}
	return d, nil
}

// SaveJob 合并一条候选记录。
func (s *Store) SaveJob(ctx context.Context, candidate model.JobRecord) (Result, error) {
	if !candidate.Status.Valid() {
		return Result{}, fmt.Errorf("save job %s: %w: %q", candidate.ID, ErrInvalidStatus, candidate.Status)
	}
	if strings.TrimSpace(candidate.ID) == "" {
		return Result{}, fmt.Errorf("save job: %w", ErrMissingID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.port.GetJobs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("get jobs: %w", err)
	}
	now := s.now()

	if i := indexOf(jobs, candidate.ID); i >= 0 {
		existing := jobs[i]
		if candidate.Status.Priority() <= existing.Status.Priority() {
			return Result{Outcome: OutcomeUnchanged, Job: existing, Previous: existing.Status, MatchedID: existing.ID}, nil
		}
		updated := mergeRecord(existing, candidate)
		updated.LastUpdated = now
		jobs[i] = updated
		if err := s.port.SetJobs(ctx, jobs); err != nil {
			return Result{}, fmt.Errorf("set jobs: %w", err)
		}
		s.logf("upgraded id=%s %s -> %s", updated.ID, existing.Status, updated.Status)
		return Result{Outcome: OutcomeUpgraded, Job: updated, Previous: existing.Status, MatchedID: existing.ID}, nil
	}

	if i := s.similar(jobs, candidate); i >= 0 {
		existing := jobs[i]
		if candidate.Status.Priority() <= existing.Status.Priority() {
			return Result{Outcome: OutcomeUnchanged, Job: existing, Previous: existing.Status, MatchedID: existing.ID}, nil
		}
		jobs[i].Status = candidate.Status
		jobs[i].LastUpdated = now
		if err := s.port.SetJobs(ctx, jobs); err != nil {
			return Result{}, fmt.Errorf("set jobs: %w", err)
		}
		s.logf("merged candidate=%s into id=%s company=%q %s -> %s", candidate.ID, existing.ID, existing.Company, existing.Status, candidate.Status)
		return Result{Outcome: OutcomeMerged, Job: jobs[i], Previous: existing.Status, MatchedID: existing.ID}, nil
	}

	if strings.TrimSpace(candidate.Title) == "" {
		return Result{}, fmt.Errorf("save job %s: %w", candidate.ID, ErrMissingTitle)
	}
	created := candidate
	created.LastUpdated = now
	jobs = append(jobs, created)
	if err := s.port.SetJobs(ctx, jobs); err != nil {
		return Result{}, fmt.Errorf("set jobs: %w", err)
	}
	s.logf("created id=%s company=%q title=%q status=%s", created.ID, created.Company, created.Title, created.Status)
	return Result{Outcome: OutcomeCreated, Job: created}, nil
}

// Apply 在锁内对整个集合执行一次读改写，fn 返回错误时不写回。
func (s *Store) Apply(ctx context.Context, fn func(jobs []model.JobRecord) ([]model.JobRecord, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.port.GetJobs(ctx)
	if err != nil {
		return fmt.Errorf("get jobs: %w", err)
	}
	next, err := fn(jobs)
	if err != nil {
		return err
	}
	if err := s.port.SetJobs(ctx, next); err != nil {
		return fmt.Errorf("set jobs: %w", err)
	}
	return nil
}

// AddManual 追加一条手工记录，id 由系统生成，不参与相似合并。
func (s *Store) AddManual(ctx context.Context, rec model.JobRecord) (model.JobRecord, error) {
	if !rec.Status.Valid() {
		return model.JobRecord{}, fmt.Errorf("add manual job: %w: %q", ErrInvalidStatus, rec.Status)
	}
	if strings.TrimSpace(rec.Title) == "" {
		return model.JobRecord{}, fmt.Errorf("add manual job: %w", ErrMissingTitle)
	}

	now := s.now()
	rec.ID = "manual_" + uuid.NewString()
	rec.ManualEntry = true
	rec.Source = model.SourceManual
	rec.LastUpdated = now
	if strings.TrimSpace(rec.Company) == "" {
		rec.Company = "Unknown"
	}
	if rec.Date.IsZero() {
		rec.Date = now
	}

	err := s.Apply(ctx, func(jobs []model.JobRecord) ([]model.JobRecord, error) {
		return append(jobs, rec), nil
	})
	if err != nil {
		return model.JobRecord{}, err
	}
	s.logf("manual entry id=%s company=%q title=%q", rec.ID, rec.Company, rec.Title)
	return rec, nil
}

// SetStatus 是用户直接修改状态，允许降级。
func (s *Store) SetStatus(ctx context.Context, id string, status model.Status) (model.JobRecord, error) {
	if !status.Valid() {
		return model.JobRecord{}, fmt.Errorf("set status: %w: %q", ErrInvalidStatus, status)
	}

	var updated model.JobRecord
	err := s.Apply(ctx, func(jobs []model.JobRecord) ([]model.JobRecord, error) {
		i := indexOf(jobs, id)
		if i < 0 {
			return nil, fmt.Errorf("set status %s: %w", id, ErrNotFound)
		}
		jobs[i].Status = status
		jobs[i].LastUpdated = s.now()
		updated = jobs[i]
		return jobs, nil
	})
	if err != nil {
		return model.JobRecord{}, err
	}
	return updated, nil
}

// Delete 删除一条记录。
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.Apply(ctx, func(jobs []model.JobRecord) ([]model.JobRecord, error) {
		i := indexOf(jobs, id)
		if i < 0 {
			return nil, fmt.Errorf("delete %s: %w", id, ErrNotFound)
		}
		return append(jobs[:i], jobs[i+1:]...), nil
	})
}

// Jobs 返回当前集合。
func (s *Store) Jobs(ctx context.Context) ([]model.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.port.GetJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("get jobs: %w", err)
	}
	return jobs, nil
}

// similar 返回第一条公司相同且日期差严格小于窗口的记录，任一方缺少日期时不匹配。
func (s *Store) similar(jobs []model.JobRecord, candidate model.JobRecord) int {
	if candidate.Date.IsZero() {
		return -1
	}
	for i, j := range jobs {
		if j.Company != candidate.Company || j.Date.IsZero() {
			continue
		}
		diff := j.Date.Sub(candidate.Date)
		if diff < 0 {
			diff = -diff
		}
		if diff < s.window {
			return i
		}
	}
	return -1
}

// mergeRecord 用候选记录中的非零字段覆盖已有字段。
func mergeRecord(existing, candidate model.JobRecord) model.JobRecord {
	out := existing
	if candidate.Company != "" {
		out.Company = candidate.Company
	}
	if candidate.Title != "" {
		out.Title = candidate.Title
	}
	if candidate.Subject != "" {
		out.Subject = candidate.Subject
	}
	if candidate.Status != "" {
		out.Status = candidate.Status
	}
	if !candidate.Date.IsZero() {
		out.Date = candidate.Date
	}
	if candidate.ManualEntry {
		out.ManualEntry = true
	}
	if candidate.Source != "" {
		out.Source = candidate.Source
	}
	if candidate.URL != "" {
		out.URL = candidate.URL
	}
	return out
}

func indexOf(jobs []model.JobRecord, id string) int {
	for i, j := range jobs {
		if j.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) logf(format string, args ...any) {
	if s.logger == nil {
		s.logger = log.New(os.Stdout, "[reconcile] ", log.LstdFlags)
	}
	s.logger.Printf(format, args...)
}
