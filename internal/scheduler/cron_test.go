package scheduler

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kuko798/appli.io/internal/model"
	"github.com/kuko798/appli.io/internal/processor"
	"github.com/kuko798/appli.io/internal/reconcile"
	"github.com/kuko798/appli.io/internal/storage"
)

func sampleMessages() []model.RawMessage {
	return []model.RawMessage{
		{
			MessageID:  "g1",
			Subject:    "Interview for Senior Software Engineer",
			From:       "Acme <talent@acme.com>",
			Body:       "We would like to schedule a phone interview next week.",
			DateHeader: "Mon, 04 Mar 2024 10:00:00 +0000",
		},
		{
			MessageID: "g2",
			Subject:   "Your weekly job alert",
			From:      "alerts@jobs.example.com",
			Body:      "20 new Engineer roles",
		},
		{
			MessageID: "g3",
			Subject:   "Lunch on Friday?",
			From:      "friend@example.com",
			Body:      "Let me know.",
		},
	}
}

func newTestScheduler(f *stubFetcher, s *stubStore, rec Reconciler, n Notifier, cfg Config) *Scheduler {
	sched := NewScheduler(f, s, processor.New(processor.Config{}, nil, nil, nil, nil), rec, n, cfg)
	sched.logger = log.New(io.Discard, "", 0)
	return sched
}

func TestSchedulerRunOnce(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{msgs: sampleMessages()}
	s := &stubStore{}
	rec := reconcile.NewStore(reconcile.NewMemoryPort(), reconcile.Config{})
	n := &stubNotifier{}

	sched := newTestScheduler(f, s, rec, n, Config{Interval: "1h", Timeout: "5s"})

	sum, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if sum.Fetched != 3 || sum.New != 3 {
		t.Fatalf("expected 3 fetched and new, got %+v", sum)
	}
	if sum.Processed != 1 || sum.Skipped != 2 || sum.Created != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if f.calls.Load() != 1 {
		t.Fatalf("expected fetcher called once, got %d", f.calls.Load())
	}

	jobs, err := rec.Jobs(context.Background())
	if err != nil {
		t.Fatalf("Jobs error: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Company != "Acme" || jobs[0].Status != model.StatusInterview {
		t.Fatalf("unexpected reconciled jobs: %+v", jobs)
	}

	if got := s.status("g1"); got.Status != model.RawMessageProcessed || got.Details["merge"] != string(reconcile.OutcomeCreated) {
		t.Fatalf("expected g1 processed with merge trace, got %+v", got)
	}
	if got := s.status("g2"); got.Status != model.RawMessageSkipped || !strings.HasPrefix(got.Reason, "promotional") {
		t.Fatalf("expected g2 skipped as promotional, got %+v", got)
	}
	if got := s.status("g3"); got.Status != model.RawMessageSkipped || got.Reason != "no role found" {
		t.Fatalf("expected g3 skipped without role, got %+v", got)
	}

	if n.calls.Load() != 1 || n.count() != 1 {
		t.Fatalf("expected one notification with one result, got calls=%d results=%d", n.calls.Load(), n.count())
	}

	// A second run sees the same messages but has nothing pending.
	sum, err = sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second RunOnce error: %v", err)
	}
	if sum.New != 0 || sum.Processed != 0 || sum.Skipped != 0 {
		t.Fatalf("expected idle second run, got %+v", sum)
	}
	if n.calls.Load() != 1 {
		t.Fatalf("expected no new notification, got %d", n.calls.Load())
	}
}

func TestSchedulerUpgradeNotifies(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	port := reconcile.NewMemoryPort(model.JobRecord{ID: "old", Company: "Acme", Title: "Senior Software Engineer", Status: model.StatusApplied, Date: day})
	rec := reconcile.NewStore(port, reconcile.Config{})
	n := &stubNotifier{}

	f := &stubFetcher{msgs: sampleMessages()[:1]}
	sched := newTestScheduler(f, &stubStore{}, rec, n, Config{})

	sum, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if sum.Merged != 1 || sum.Created != 0 {
		t.Fatalf("expected similarity merge, got %+v", sum)
	}
	if n.count() != 1 {
		t.Fatalf("expected merged result notified, got %d", n.count())
	}
}

func TestSchedulerDrainsInBatches(t *testing.T) {
	t.Parallel()

	msgs := make([]model.RawMessage, 0, 5)
	for i := 0; i < 5; i++ {
		m := sampleMessages()[2]
		m.MessageID = "x" + string(rune('a'+i))
		msgs = append(msgs, m)
	}
	s := &stubStore{}
	sched := newTestScheduler(&stubFetcher{msgs: msgs}, s, reconcile.NewStore(reconcile.NewMemoryPort(), reconcile.Config{}), nil, Config{BatchSize: 2})

	sum, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if sum.Skipped != 5 {
		t.Fatalf("expected all 5 handled, got %+v", sum)
	}
	if s.lists.Load() != 3 {
		t.Fatalf("expected 3 batch reads, got %d", s.lists.Load())
	}
}

func TestSchedulerPortErrorKeepsPending(t *testing.T) {
	t.Parallel()

	s := &stubStore{}
	rec := reconcile.NewStore(failingPort{}, reconcile.Config{})
	sched := newTestScheduler(&stubFetcher{msgs: sampleMessages()[:1]}, s, rec, nil, Config{})

	_, err := sched.RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "g1") {
		t.Fatalf("expected save error naming the message, got %v", err)
	}
	if got := s.status("g1"); got.Status != model.RawMessagePending {
		t.Fatalf("expected g1 left pending, got %s", got.Status)
	}
}

func TestSchedulerFetchError(t *testing.T) {
	t.Parallel()

	s := &stubStore{}
	sched := newTestScheduler(&stubFetcher{err: errors.New("boom")}, s, reconcile.NewStore(reconcile.NewMemoryPort(), reconcile.Config{}), nil, Config{})

	if _, err := sched.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected fetch error")
	}
	if s.upserts.Load() != 0 {
		t.Fatalf("expected no upsert after fetch error")
	}
}

func TestSchedulerNoOverlap(t *testing.T) {
	t.Parallel()

	tickCh := make(chan time.Time, 4)
	st := &stubTicker{ch: tickCh}

	f := &stubFetcher{
		msgs:  sampleMessages()[:1],
		block: make(chan struct{}),
	}
	s := &stubStore{}

	sched := newTestScheduler(f, s, reconcile.NewStore(reconcile.NewMemoryPort(), reconcile.Config{}), nil, Config{Interval: "100ms", Timeout: "5s"})
	sched.newTicker = func(d time.Duration) ticker { return st }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Start(ctx)
	}()

	// Trigger first tick; fetcher blocks until we release.
	tickCh <- time.Now()
	time.Sleep(20 * time.Millisecond)

	// Manual refresh while the tick is still running.
	sum, err := sched.RunOnce(context.Background())
	if err != nil || !sum.Busy {
		t.Fatalf("expected busy summary during running sync, got %+v err=%v", sum, err)
	}

	// Second tick is queued behind the first and drained.
	tickCh <- time.Now()
	close(f.block)

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if f.calls.Load() != 1 {
		t.Fatalf("expected fetcher called once due to overlap prevention, got %d", f.calls.Load())
	}
	if s.upserts.Load() != 1 {
		t.Fatalf("expected store called once, got %d", s.upserts.Load())
	}
}

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	d, cfg := parseSchedule("30m")
	if d != 30*time.Minute || cfg.schedule != nil {
		t.Fatalf("expected 30m interval, got %s %+v", d, cfg)
	}
	d, cfg = parseSchedule("0 */6 * * *")
	if d != 0 || cfg.schedule == nil {
		t.Fatalf("expected cron schedule, got %s", d)
	}
	next, err := cfg.schedule.next(time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("next error: %v", err)
	}
	if want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
	if d, _ := parseSchedule("every tuesday"); d != 2*time.Hour {
		t.Fatalf("expected fallback 2h, got %s", d)
	}
}

func TestCronRangesAndSteps(t *testing.T) {
	t.Parallel()

	sched, err := parseCronSpec("30 9-17/4 * * 1-5")
	if err != nil {
		t.Fatalf("parseCronSpec error: %v", err)
	}

	// Saturday morning rolls over to Monday.
	next, err := sched.next(time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("next error: %v", err)
	}
	if want := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}

	next, _ = sched.next(next)
	if want := time.Date(2024, 3, 4, 13, 30, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}

	for _, bad := range []string{"61 * * * *", "5-1 * * * *", "* * *", "*/0 * * * *", "* * 0 * *"} {
		if _, err := parseCronSpec(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

// --- stubs ---

type stubFetcher struct {
	msgs  []model.RawMessage
	err   error
	calls atomic.Int32
	block chan struct{}
}

func (s *stubFetcher) Fetch(ctx context.Context) ([]model.RawMessage, error) {
	s.calls.Add(1)
	if s.block != nil {
		<-s.block
	}
	return s.msgs, s.err
}

type stubStore struct {
	upserts atomic.Int32
	lists   atomic.Int32
	mu      sync.Mutex
	rows    []model.RawMessage
}

func (s *stubStore) UpsertRawMessages(ctx context.Context, msgs []model.RawMessage) (storage.RawUpsertResult, error) {
	s.upserts.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()

	var res storage.RawUpsertResult
	for _, m := range msgs {
		if s.find(m.MessageID) >= 0 {
			continue
		}
		m.ID = uint(len(s.rows) + 1)
		m.Status = model.RawMessagePending
		s.rows = append(s.rows, m)
		res.Created++
		res.NewMessages = append(res.NewMessages, m)
	}
	return res, nil
}

func (s *stubStore) ListRawMessages(ctx context.Context, query storage.RawMessageQuery) ([]model.RawMessage, error) {
	s.lists.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.RawMessage
	for _, m := range s.rows {
		if m.Status == query.Status && len(out) < query.Limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *stubStore) UpdateRawMessageStatus(ctx context.Context, id uint, update storage.RawMessageUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == id {
			s.rows[i].Status = update.Status
			s.rows[i].Reason = update.Reason
			s.rows[i].Details = update.Details
			return nil
		}
	}
	return errors.New("not found")
}

func (s *stubStore) status(messageID string) model.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.find(messageID); i >= 0 {
		return s.rows[i]
	}
	return model.RawMessage{}
}

func (s *stubStore) find(messageID string) int {
	for i, m := range s.rows {
		if m.MessageID == messageID {
			return i
		}
	}
	return -1
}

type failingPort struct{}

func (failingPort) GetJobs(ctx context.Context) ([]model.JobRecord, error) {
	return nil, errors.New("disk on fire")
}

func (failingPort) SetJobs(ctx context.Context, jobs []model.JobRecord) error {
	return errors.New("disk on fire")
}

type stubTicker struct {
	ch chan time.Time
}

func (s *stubTicker) C() <-chan time.Time { return s.ch }
func (s *stubTicker) Stop()               {}

type stubNotifier struct {
	calls   atomic.Int32
	mu      sync.Mutex
	results []reconcile.Result
}

func (n *stubNotifier) Notify(ctx context.Context, results []reconcile.Result) error {
	n.calls.Add(1)
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, results...)
	return ctx.Err()
}

func (n *stubNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.results)
}
