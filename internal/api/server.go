package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kuko798/appli.io/internal/extractor"
	"github.com/kuko798/appli.io/internal/model"
	"github.com/kuko798/appli.io/internal/processor"
	"github.com/kuko798/appli.io/internal/reconcile"
	"github.com/kuko798/appli.io/internal/scheduler"
	"github.com/kuko798/appli.io/internal/storage"

	"github.com/google/uuid"
)

// Store 抽象只读查询接口。
type Store interface {
	ListJobs(ctx context.Context, opts storage.JobQueryOptions) ([]model.JobRecord, error)
	CountJobs(ctx context.Context, opts storage.JobQueryOptions) (int64, error)
	CountByStatus(ctx context.Context) (map[model.Status]int64, error)
}

// Reconciler 抽象所有写操作，保证与同步共用同一把锁。
type Reconciler interface {
	SaveJob(ctx context.Context, candidate model.JobRecord) (reconcile.Result, error)
	AddManual(ctx context.Context, rec model.JobRecord) (model.JobRecord, error)
	SetStatus(ctx context.Context, id string, status model.Status) (model.JobRecord, error)
	Delete(ctx context.Context, id string) error
}

// Scheduler 抽象调度接口。
type Scheduler interface {
	RunOnce(ctx context.Context) (scheduler.Summary, error)
}

// Analyzer 提供诊断分类。
type Analyzer interface {
	Analyze(subject, body, from string) processor.Analysis
}

// Deps 汇总 handler 依赖，Analyzer 为空时 /api/classify 返回 503。
type Deps struct {
	Store      Store
	Reconciler Reconciler
	Scheduler  Scheduler
	Analyzer   Analyzer
	Logger     *log.Logger
	Now        func() time.Time
}

// ManualJobRequest 为手动录入请求。
type ManualJobRequest struct {
	Company string `json:"company"`
	Title   string `json:"title"`
	Status  string `json:"status"`
	Date    string `json:"date"`
}

// StatusRequest 为状态修改请求。
type StatusRequest struct {
	Status string `json:"status"`
}

// PageEventRequest 为浏览器上报的申请确认页。
type PageEventRequest struct {
	URL  string `json:"url"`
	HTML string `json:"html"`
}

// ClassifyRequest 为诊断分类请求。
type ClassifyRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	From    string `json:"from"`
}

// StatsResponse 为统计输出。
type StatsResponse struct {
	Total    int64                  `json:"total"`
	ByStatus map[model.Status]int64 `json:"by_status"`
}

const maxBodyBytes = 2 << 20

type handler struct {
	Deps
}

// NewHandler 构造 HTTP 多路复用器。
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = log.New(os.Stdout, "[server] ", log.LstdFlags)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	h := &handler{Deps: deps}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /api/jobs", h.listJobs)
	mux.HandleFunc("POST /api/jobs", h.createJob)
	mux.HandleFunc("PATCH /api/jobs/{id}", h.updateStatus)
	mux.HandleFunc("DELETE /api/jobs/{id}", h.deleteJob)
	mux.HandleFunc("GET /api/stats", h.stats)
	mux.HandleFunc("POST /api/refresh", h.refresh)
	mux.HandleFunc("POST /api/page-events", h.pageEvent)
	mux.HandleFunc("POST /api/classify", h.classify)
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "appli.io api"})
	})
	return mux
}

func (h *handler) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 20
	if l := q.Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			if v > 100 {
				v = 100
			}
			limit = v
		}
	}
	page := 1
	if p := q.Get("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	opts := storage.JobQueryOptions{Limit: limit + 1, Offset: (page - 1) * limit}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		st, err := model.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		opts.Status = st
	}

	jobs, err := h.Store.ListJobs(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	total, err := h.Store.CountJobs(r.Context(), storage.JobQueryOptions{Status: opts.Status})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	hasMore := false
	if len(jobs) > limit {
		hasMore = true
		jobs = jobs[:limit]
	}
	if jobs == nil {
		jobs = []model.JobRecord{}
	}

	w.Header().Set("X-Page", strconv.Itoa(page))
	w.Header().Set("X-Limit", strconv.Itoa(limit))
	w.Header().Set("X-Has-More", strconv.FormatBool(hasMore))
	w.Header().Set("X-Total", strconv.FormatInt(total, 10))
	writeJSON(w, http.StatusOK, jobs)
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Store.CountByStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	writeJSON(w, http.StatusOK, StatsResponse{Total: total, ByStatus: counts})
}

func (h *handler) createJob(w http.ResponseWriter, r *http.Request) {
	var req ManualJobRequest
	if !decode(w, r, &req) {
		return
	}

	rec := model.JobRecord{Company: strings.TrimSpace(req.Company), Title: strings.TrimSpace(req.Title), Status: model.StatusApplied}
	if req.Status != "" {
		st, err := model.ParseStatus(req.Status)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		rec.Status = st
	}
	if req.Date != "" {
		d, err := parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		rec.Date = d
	}

	saved, err := h.Reconciler.AddManual(r.Context(), rec)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	h.Logger.Printf("manual entry id=%s company=%s title=%s", saved.ID, saved.Company, saved.Title)
	writeJSON(w, http.StatusCreated, saved)
}

func (h *handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !decode(w, r, &req) {
		return
	}
	st, err := model.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := h.Reconciler.SetStatus(r.Context(), r.PathValue("id"), st)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) deleteJob(w http.ResponseWriter, r *http.Request) {
	if err := h.Reconciler.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "sync disabled"})
		return
	}
	sum, err := h.Scheduler.RunOnce(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if sum.Busy {
		writeJSON(w, http.StatusConflict, sum)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *handler) pageEvent(w http.ResponseWriter, r *http.Request) {
	var req PageEventRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url required"})
		return
	}

	app, ok, err := extractor.DetectApplication(req.URL, strings.NewReader(req.HTML))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]bool{"detected": false})
		return
	}

	res, err := h.Reconciler.SaveJob(r.Context(), model.JobRecord{
		ID:      "page_" + uuid.NewString(),
		Company: app.Company,
		Title:   app.Role,
		Status:  app.Status,
		Date:    h.Now(),
		Source:  model.SourcePage,
		URL:     app.URL,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	h.Logger.Printf("page event url=%s outcome=%s id=%s", app.URL, res.Outcome, res.Job.ID)
	writeJSON(w, http.StatusOK, map[string]any{"detected": true, "result": res})
}

func (h *handler) classify(w http.ResponseWriter, r *http.Request) {
	if h.Analyzer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "classifier disabled"})
		return
	}
	var req ClassifyRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.Analyzer.Analyze(req.Subject, req.Body, req.From))
}

// parseDate 接受 RFC3339 或 YYYY-MM-DD。
func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, reconcile.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, reconcile.ErrInvalidStatus), errors.Is(err, reconcile.ErrMissingID), errors.Is(err, reconcile.ErrMissingTitle):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
