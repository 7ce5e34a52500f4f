// Package router exposes the operator HTTP surface: liveness, sync status,
// metrics and manual sync triggers.
package router

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-sheet-sync/internal/dispatch"
	"github.com/wolfman30/clinic-sheet-sync/internal/health"
	httpmiddleware "github.com/wolfman30/clinic-sheet-sync/internal/http/middleware"
	"github.com/wolfman30/clinic-sheet-sync/internal/store"
	"github.com/wolfman30/clinic-sheet-sync/internal/syncrun"
	"github.com/wolfman30/clinic-sheet-sync/pkg/logging"
)

const (
	defaultStatusLimit = 20
	maxStatusLimit     = 200
)

// AttemptLister reads recent ledger rows.
type AttemptLister interface {
	Recent(ctx context.Context, limit int) ([]store.SyncAttempt, error)
}

// HealthChecker reports the batch health.
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Attempts       AttemptLister
	Health         HealthChecker
	Dispatcher     dispatch.Dispatcher
	Tabs           []syncrun.TabConfig
	Runtime        *syncrun.Runtime
	OpsToken       string
	// Triggers throttles the manual sync endpoints when set.
	Triggers       *httpmiddleware.TriggerLimiter
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()
	h := &handlers{cfg: cfg}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/healthz", h.liveness)
	if cfg.Health != nil {
		r.Get("/health/sync", h.syncHealth)
	}
	if cfg.Attempts != nil {
		r.Get("/status", h.status)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Dispatcher != nil {
		r.Group(func(ops chi.Router) {
			ops.Use(requireOpsToken(cfg.OpsToken))
			if cfg.Triggers != nil {
				ops.Use(cfg.Triggers.Middleware)
			}
			ops.Post("/sync", h.syncAll)
			ops.Post("/sync/{tab}", h.syncTab)
			ops.Post("/write-back/{tab}", h.writeBack)
		})
	}
	return r
}

type handlers struct {
	cfg *Config
}

func (h *handlers) liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) syncHealth(w http.ResponseWriter, r *http.Request) {
	rep := h.cfg.Health.Check(r.Context())
	status := http.StatusOK
	if !rep.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

type statusResponse struct {
	SyncInProgress bool                `json:"sync_in_progress"`
	Attempts       []store.SyncAttempt `json:"attempts"`
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	limit := defaultStatusLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxStatusLimit)
	}
	attempts, err := h.cfg.Attempts.Recent(r.Context(), limit)
	if err != nil {
		h.logger().Error("failed to list attempts", "error", err)
		http.Error(w, "failed to list attempts", http.StatusInternalServerError)
		return
	}
	if attempts == nil {
		attempts = []store.SyncAttempt{}
	}
	resp := statusResponse{Attempts: attempts}
	if h.cfg.Runtime != nil {
		resp.SyncInProgress = h.cfg.Runtime.Running()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) syncAll(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, dispatch.Job{Kind: dispatch.JobSyncAll})
}

func (h *handlers) syncTab(w http.ResponseWriter, r *http.Request) {
	tab, ok := h.lookupTab(chi.URLParam(r, "tab"))
	if !ok {
		http.Error(w, "unknown tab", http.StatusNotFound)
		return
	}
	h.dispatch(w, r, dispatch.Job{Kind: dispatch.JobSyncTab, Tab: tab})
}

func (h *handlers) writeBack(w http.ResponseWriter, r *http.Request) {
	tab, ok := h.lookupTab(chi.URLParam(r, "tab"))
	if !ok {
		http.Error(w, "unknown tab", http.StatusNotFound)
		return
	}
	h.dispatch(w, r, dispatch.Job{Kind: dispatch.JobWriteBack, Tab: tab})
}

func (h *handlers) dispatch(w http.ResponseWriter, r *http.Request, job dispatch.Job) {
	accepted, err := h.cfg.Dispatcher.Dispatch(r.Context(), job)
	if err != nil {
		h.logger().Error("failed to dispatch job", "kind", job.Kind, "tab", job.Tab.Tab, "error", err)
		http.Error(w, "failed to dispatch job", http.StatusInternalServerError)
		return
	}
	if !accepted {
		writeJSON(w, http.StatusConflict, map[string]any{"accepted": false, "reason": "job already queued or running"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "kind": job.Kind})
}

func (h *handlers) lookupTab(name string) (syncrun.TabConfig, bool) {
	for _, t := range h.cfg.Tabs {
		if t.Tab == name {
			return t, true
		}
	}
	return syncrun.TabConfig{}, false
}

func (h *handlers) logger() *logging.Logger {
	if h.cfg.Logger == nil {
		return logging.Default()
	}
	return h.cfg.Logger
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
