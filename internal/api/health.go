package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jellycore/oracle/internal/log"
)

// SidecarChecker reports Thai NLP sidecar reachability. *nlp.Client
// satisfies it.
type SidecarChecker interface {
	Healthy(ctx context.Context) bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	pool    *pgxpool.Pool
	sidecar SidecarChecker
	started time.Time
	logger  log.Logger
}

// NewHealthHandler creates a new health handler. pool is used for
// readiness checks and sidecar for collaborator reporting; both may be
// nil (tests, sidecar disabled).
func NewHealthHandler(pool *pgxpool.Pool, sidecar SidecarChecker, logger log.Logger) *HealthHandler {
	return &HealthHandler{pool: pool, sidecar: sidecar, started: time.Now(), logger: logger}
}

// RegisterRoutes registers health routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.liveness)
	mux.HandleFunc("GET /ready", h.readiness)
}

type healthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Sidecar string `json:"sidecar"`
}

// liveness reports process uptime and collaborator reachability. The
// sidecar being down never fails the check; retrieval degrades to
// local fallbacks.
func (h *HealthHandler) liveness(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Uptime:  time.Since(h.started).Round(time.Second).String(),
		Sidecar: "disabled",
	}
	if h.sidecar != nil {
		resp.Sidecar = "ok"
		if !h.sidecar.Healthy(r.Context()) {
			resp.Sidecar = "unreachable"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// readiness returns 200 OK if the database answers a ping.
func (h *HealthHandler) readiness(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		http.Error(w, "database pool not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.pool.Ping(r.Context()); err != nil {
		h.logger.Error("readiness check failed", "error", err)
		http.Error(w, "database not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
