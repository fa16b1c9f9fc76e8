package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jellycore/oracle/internal/log"
	"github.com/jellycore/oracle/internal/memory"
	"github.com/jellycore/oracle/internal/store"
)

// ProcedureStore is the procedural-memory capability these endpoints
// consume. *memory.Procedures satisfies it.
type ProcedureStore interface {
	Learn(ctx context.Context, trigger string, steps []string, source memory.ProcedureSource) (*memory.Procedure, error)
	RecordUsage(ctx context.Context, id string) (*memory.Procedure, error)
	Find(ctx context.Context, situation string, limit int) ([]*memory.Procedure, error)
}

// ProceduralHandler serves procedural memory.
type ProceduralHandler struct {
	procs  ProcedureStore
	logger log.Logger
}

// NewProceduralHandler creates a procedural handler.
func NewProceduralHandler(procs ProcedureStore, logger log.Logger) *ProceduralHandler {
	return &ProceduralHandler{procs: procs, logger: logger}
}

// RegisterRoutes registers procedural routes on the given mux.
func (h *ProceduralHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /procedural", h.find)
	mux.HandleFunc("POST /procedural", h.learn)
	mux.HandleFunc("POST /procedural/usage", h.recordUsage)
}

// find handles GET /procedural?q=...&limit=...
func (h *ProceduralHandler) find(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "q parameter is required")
		return
	}
	limit := parseIntParam(r, "limit", store.DefaultSearchLimit, 1, store.MaxSearchLimit)

	procs, err := h.procs.Find(r.Context(), q, limit)
	if err != nil {
		h.logger.Error("procedure lookup failed", "error", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "procedural_failed", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"procedures": procs,
		"total":      len(procs),
	})
}

// LearnProcedureRequest is the request body for POST /procedural.
type LearnProcedureRequest struct {
	Trigger   string   `json:"trigger"`
	Procedure []string `json:"procedure"`
	Source    string   `json:"source,omitempty"`
}

// learn handles POST /procedural: learn a new procedure or merge into
// an existing one with the same trigger.
func (h *ProceduralHandler) learn(w http.ResponseWriter, r *http.Request) {
	var req LearnProcedureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body is not valid JSON")
		return
	}

	proc, err := h.procs.Learn(r.Context(), req.Trigger, req.Procedure, memory.ProcedureSource(req.Source))
	if err != nil {
		if badInput(err) {
			writeError(w, http.StatusBadRequest, "invalid_procedure", err.Error())
			return
		}
		h.logger.Error("procedure learn failed", "error", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "procedural_failed", "")
		return
	}

	status := http.StatusCreated
	if proc.SuccessCount > 1 {
		// Merged into an existing procedure rather than created.
		status = http.StatusOK
	}
	writeJSON(w, status, proc)
}

// RecordUsageRequest is the request body for POST /procedural/usage.
type RecordUsageRequest struct {
	ID string `json:"id"`
}

// recordUsage handles POST /procedural/usage.
func (h *ProceduralHandler) recordUsage(w http.ResponseWriter, r *http.Request) {
	var req RecordUsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body is not valid JSON")
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "missing_id", "id is required")
		return
	}

	proc, err := h.procs.RecordUsage(r.Context(), req.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "procedure_not_found", "")
		return
	case err != nil:
		h.logger.Error("usage record failed", "error", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "procedural_failed", "")
		return
	}
	writeJSON(w, http.StatusOK, proc)
}
