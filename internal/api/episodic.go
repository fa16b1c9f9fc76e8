package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/jellycore/oracle/internal/log"
	"github.com/jellycore/oracle/internal/memory"
	"github.com/jellycore/oracle/internal/store"
)

// EpisodeStore is the episodic-memory capability these endpoints
// consume. *memory.Episodes satisfies it.
type EpisodeStore interface {
	Record(ctx context.Context, ep *memory.Episode) (*memory.Episode, error)
	FindRelated(ctx context.Context, topic, userID string, limit int) ([]*memory.Episode, error)
}

// EpisodicHandler serves episodic memory.
type EpisodicHandler struct {
	eps    EpisodeStore
	logger log.Logger
}

// NewEpisodicHandler creates an episodic handler.
func NewEpisodicHandler(eps EpisodeStore, logger log.Logger) *EpisodicHandler {
	return &EpisodicHandler{eps: eps, logger: logger}
}

// RegisterRoutes registers episodic routes on the given mux.
func (h *EpisodicHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /episodic", h.find)
	mux.HandleFunc("POST /episodic", h.record)
}

// find handles GET /episodic?q=...&userId=...&limit=...
// Every returned episode gets its retention window extended.
func (h *EpisodicHandler) find(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "q parameter is required")
		return
	}
	userID := r.URL.Query().Get("userId")
	limit := parseIntParam(r, "limit", store.DefaultSearchLimit, 1, store.MaxSearchLimit)

	episodes, err := h.eps.FindRelated(r.Context(), q, userID, limit)
	if err != nil {
		h.logger.Error("episode lookup failed", "error", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "episodic_failed", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"episodes": episodes,
		"total":    len(episodes),
	})
}

// RecordEpisodeRequest is the request body for POST /episodic.
type RecordEpisodeRequest struct {
	UserID     string   `json:"userId,omitempty"`
	GroupID    string   `json:"groupId,omitempty"`
	Summary    string   `json:"summary"`
	Topics     []string `json:"topics,omitempty"`
	Outcome    string   `json:"outcome,omitempty"`
	DurationMs int64    `json:"durationMs,omitempty"`
}

// record handles POST /episodic.
func (h *EpisodicHandler) record(w http.ResponseWriter, r *http.Request) {
	var req RecordEpisodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body is not valid JSON")
		return
	}

	ep, err := h.eps.Record(r.Context(), &memory.Episode{
		UserID:     req.UserID,
		GroupID:    req.GroupID,
		Summary:    req.Summary,
		Topics:     req.Topics,
		Outcome:    memory.Outcome(req.Outcome),
		DurationMs: req.DurationMs,
	})
	if err != nil {
		if badInput(err) {
			writeError(w, http.StatusBadRequest, "invalid_episode", err.Error())
			return
		}
		h.logger.Error("episode record failed", "error", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "episodic_failed", "")
		return
	}
	writeJSON(w, http.StatusCreated, ep)
}
