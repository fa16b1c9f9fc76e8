package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/jellycore/oracle/internal/log"
	"github.com/jellycore/oracle/internal/memory"
)

// UserModelStore is the profile capability the user-model endpoints
// consume. *memory.UserModels satisfies it.
type UserModelStore interface {
	Get(ctx context.Context, userID string) (memory.Model, error)
	Update(ctx context.Context, userID string, patch map[string]any) (memory.Model, error)
	Reset(ctx context.Context, userID string) error
}

// UserModelHandler serves the per-user profile.
type UserModelHandler struct {
	users  UserModelStore
	logger log.Logger
}

// NewUserModelHandler creates a user-model handler.
func NewUserModelHandler(users UserModelStore, logger log.Logger) *UserModelHandler {
	return &UserModelHandler{users: users, logger: logger}
}

// RegisterRoutes registers user-model routes on the given mux.
func (h *UserModelHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /user-model", h.get)
	mux.HandleFunc("POST /user-model", h.update)
	mux.HandleFunc("DELETE /user-model", h.reset)
}

// get handles GET /user-model?userId=...; an unknown user gets the
// documented defaults.
func (h *UserModelHandler) get(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing_user", "userId parameter is required")
		return
	}

	model, err := h.users.Get(r.Context(), userID)
	if err != nil {
		h.logger.Error("user model read failed", "error", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "user_model_failed", "")
		return
	}
	writeJSON(w, http.StatusOK, model)
}

// UpdateUserModelRequest is the request body for POST /user-model.
type UpdateUserModelRequest struct {
	UserID string         `json:"userId"`
	Model  map[string]any `json:"model"`
}

// update handles POST /user-model: a deep-merge patch, never a
// wholesale replacement.
func (h *UserModelHandler) update(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body is not valid JSON")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "missing_user", "userId is required")
		return
	}
	if len(req.Model) == 0 {
		writeError(w, http.StatusBadRequest, "empty_patch", "model patch is required")
		return
	}

	model, err := h.users.Update(r.Context(), req.UserID, req.Model)
	if err != nil {
		if badInput(err) {
			writeError(w, http.StatusBadRequest, "invalid_patch", err.Error())
			return
		}
		h.logger.Error("user model update failed", "error", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "user_model_failed", "")
		return
	}
	writeJSON(w, http.StatusOK, model)
}

// reset handles DELETE /user-model?userId=...
func (h *UserModelHandler) reset(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing_user", "userId parameter is required")
		return
	}

	if err := h.users.Reset(r.Context(), userID); err != nil {
		h.logger.Error("user model reset failed", "error", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "user_model_failed", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
