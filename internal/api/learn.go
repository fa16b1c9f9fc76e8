package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/jellycore/oracle/internal/log"
	"github.com/jellycore/oracle/internal/store"
)

// LearnHandler ingests new documents.
type LearnHandler struct {
	docs   DocumentStore
	logger log.Logger
}

// NewLearnHandler creates a learn handler.
func NewLearnHandler(docs DocumentStore, logger log.Logger) *LearnHandler {
	return &LearnHandler{docs: docs, logger: logger}
}

// RegisterRoutes registers learn routes on the given mux.
func (h *LearnHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /learn", h.learn)
}

// LearnRequest is the request body for POST /learn.
type LearnRequest struct {
	ID        string   `json:"id,omitempty"`
	Content   string   `json:"content"`
	Kind      string   `json:"kind,omitempty"`
	Concepts  []string `json:"concepts,omitempty"`
	SourceRef string   `json:"sourceRef,omitempty"`
	Layer     string   `json:"memoryLayer,omitempty"`
	Project   string   `json:"project,omitempty"`
	Origin    string   `json:"origin,omitempty"`
	CreatedBy string   `json:"createdBy,omitempty"`
	Private   bool     `json:"isPrivate,omitempty"`

	// Supersedes points at the document this one replaces. The old
	// document stays readable through its forward pointer.
	Supersedes      string `json:"supersedes,omitempty"`
	SupersedeReason string `json:"supersedeReason,omitempty"`
}

// LearnResponse reports what was written.
type LearnResponse struct {
	IDs        []string `json:"ids"`
	Chunks     int      `json:"chunks"`
	Superseded string   `json:"superseded,omitempty"`
}

// learn handles POST /learn: validate, chunk, store, and optionally
// supersede a prior document.
func (h *LearnHandler) learn(w http.ResponseWriter, r *http.Request) {
	var req LearnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body is not valid JSON")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "missing_content", "content is required")
		return
	}
	if len(req.Content) > store.MaxContentLength {
		writeError(w, http.StatusBadRequest, "content_too_long", "content exceeds maximum length")
		return
	}

	doc := &store.Document{
		ID:        req.ID,
		Kind:      store.Kind(req.Kind),
		Content:   req.Content,
		Concepts:  req.Concepts,
		SourceRef: req.SourceRef,
		Layer:     store.Layer(req.Layer),
		Project:   req.Project,
		Origin:    req.Origin,
		CreatedBy: req.CreatedBy,
		Private:   req.Private,
	}
	if doc.ID == "" {
		doc.ID = "doc_" + uuid.NewString()
	}

	ids, err := h.docs.Ingest(r.Context(), doc)
	if err != nil {
		if badInput(err) {
			writeError(w, http.StatusBadRequest, "invalid_document", err.Error())
			return
		}
		h.logger.Error("ingest failed", "error", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "ingest_failed", "")
		return
	}

	resp := LearnResponse{IDs: ids, Chunks: len(ids)}
	if req.Supersedes != "" {
		err := h.docs.Supersede(r.Context(), req.Supersedes, doc.ID, req.SupersedeReason)
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "supersede_target_missing", "document to supersede does not exist")
			return
		case errors.Is(err, store.ErrAlreadySuperseded):
			writeError(w, http.StatusConflict, "already_superseded", "document was already superseded")
			return
		case err != nil:
			h.logger.Error("supersede failed", "error", err, "request_id", RequestID(r.Context()))
			writeError(w, http.StatusInternalServerError, "supersede_failed", "")
			return
		}
		resp.Superseded = req.Supersedes
	}

	writeJSON(w, http.StatusCreated, resp)
}
