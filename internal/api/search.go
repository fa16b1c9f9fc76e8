package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jellycore/oracle/internal/log"
	"github.com/jellycore/oracle/internal/store"
)

// DocumentStore is the document-store capability the search and learn
// endpoints consume. *store.Documents satisfies it.
type DocumentStore interface {
	Search(ctx context.Context, req store.SearchRequest) (*store.SearchResponse, error)
	Ingest(ctx context.Context, doc *store.Document) ([]string, error)
	Supersede(ctx context.Context, oldID, newID, reason string) error
}

// MaxQueryLength bounds the search query string.
const MaxQueryLength = 2000

// SearchHandler serves hybrid search.
type SearchHandler struct {
	docs   DocumentStore
	logger log.Logger
}

// NewSearchHandler creates a search handler.
func NewSearchHandler(docs DocumentStore, logger log.Logger) *SearchHandler {
	return &SearchHandler{docs: docs, logger: logger}
}

// RegisterRoutes registers search routes on the given mux.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /search", h.search)
}

// searchResult is one hit on the wire.
type searchResult struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Content     string     `json:"content"`
	SourceRef   string     `json:"sourceRef,omitempty"`
	Concepts    []string   `json:"concepts,omitempty"`
	Layer       string     `json:"memoryLayer"`
	Project     string     `json:"project,omitempty"`
	Confidence  float64    `json:"confidence"`
	DecayScore  float64    `json:"decayScore"`
	Score       float64    `json:"score"`
	FTSScore    float64    `json:"ftsScore"`
	VectorScore float64    `json:"vectorScore"`
	ParentID    *string    `json:"parentId,omitempty"`
	ChunkIndex  int        `json:"chunkIndex"`
	TotalChunks int        `json:"totalChunks"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// searchResponse is the full search payload, including the retrieval
// diagnostics so callers can see how the query was interpreted.
type searchResponse struct {
	Results []searchResult `json:"results"`
	Total   int            `json:"total"`
	Query   struct {
		Type         string  `json:"type"`
		Reason       string  `json:"reason"`
		FTSWeight    float64 `json:"ftsWeight"`
		VectorWeight float64 `json:"vectorWeight"`
	} `json:"query"`
}

// search handles GET /search.
// Query parameters: q (required), kind, layer (comma-list), project,
// mode (hybrid|lexical|semantic), limit, offset, include_private.
func (h *SearchHandler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "q parameter is required")
		return
	}
	if len(q) > MaxQueryLength {
		writeError(w, http.StatusBadRequest, "query_too_long", "q exceeds maximum length")
		return
	}

	req := store.SearchRequest{
		Query:          q,
		Limit:          parseIntParam(r, "limit", store.DefaultSearchLimit, 1, store.MaxSearchLimit),
		Offset:         parseIntParam(r, "offset", 0, 0, 10000),
		Project:        r.URL.Query().Get("project"),
		IncludePrivate: r.URL.Query().Get("include_private") == "true",
	}

	if kind := r.URL.Query().Get("kind"); kind != "" {
		k := store.Kind(kind)
		if !k.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_kind", "unknown document kind")
			return
		}
		req.Kind = k
	}
	if layers := r.URL.Query().Get("layer"); layers != "" {
		req.Layers = store.ParseLayers(layers)
		if len(req.Layers) == 0 {
			writeError(w, http.StatusBadRequest, "invalid_layer", "no recognized memory layer")
			return
		}
	}
	switch mode := store.Mode(r.URL.Query().Get("mode")); mode {
	case "", store.ModeHybrid, store.ModeLexical, store.ModeSemantic:
		if mode != "" {
			req.Mode = mode
		}
	default:
		writeError(w, http.StatusBadRequest, "invalid_mode", "mode must be hybrid, lexical, or semantic")
		return
	}

	resp, err := h.docs.Search(r.Context(), req)
	if err != nil {
		h.logger.Error("search failed", "error", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "search_failed", "")
		return
	}

	out := searchResponse{Results: make([]searchResult, 0, len(resp.Results))}
	for _, res := range resp.Results {
		doc := res.Document
		out.Results = append(out.Results, searchResult{
			ID:          doc.ID,
			Kind:        string(doc.Kind),
			Content:     doc.Content,
			SourceRef:   doc.SourceRef,
			Concepts:    doc.Concepts,
			Layer:       string(doc.Layer),
			Project:     doc.Project,
			Confidence:  doc.Confidence,
			DecayScore:  doc.DecayScore,
			Score:       res.Score,
			FTSScore:    res.FTSScore,
			VectorScore: res.VectorScore,
			ParentID:    doc.ParentID,
			ChunkIndex:  doc.ChunkIndex,
			TotalChunks: doc.TotalChunks,
			UpdatedAt:   doc.UpdatedAt,
			ExpiresAt:   doc.ExpiresAt,
		})
	}
	out.Total = len(out.Results)
	out.Query.Type = string(resp.Profile.Type)
	out.Query.Reason = resp.Profile.Reason
	out.Query.FTSWeight = resp.Weights.FTS
	out.Query.VectorWeight = resp.Weights.Vector

	writeJSON(w, http.StatusOK, out)
}

// parseIntParam parses an integer query parameter with bounds checking.
func parseIntParam(r *http.Request, name string, defaultVal, min, max int) int {
	str := r.URL.Query().Get(name)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// badInput reports whether err is a client-input error.
func badInput(err error) bool {
	return errors.Is(err, store.ErrInvalidInput)
}
