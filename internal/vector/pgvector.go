package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"
)

// EmbedTimeout bounds one embedding call.
const EmbedTimeout = 2 * time.Second

// PGVector is the default Store implementation: pgvector cosine search
// over an embeddings table, with embeddings generated through a Genkit
// ai.Embedder.
//
// PGVector is safe for concurrent use.
type PGVector struct {
	pool      *pgxpool.Pool
	embedder  ai.Embedder
	model     string
	version   int
	embedOpts any
	logger    *slog.Logger
}

// NewPGVector creates a pgvector-backed Store. embedOpts is the
// provider-specific embed configuration passed on every call; it may be
// nil for models that emit Dimension-wide vectors natively.
func NewPGVector(pool *pgxpool.Pool, embedder ai.Embedder, model string, version int, embedOpts any, logger *slog.Logger) (*PGVector, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if model == "" {
		return nil, errors.New("embedding model name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PGVector{pool: pool, embedder: embedder, model: model, version: version, embedOpts: embedOpts, logger: logger}, nil
}

// GeminiEmbedOptions returns embed options that truncate Gemini's
// 3072-dim default output to the schema width. gemini-embedding-001 is
// Matryoshka-trained, so truncation keeps most of its quality.
func GeminiEmbedOptions() *genai.EmbedContentConfig {
	dim := Dimension
	return &genai.EmbedContentConfig{OutputDimensionality: &dim}
}

// embedRequest builds the request for one text with the configured
// provider options.
func embedRequest(text string, opts any) *ai.EmbedRequest {
	return &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: opts,
	}
}

// Model returns the configured embedding model name and version.
func (s *PGVector) Model() (string, int) {
	return s.model, s.version
}

// embed generates an embedding for one text.
func (s *PGVector) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	ctx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	resp, err := s.embedder.Embed(ctx, embedRequest(text, s.embedOpts))
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, errors.New("empty embedding response")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// Add embeds and upserts entries one at a time, so a failure partway
// leaves earlier entries indexed.
func (s *PGVector) Add(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if e.ID == "" || e.Text == "" {
			return fmt.Errorf("entry requires id and text, got id=%q", e.ID)
		}

		vec, err := s.embed(ctx, e.Text)
		if err != nil {
			return fmt.Errorf("embedding entry %q: %w", e.ID, err)
		}

		meta := e.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshaling metadata for %q: %w", e.ID, err)
		}

		_, err = s.pool.Exec(ctx,
			`INSERT INTO embeddings (id, embedding, metadata, updated_at)
			 VALUES ($1, $2, $3, now())
			 ON CONFLICT (id) DO UPDATE
			 SET embedding = EXCLUDED.embedding,
			     metadata = EXCLUDED.metadata,
			     updated_at = now()`,
			e.ID, vec, metaJSON,
		)
		if err != nil {
			return fmt.Errorf("upserting embedding %q: %w", e.ID, err)
		}
	}

	s.logger.Debug("indexed entries", "count", len(entries))
	return nil
}

// Query embeds text and returns the k nearest entries by cosine
// similarity, optionally restricted by a JSONB containment filter.
func (s *PGVector) Query(ctx context.Context, text string, k int, filter Filter) ([]Hit, error) {
	if text == "" || k <= 0 {
		return []Hit{}, nil
	}

	vec, err := s.embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	queryCtx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	var rows pgx.Rows
	if len(filter) > 0 {
		filterJSON, marshalErr := json.Marshal(filter)
		if marshalErr != nil {
			return nil, fmt.Errorf("marshaling filter: %w", marshalErr)
		}
		rows, err = s.pool.Query(queryCtx,
			`SELECT id, metadata, 1 - (embedding <=> $1) AS similarity
			 FROM embeddings
			 WHERE metadata @> $2
			 ORDER BY embedding <=> $1
			 LIMIT $3`,
			vec, filterJSON, k,
		)
	} else {
		rows, err = s.pool.Query(queryCtx,
			`SELECT id, metadata, 1 - (embedding <=> $1) AS similarity
			 FROM embeddings
			 ORDER BY embedding <=> $1
			 LIMIT $2`,
			vec, k,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var metaJSON []byte
		if scanErr := rows.Scan(&h.ID, &metaJSON, &h.Score); scanErr != nil {
			return nil, fmt.Errorf("scanning hit: %w", scanErr)
		}
		if unmarshalErr := json.Unmarshal(metaJSON, &h.Metadata); unmarshalErr != nil {
			s.logger.Warn("unparseable embedding metadata", "id", h.ID, "error", unmarshalErr)
			h.Metadata = map[string]string{}
		}
		if h.Score < 0 {
			h.Score = 0
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading hits: %w", err)
	}
	return hits, nil
}

// Delete removes entries by ID.
func (s *PGVector) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM embeddings WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("deleting %d embeddings: %w", len(ids), err)
	}
	return nil
}
