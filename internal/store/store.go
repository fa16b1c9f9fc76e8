// Package store is the system of record: a relational documents table
// with a generated full-text index column, composed with the external
// vector store for semantic retrieval.
//
// The table row and its lexical index change together — the tsvector is
// a generated column, so there is no window where the two disagree. The
// vector store is updated best-effort after the relational write; it is
// eventually consistent and its failures degrade search quality rather
// than failing the write.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jellycore/oracle/internal/chunker"
	"github.com/jellycore/oracle/internal/nlp"
	"github.com/jellycore/oracle/internal/textutil"
	"github.com/jellycore/oracle/internal/vector"
)

// MaxContentLength bounds a single document's content.
const MaxContentLength = 100_000

// accessUpdateTimeout bounds the fire-and-forget access bump.
const accessUpdateTimeout = 5 * time.Second

// docCols is the standard SELECT column list for scanDocuments.
const docCols = `id, kind, content, source_ref, concepts, payload,
	memory_layer, project, origin, created_by, is_private,
	confidence, decay_score, access_count, last_accessed_at,
	created_at, updated_at, indexed_at,
	superseded_by, superseded_at, superseded_reason,
	embedding_model, embedding_version, embedding_hash,
	chunk_index, total_chunks, parent_id, expires_at`

// Segmenter is the sidecar capability the store consumes to build
// language-aware lexical index text. *nlp.Client satisfies it.
type Segmenter interface {
	Tokenize(ctx context.Context, text, engine string) (nlp.TokenizeResult, error)
	Stopwords(ctx context.Context, tokens []string) (nlp.StopwordsResult, error)
	Normalize(ctx context.Context, text string) (nlp.NormalizeResult, error)
	Spellcheck(ctx context.Context, text string) (nlp.SpellcheckResult, error)
}

// Documents persists documents and serves hybrid retrieval.
//
// Documents is safe for concurrent use.
type Documents struct {
	pool    *pgxpool.Pool
	vectors vector.Store
	seg     Segmenter
	chunks  *chunker.Chunker
	logger  *slog.Logger
}

// New creates a document store. vectors is required; seg may be nil
// (lexical text falls back to raw content); chunks may be nil (Ingest
// stores unchunked).
func New(pool *pgxpool.Pool, vectors vector.Store, seg Segmenter, chunks *chunker.Chunker, logger *slog.Logger) (*Documents, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if vectors == nil {
		return nil, errors.New("vector store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Documents{pool: pool, vectors: vectors, seg: seg, chunks: chunks, logger: logger}, nil
}

// validate checks required fields before any side effect.
func validate(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidInput)
	}
	if doc.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	if doc.Content == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	if len(doc.Content) > MaxContentLength {
		return fmt.Errorf("%w: content length %d exceeds %d", ErrInvalidInput, len(doc.Content), MaxContentLength)
	}
	if doc.Kind != "" && !doc.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, doc.Kind)
	}
	if doc.Layer != "" && !doc.Layer.Valid() {
		return fmt.Errorf("%w: unknown layer %q", ErrInvalidInput, doc.Layer)
	}
	return nil
}

// segmentText builds the lexical index text for content. Thai and mixed
// content is word-segmented (and stop-word filtered) through the
// sidecar so the keyword index can match inside unspaced Thai runs.
// Fallback: empty string, which leaves the index on the raw content.
func (d *Documents) segmentText(ctx context.Context, content string) string {
	if d.seg == nil || textutil.DetectLanguage(content) == textutil.LangEnglish {
		return ""
	}

	tok, err := d.seg.Tokenize(ctx, content, "")
	if err != nil {
		d.logger.Warn("segmentation degraded, indexing raw content", "error", err)
		return ""
	}

	tokens := tok.Tokens
	if filtered, swErr := d.seg.Stopwords(ctx, tokens); swErr == nil && len(filtered.Filtered) > 0 {
		tokens = filtered.Filtered
	}
	return strings.Join(tokens, " ")
}

// Save upserts a document row and refreshes its vector entry when the
// content or embedding model changed. The vector write is best-effort:
// failure logs a warning and leaves the document discoverable through
// the lexical index only.
func (d *Documents) Save(ctx context.Context, doc *Document) error {
	if err := validate(doc); err != nil {
		return err
	}
	if doc.Kind == "" {
		doc.Kind = KindLearning
	}
	if doc.Layer == "" {
		doc.Layer = LayerSemantic
	}
	if doc.TotalChunks <= 0 {
		doc.TotalChunks = 1
	}
	if doc.DecayScore == 0 {
		doc.DecayScore = 1.0
	}
	if doc.Layer == LayerUserModel {
		// The user model never decays.
		doc.DecayScore = 1.0
	}

	segmented := d.segmentText(ctx, doc.Content)

	_, err := d.pool.Exec(ctx,
		`INSERT INTO documents (
			id, kind, content, segmented, source_ref, concepts, payload,
			memory_layer, project, origin, created_by, is_private,
			confidence, decay_score, chunk_index, total_chunks, parent_id,
			expires_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, NULLIF($4, ''), $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17,
			$18, now(), now()
		)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			content = EXCLUDED.content,
			segmented = EXCLUDED.segmented,
			source_ref = EXCLUDED.source_ref,
			concepts = EXCLUDED.concepts,
			payload = EXCLUDED.payload,
			memory_layer = EXCLUDED.memory_layer,
			project = EXCLUDED.project,
			origin = EXCLUDED.origin,
			created_by = EXCLUDED.created_by,
			is_private = EXCLUDED.is_private,
			confidence = EXCLUDED.confidence,
			decay_score = EXCLUDED.decay_score,
			chunk_index = EXCLUDED.chunk_index,
			total_chunks = EXCLUDED.total_chunks,
			parent_id = EXCLUDED.parent_id,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()`,
		doc.ID, string(doc.Kind), doc.Content, segmented, doc.SourceRef, doc.Concepts, doc.Payload,
		string(doc.Layer), doc.Project, doc.Origin, doc.CreatedBy, doc.Private,
		ScoreToInt(doc.Confidence), ScoreToInt(doc.DecayScore),
		doc.ChunkIndex, doc.TotalChunks, doc.ParentID,
		doc.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upserting document %q: %w", doc.ID, err)
	}

	d.indexVector(ctx, doc)
	return nil
}

// indexVector refreshes the vector entry for doc unless the current
// embedding already covers this content. Best-effort.
func (d *Documents) indexVector(ctx context.Context, doc *Document) {
	hash := ContentHash(doc.Content)

	current, err := d.HasCurrentEmbedding(ctx, doc.ID, hash)
	if err != nil {
		d.logger.Warn("embedding cache lookup failed", "id", doc.ID, "error", err)
	} else if current {
		return
	}

	entry := vector.Entry{
		ID:   doc.ID,
		Text: doc.Content,
		Metadata: map[string]string{
			"layer":   string(doc.Layer),
			"kind":    string(doc.Kind),
			"project": doc.Project,
			"private": fmt.Sprintf("%t", doc.Private),
		},
	}
	if addErr := d.vectors.Add(ctx, []vector.Entry{entry}); addErr != nil {
		d.logger.Warn("vector indexing degraded, document is lexical-only", "id", doc.ID, "error", addErr)
		return
	}

	model, version := d.vectors.Model()
	if markErr := d.MarkEmbedded(ctx, doc.ID, model, version, hash); markErr != nil {
		d.logger.Warn("recording embedding state failed", "id", doc.ID, "error", markErr)
	}
}

// Ingest chunks a document's content and stores one row per chunk.
// A document that fits the chunker's budget is stored as-is. Chunk rows
// share the logical ID as parent and carry contiguous 0-based indices.
// Returns the IDs written.
func (d *Documents) Ingest(ctx context.Context, doc *Document) ([]string, error) {
	if err := validate(doc); err != nil {
		return nil, err
	}

	var parts []string
	if d.chunks != nil {
		parts = d.chunks.Split(ctx, doc.Content)
	}
	if len(parts) <= 1 {
		if err := d.Save(ctx, doc); err != nil {
			return nil, err
		}
		return []string{doc.ID}, nil
	}

	parentID := doc.ID
	ids := make([]string, 0, len(parts))
	for i, part := range parts {
		child := *doc
		child.ID = fmt.Sprintf("%s#%d", parentID, i)
		child.Content = part
		child.ParentID = &parentID
		child.ChunkIndex = i
		child.TotalChunks = len(parts)
		if err := d.Save(ctx, &child); err != nil {
			return ids, fmt.Errorf("saving chunk %d/%d of %q: %w", i, len(parts), parentID, err)
		}
		ids = append(ids, child.ID)
	}
	return ids, nil
}

// Get returns a document by ID. Expired and superseded documents are
// invisible; ErrNotFound covers both.
func (d *Documents) Get(ctx context.Context, id string) (*Document, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT `+docCols+` FROM documents
		 WHERE id = $1
		   AND superseded_by IS NULL
		   AND (expires_at IS NULL OR expires_at > now())`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("querying document %q: %w", id, err)
	}
	defer rows.Close()

	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

// Delete hard-deletes a document row and its vector entry. Normal
// lifecycle uses Supersede; Delete exists for explicit resets and for
// purging corrupt rows.
func (d *Documents) Delete(ctx context.Context, id string) error {
	if _, err := d.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting document %q: %w", id, err)
	}
	if err := d.vectors.Delete(ctx, id); err != nil {
		d.logger.Warn("deleting vector entry failed", "id", id, "error", err)
	}
	return nil
}

// Supersede sets the forward pointer from oldID to newID. Nothing is
// deleted; the pointer is append-only and refuses to overwrite.
func (d *Documents) Supersede(ctx context.Context, oldID, newID, reason string) error {
	if oldID == "" || newID == "" {
		return fmt.Errorf("%w: both document IDs are required", ErrInvalidInput)
	}

	tag, err := d.pool.Exec(ctx,
		`UPDATE documents
		 SET superseded_by = $2, superseded_at = now(), superseded_reason = $3
		 WHERE id = $1 AND superseded_by IS NULL`,
		oldID, newID, reason,
	)
	if err != nil {
		return fmt.Errorf("superseding document %q: %w", oldID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if lookupErr := d.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1)`, oldID,
		).Scan(&exists); lookupErr != nil {
			return fmt.Errorf("looking up document %q: %w", oldID, lookupErr)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrAlreadySuperseded
	}
	return nil
}

// recordAccess bumps access counters and refreshes decay for the given
// IDs in the background. Fire-and-forget: it must not delay the search
// response, and its failure must not surface to the caller.
func (d *Documents) recordAccess(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}

	// Detach from the request context so the response canceling does
	// not abort the bookkeeping.
	bgCtx := context.WithoutCancel(ctx)
	go func() {
		updCtx, cancel := context.WithTimeout(bgCtx, accessUpdateTimeout)
		defer cancel()

		_, err := d.pool.Exec(updCtx,
			`UPDATE documents
			 SET access_count = access_count + 1,
			     last_accessed_at = now(),
			     decay_score = CASE
			       WHEN memory_layer = 'user_model' THEN 100
			       ELSE LEAST(100, ROUND(
			         100.0
			         * exp(-(CASE WHEN COALESCE(memory_layer, 'semantic') = 'procedural'
			                      THEN 0.005 ELSE 0.01 END)
			               * extract(epoch from (now() - updated_at)) / 86400.0)
			         * LEAST(1.0, 0.5 + (access_count + 1) * 0.05)
			       ))::int
			     END
			 WHERE id = ANY($1)`,
			ids,
		)
		if err != nil {
			d.logger.Warn("access tracking failed", "count", len(ids), "error", err)
		}
	}()
}

// ExtendExpiry pushes expires_at forward by days for rows that still
// carry a TTL. Rows without a TTL are untouched.
func (d *Documents) ExtendExpiry(ctx context.Context, ids []string, days int) error {
	if len(ids) == 0 || days <= 0 {
		return nil
	}
	_, err := d.pool.Exec(ctx,
		`UPDATE documents
		 SET expires_at = expires_at + make_interval(days => $2)
		 WHERE id = ANY($1) AND expires_at IS NOT NULL`,
		ids, days,
	)
	if err != nil {
		return fmt.Errorf("extending expiry for %d documents: %w", len(ids), err)
	}
	return nil
}

// UpdateDecayScores recomputes decay for every live document of one
// layer using the given decay constant. The SQL expression mirrors the
// pure Go formula in the memory package; the two must stay in sync.
// The explicit float8 cast keeps pg from inferring an integer parameter.
func (d *Documents) UpdateDecayScores(ctx context.Context, layer Layer, lambda float64) (int, error) {
	if layer == LayerUserModel {
		// Pinned at 1.0; refresh in case legacy rows drifted.
		tag, err := d.pool.Exec(ctx,
			`UPDATE documents SET decay_score = 100
			 WHERE memory_layer = 'user_model' AND decay_score <> 100`,
		)
		if err != nil {
			return 0, fmt.Errorf("pinning user model decay: %w", err)
		}
		return int(tag.RowsAffected()), nil
	}

	tag, err := d.pool.Exec(ctx,
		`UPDATE documents
		 SET decay_score = LEAST(100, ROUND(
		       100.0
		       * exp(-$2::float8 * extract(epoch from (now() - updated_at)) / 86400.0)
		       * LEAST(1.0, 0.5 + access_count * 0.05)
		     ))::int
		 WHERE superseded_by IS NULL
		   AND COALESCE(memory_layer, 'semantic') = $1`,
		string(layer), lambda,
	)
	if err != nil {
		return 0, fmt.Errorf("updating decay scores for %s: %w", layer, err)
	}
	return int(tag.RowsAffected()), nil
}

// ExpiredDocuments returns up to limit expired rows for one layer, for
// the purge job. Expired rows are invisible to every other read path.
func (d *Documents) ExpiredDocuments(ctx context.Context, layer Layer, limit int) ([]*Document, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT `+docCols+` FROM documents
		 WHERE COALESCE(memory_layer, 'semantic') = $1
		   AND expires_at IS NOT NULL AND expires_at <= now()
		 ORDER BY expires_at ASC
		 LIMIT $2`,
		string(layer), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying expired %s documents: %w", layer, err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// scanDocuments converts rows into documents. A row that fails to scan
// aborts; NULL layer normalization happens here, at the read boundary.
func scanDocuments(rows pgx.Rows) ([]*Document, error) {
	var docs []*Document
	for rows.Next() {
		var (
			doc              Document
			kind, layerRaw   *string
			confidence       int
			decay            int
			embeddingModel   *string
			embeddingVersion *int
			embeddingHash    *string
		)
		err := rows.Scan(
			&doc.ID, &kind, &doc.Content, &doc.SourceRef, &doc.Concepts, &doc.Payload,
			&layerRaw, &doc.Project, &doc.Origin, &doc.CreatedBy, &doc.Private,
			&confidence, &decay, &doc.AccessCount, &doc.LastAccessedAt,
			&doc.CreatedAt, &doc.UpdatedAt, &doc.IndexedAt,
			&doc.SupersededBy, &doc.SupersededAt, &doc.SupersededReason,
			&embeddingModel, &embeddingVersion, &embeddingHash,
			&doc.ChunkIndex, &doc.TotalChunks, &doc.ParentID, &doc.ExpiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}

		if kind != nil {
			doc.Kind = Kind(*kind)
		}
		doc.Layer = NormalizeLayer(layerRaw)
		doc.Confidence = ScoreFromInt(confidence)
		doc.DecayScore = ScoreFromInt(decay)
		if embeddingModel != nil {
			doc.EmbeddingModel = *embeddingModel
		}
		if embeddingVersion != nil {
			doc.EmbeddingVersion = *embeddingVersion
		}
		if embeddingHash != nil {
			doc.EmbeddingHash = *embeddingHash
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading documents: %w", err)
	}
	return docs, nil
}
