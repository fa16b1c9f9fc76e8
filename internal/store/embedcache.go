package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jellycore/oracle/internal/vector"
)

// ReembedBatchSize is how many stale documents one re-embedding pass
// touches.
const ReembedBatchSize = 50

// HasCurrentEmbedding reports whether the stored embedding for docID
// was produced by the currently configured model from exactly this
// content. Either mismatch — model or hash — means re-embedding is
// required. Changing the embedding model therefore needs no migration:
// staleness is discovered lazily.
func (d *Documents) HasCurrentEmbedding(ctx context.Context, docID, contentHash string) (bool, error) {
	var model, hash *string
	err := d.pool.QueryRow(ctx,
		`SELECT embedding_model, embedding_hash FROM documents WHERE id = $1`,
		docID,
	).Scan(&model, &hash)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// Unknown document: nothing cached.
		return false, nil
	case err != nil:
		return false, fmt.Errorf("looking up embedding state for %q: %w", docID, err)
	}

	currentModel, _ := d.vectors.Model()
	return model != nil && *model == currentModel &&
		hash != nil && *hash == contentHash, nil
}

// MarkEmbedded records which model, version, and content hash produced
// the document's current embedding.
func (d *Documents) MarkEmbedded(ctx context.Context, docID, model string, version int, contentHash string) error {
	_, err := d.pool.Exec(ctx,
		`UPDATE documents
		 SET embedding_model = $2, embedding_version = $3, embedding_hash = $4,
		     indexed_at = now()
		 WHERE id = $1`,
		docID, model, version, contentHash,
	)
	if err != nil {
		return fmt.Errorf("marking document %q embedded: %w", docID, err)
	}
	return nil
}

// StaleDocuments returns documents whose embedding was produced by a
// different model than the current one, or that were never embedded
// (legacy rows with a NULL model or hash).
func (d *Documents) StaleDocuments(ctx context.Context, limit int) ([]*Document, error) {
	if limit <= 0 {
		limit = ReembedBatchSize
	}
	currentModel, _ := d.vectors.Model()

	rows, err := d.pool.Query(ctx,
		`SELECT `+docCols+` FROM documents
		 WHERE superseded_by IS NULL
		   AND (expires_at IS NULL OR expires_at > now())
		   AND (embedding_model IS DISTINCT FROM $1 OR embedding_hash IS NULL)
		 ORDER BY updated_at DESC
		 LIMIT $2`,
		currentModel, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying stale documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// ReembedStale re-embeds one page of stale documents. Returns how many
// were refreshed. Safe to call repeatedly; an empty return means the
// index has caught up with the configured model.
func (d *Documents) ReembedStale(ctx context.Context, batchSize int) (int, error) {
	stale, err := d.StaleDocuments(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	model, version := d.vectors.Model()
	var done int
	for _, doc := range stale {
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
			// Stop the page; the next pass retries from here.
			d.logger.Warn("re-embedding degraded", "id", doc.ID, "error", addErr)
			return done, nil
		}
		if markErr := d.MarkEmbedded(ctx, doc.ID, model, version, ContentHash(doc.Content)); markErr != nil {
			return done, markErr
		}
		done++
	}

	if done > 0 {
		d.logger.Info("re-embedded stale documents", "count", done, "model", model)
	}
	return done, nil
}
