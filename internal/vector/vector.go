// Package vector defines the semantic-search boundary of the engine.
//
// The rest of the system treats the vector store as a black box with two
// operations: add documents, and query by text with a metadata filter.
// The store is eventually consistent, and unavailability must degrade a
// caller's result quality, never fail the caller.
package vector

import (
	"context"
	"time"
)

// Entry is a document to index.
type Entry struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// Hit is one query result. Score is cosine similarity in [0, 1].
type Hit struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// Filter is an exact-match metadata filter; multiple keys AND together.
type Filter map[string]string

// Store is the vector-search contract consumed by the document store
// and the memory layers.
type Store interface {
	// Add indexes entries, embedding their text. Partial failure leaves
	// previously indexed entries intact.
	Add(ctx context.Context, entries []Entry) error

	// Query returns up to k entries nearest to text, most similar first.
	Query(ctx context.Context, text string, k int, filter Filter) ([]Hit, error)

	// Delete removes entries by ID. Missing IDs are not an error.
	Delete(ctx context.Context, ids ...string) error

	// Model identifies the embedding model behind the store, with a
	// monotonically increasing version for cache invalidation.
	Model() (name string, version int)
}

// QueryTimeout bounds a single vector query. Callers must never block
// indefinitely on a degraded store.
const QueryTimeout = 2 * time.Second

// Dimension is the embedding width of the embeddings schema. Embedders
// whose models emit wider vectors must truncate to this at embed time
// or every write and query fails with a dimension mismatch.
const Dimension int32 = 768
