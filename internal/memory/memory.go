// Package memory implements the layered memory model on top of the
// document store: a per-user profile, learned procedures, time-boxed
// episodes, and the decay engine that ages everything else.
//
// Each layer owns its own merge and lifecycle policy, but all
// persistence funnels through the same documents table and the same
// lexical and vector indices.
package memory

import (
	"context"

	"github.com/jellycore/oracle/internal/store"
)

// Store is the document-store capability the memory layers consume.
// *store.Documents satisfies it.
type Store interface {
	Get(ctx context.Context, id string) (*store.Document, error)
	Save(ctx context.Context, doc *store.Document) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, req store.SearchRequest) (*store.SearchResponse, error)
	ExpiredDocuments(ctx context.Context, layer store.Layer, limit int) ([]*store.Document, error)
	ExtendExpiry(ctx context.Context, ids []string, days int) error
	UpdateDecayScores(ctx context.Context, layer store.Layer, lambda float64) (int, error)
	ReembedStale(ctx context.Context, batchSize int) (int, error)
}
