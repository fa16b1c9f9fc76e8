//go:build integration

package store_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jellycore/oracle/internal/chunker"
	"github.com/jellycore/oracle/internal/log"
	"github.com/jellycore/oracle/internal/store"
	"github.com/jellycore/oracle/internal/testutil"
	"github.com/jellycore/oracle/internal/vector"
)

// memVectors is a deterministic in-memory stand-in for the embedding
// store so the tests exercise real PostgreSQL without a model server.
type memVectors struct {
	entries map[string]vector.Entry
}

func newMemVectors() *memVectors {
	return &memVectors{entries: make(map[string]vector.Entry)}
}

func (m *memVectors) Add(_ context.Context, entries []vector.Entry) error {
	for _, e := range entries {
		m.entries[e.ID] = e
	}
	return nil
}

// Query scores by naive word overlap, which is enough to make semantic
// retrieval behave plausibly in tests.
func (m *memVectors) Query(_ context.Context, text string, k int, filter vector.Filter) ([]vector.Hit, error) {
	words := strings.Fields(strings.ToLower(text))
	var hits []vector.Hit
	for _, e := range m.entries {
		if !matchesFilter(e.Metadata, filter) {
			continue
		}
		content := strings.ToLower(e.Text)
		var overlap int
		for _, w := range words {
			if strings.Contains(content, w) {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		hits = append(hits, vector.Hit{
			ID:       e.ID,
			Score:    float64(overlap) / float64(len(words)),
			Metadata: e.Metadata,
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *memVectors) Delete(_ context.Context, ids ...string) error {
	for _, id := range ids {
		delete(m.entries, id)
	}
	return nil
}

func (m *memVectors) Model() (string, int) { return "test-embedder", 1 }

func matchesFilter(md map[string]string, f vector.Filter) bool {
	for k, v := range f {
		if md[k] != v {
			return false
		}
	}
	return true
}

func newIntegrationStore(t *testing.T) (*store.Documents, func()) {
	t.Helper()

	tdb, cleanup := testutil.SetupTestDB(t)
	docs, err := store.New(tdb.Pool, newMemVectors(), nil,
		chunker.New(chunker.DefaultConfig(), nil, log.NewNop()), log.NewNop())
	if err != nil {
		cleanup()
		t.Fatalf("store.New: %v", err)
	}
	return docs, cleanup
}

func TestIntegrationSaveGetDelete(t *testing.T) {
	docs, cleanup := newIntegrationStore(t)
	defer cleanup()
	ctx := context.Background()

	doc := &store.Document{
		ID:      "doc_channels",
		Kind:    store.KindLearning,
		Content: "Go channels coordinate goroutines by communicating values.",
		Layer:   store.LayerSemantic,
	}
	if err := docs.Save(ctx, doc); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := docs.Get(ctx, "doc_channels")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Content != doc.Content {
		t.Errorf("content = %q, want %q", got.Content, doc.Content)
	}
	if got.Layer != store.LayerSemantic {
		t.Errorf("layer = %q, want %q", got.Layer, store.LayerSemantic)
	}

	if err := docs.Delete(ctx, "doc_channels"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := docs.Get(ctx, "doc_channels"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get after delete: err = %v, want ErrNotFound", err)
	}
}

func TestIntegrationHybridSearch(t *testing.T) {
	docs, cleanup := newIntegrationStore(t)
	defer cleanup()
	ctx := context.Background()

	seed := []*store.Document{
		{ID: "doc_mutex", Kind: store.KindLearning, Content: "sync.Mutex guards shared state against concurrent writes."},
		{ID: "doc_chan", Kind: store.KindLearning, Content: "Buffered channels decouple producers from consumers."},
		{ID: "doc_http", Kind: store.KindLearning, Content: "net/http servers multiplex handlers through a ServeMux."},
	}
	for _, d := range seed {
		if err := docs.Save(ctx, d); err != nil {
			t.Fatalf("Save %s: %v", d.ID, err)
		}
	}

	resp, err := docs.Search(ctx, store.SearchRequest{Query: "buffered channels", Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("expected results, got none")
	}
	if resp.Results[0].Document.ID != "doc_chan" {
		t.Errorf("top result = %s, want doc_chan", resp.Results[0].Document.ID)
	}

	// Lexical-only mode must still find the exact term.
	resp, err = docs.Search(ctx, store.SearchRequest{Query: "ServeMux", Limit: 5, Mode: store.ModeLexical})
	if err != nil {
		t.Fatalf("Search lexical: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Document.ID != "doc_http" {
		t.Errorf("lexical results = %+v, want only doc_http", resp.Results)
	}
}

func TestIntegrationSupersedeHidesFromSearch(t *testing.T) {
	docs, cleanup := newIntegrationStore(t)
	defer cleanup()
	ctx := context.Background()

	old := &store.Document{ID: "doc_v1", Kind: store.KindPrinciple, Content: "Always use global singletons for database access."}
	next := &store.Document{ID: "doc_v2", Kind: store.KindPrinciple, Content: "Inject database handles through constructors, never globals."}
	for _, d := range []*store.Document{old, next} {
		if err := docs.Save(ctx, d); err != nil {
			t.Fatalf("Save %s: %v", d.ID, err)
		}
	}

	if err := docs.Supersede(ctx, "doc_v1", "doc_v2", "reversed guidance"); err != nil {
		t.Fatalf("Supersede: %v", err)
	}

	if _, err := docs.Get(ctx, "doc_v1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get superseded: err = %v, want ErrNotFound", err)
	}

	resp, err := docs.Search(ctx, store.SearchRequest{Query: "database singletons globals", Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range resp.Results {
		if r.Document.ID == "doc_v1" {
			t.Error("superseded document surfaced in search")
		}
	}

	// The pointer is append-only.
	if err := docs.Supersede(ctx, "doc_v1", "doc_v2", "again"); !errors.Is(err, store.ErrAlreadySuperseded) {
		t.Errorf("second Supersede: err = %v, want ErrAlreadySuperseded", err)
	}
}

func TestIntegrationExpiryLifecycle(t *testing.T) {
	docs, cleanup := newIntegrationStore(t)
	defer cleanup()
	ctx := context.Background()

	past := time.Now().Add(-24 * time.Hour)
	future := time.Now().Add(24 * time.Hour)
	expired := &store.Document{ID: "ep_old", Kind: store.KindRetro, Layer: store.LayerEpisodic, Content: "Stale episode.", ExpiresAt: &past}
	live := &store.Document{ID: "ep_new", Kind: store.KindRetro, Layer: store.LayerEpisodic, Content: "Fresh episode.", ExpiresAt: &future}
	for _, d := range []*store.Document{expired, live} {
		if err := docs.Save(ctx, d); err != nil {
			t.Fatalf("Save %s: %v", d.ID, err)
		}
	}

	batch, err := docs.ExpiredDocuments(ctx, store.LayerEpisodic, 10)
	if err != nil {
		t.Fatalf("ExpiredDocuments: %v", err)
	}
	if len(batch) != 1 || batch[0].ID != "ep_old" {
		t.Fatalf("expired batch = %+v, want only ep_old", batch)
	}

	if err := docs.ExtendExpiry(ctx, []string{"ep_new"}, 30); err != nil {
		t.Fatalf("ExtendExpiry: %v", err)
	}
	got, err := docs.Get(ctx, "ep_new")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	wantMin := future.Add(29 * 24 * time.Hour)
	if got.ExpiresAt == nil || got.ExpiresAt.Before(wantMin) {
		t.Errorf("ExpiresAt = %v, want at least %v", got.ExpiresAt, wantMin)
	}
}

func TestIntegrationUpdateDecayScores(t *testing.T) {
	docs, cleanup := newIntegrationStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := docs.Save(ctx, &store.Document{
		ID: "sem_1", Kind: store.KindLearning, Layer: store.LayerSemantic, Content: "Decay target.",
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	n, err := docs.UpdateDecayScores(ctx, store.LayerSemantic, 0.01)
	if err != nil {
		t.Fatalf("UpdateDecayScores: %v", err)
	}
	if n != 1 {
		t.Errorf("updated = %d, want 1", n)
	}

	got, err := docs.Get(ctx, "sem_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	// Fresh and unaccessed: e^0 * 0.5.
	if got.DecayScore < 0.49 || got.DecayScore > 0.51 {
		t.Errorf("DecayScore = %v, want ~0.5", got.DecayScore)
	}
}

func TestIntegrationChunkedIngest(t *testing.T) {
	docs, cleanup := newIntegrationStore(t)
	defer cleanup()
	ctx := context.Background()

	long := strings.Repeat("Structured concurrency keeps goroutine lifetimes scoped to their parent. ", 200)
	ids, err := docs.Ingest(ctx, &store.Document{ID: "doc_long", Kind: store.KindLearning, Content: long})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(ids) < 2 {
		t.Fatalf("chunks = %d, want at least 2", len(ids))
	}

	first, err := docs.Get(ctx, ids[0])
	if err != nil {
		t.Fatalf("Get chunk: %v", err)
	}
	if first.ParentID == nil || *first.ParentID != "doc_long" {
		t.Errorf("ParentID = %v, want doc_long", first.ParentID)
	}
	if first.TotalChunks != len(ids) {
		t.Errorf("TotalChunks = %d, want %d", first.TotalChunks, len(ids))
	}
}
