package memory

import (
	"context"
	"testing"
	"time"

	"github.com/jellycore/oracle/internal/store"
)

func TestRecordSetsTTL(t *testing.T) {
	fs := newFakeStore()
	e, err := NewEpisodes(fs, nil)
	if err != nil {
		t.Fatal(err)
	}

	recorded := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ep, err := e.Record(context.Background(), &Episode{
		UserID:     "alice",
		Summary:    "debugged the search ranking together",
		Topics:     []string{"search", "ranking"},
		Outcome:    OutcomeSuccess,
		RecordedAt: recorded,
	})
	if err != nil {
		t.Fatal(err)
	}

	doc := fs.docs[ep.ID]
	if doc == nil {
		t.Fatal("episode not persisted")
	}
	if doc.Layer != store.LayerEpisodic {
		t.Errorf("layer = %q, want episodic", doc.Layer)
	}
	if doc.ExpiresAt == nil {
		t.Fatal("no TTL set")
	}
	if want := recorded.AddDate(0, 0, EpisodeTTLDays); !doc.ExpiresAt.Equal(want) {
		t.Errorf("expiresAt = %v, want %v", doc.ExpiresAt, want)
	}
}

func TestRecordValidation(t *testing.T) {
	fs := newFakeStore()
	e, err := NewEpisodes(fs, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := e.Record(ctx, &Episode{Summary: "  "}); err == nil {
		t.Error("blank summary accepted")
	}
	if _, err := e.Record(ctx, &Episode{Summary: "x", Outcome: "shrug"}); err == nil {
		t.Error("unknown outcome accepted")
	}

	ep, err := e.Record(ctx, &Episode{Summary: "bare minimum"})
	if err != nil {
		t.Fatal(err)
	}
	if ep.Outcome != OutcomeUnknown {
		t.Errorf("default outcome = %q, want unknown", ep.Outcome)
	}
	if ep.ID == "" || ep.RecordedAt.IsZero() {
		t.Error("id or recordedAt not filled in")
	}
}

func TestFindRelatedExtendsTTLAndFiltersUser(t *testing.T) {
	fs := newFakeStore()
	e, err := NewEpisodes(fs, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	mine, err := e.Record(ctx, &Episode{UserID: "alice", Summary: "tuned the chunker overlap"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Record(ctx, &Episode{UserID: "bob", Summary: "tuned the chunker budget"}); err != nil {
		t.Fatal(err)
	}

	before := *fs.docs[mine.ID].ExpiresAt

	episodes, err := e.FindRelated(ctx, "chunker", "alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(episodes) != 1 {
		t.Fatalf("found %d episodes for alice, want 1", len(episodes))
	}
	if episodes[0].ID != mine.ID {
		t.Errorf("found %q, want %q", episodes[0].ID, mine.ID)
	}

	if fs.extendedDays != EpisodeExtensionDays {
		t.Errorf("extension days = %d, want %d", fs.extendedDays, EpisodeExtensionDays)
	}
	after := *fs.docs[mine.ID].ExpiresAt
	if want := before.AddDate(0, 0, EpisodeExtensionDays); !after.Equal(want) {
		t.Errorf("expiresAt after hit = %v, want exactly %v", after, want)
	}
}

func TestFindRelatedExcludesExpired(t *testing.T) {
	fs := newFakeStore()
	e, err := NewEpisodes(fs, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	old := time.Now().AddDate(0, 0, -(EpisodeTTLDays + 1))
	stale, err := e.Record(ctx, &Episode{Summary: "long forgotten", RecordedAt: old})
	if err != nil {
		t.Fatal(err)
	}

	episodes, err := e.FindRelated(ctx, "forgotten", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, ep := range episodes {
		if ep.ID == stale.ID {
			t.Error("expired episode returned")
		}
	}
}

func TestPurgeExpiredArchivesAndDeletes(t *testing.T) {
	fs := newFakeStore()
	e, err := NewEpisodes(fs, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	old := time.Now().AddDate(0, 0, -(EpisodeTTLDays + 1))
	good, err := e.Record(ctx, &Episode{
		UserID:     "alice",
		Summary:    "migrated the embeddings",
		Topics:     []string{"embeddings"},
		Outcome:    OutcomeSuccess,
		RecordedAt: old,
	})
	if err != nil {
		t.Fatal(err)
	}

	// A row whose payload no longer decodes.
	expired := old.AddDate(0, 0, EpisodeTTLDays)
	corrupt := &store.Document{
		ID:        "episodic_corrupt",
		Content:   "???",
		Payload:   []byte("{not json"),
		Layer:     store.LayerEpisodic,
		ExpiresAt: &expired,
	}
	if err := fs.Save(ctx, corrupt); err != nil {
		t.Fatal(err)
	}

	archived, deleted, err := e.PurgeExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if archived != 1 || deleted != 1 {
		t.Errorf("archived %d deleted %d, want 1 and 1", archived, deleted)
	}

	if _, stillThere := fs.docs["episodic_corrupt"]; stillThere {
		t.Error("corrupt episode not deleted")
	}

	kept := fs.docs[good.ID]
	if kept == nil {
		t.Fatal("archived episode missing")
	}
	if kept.Layer != store.LayerSemantic {
		t.Errorf("archived layer = %q, want semantic", kept.Layer)
	}
	if kept.ExpiresAt != nil {
		t.Error("archived episode still carries a TTL")
	}
	if kept.DecayScore != archivedDecay {
		t.Errorf("archived decay = %v, want %v", kept.DecayScore, archivedDecay)
	}

	hasTag := func(tag string) bool {
		for _, c := range kept.Concepts {
			if c == tag {
				return true
			}
		}
		return false
	}
	if !hasTag("user:alice") || !hasTag("embeddings") {
		t.Errorf("archived tag trail incomplete: %v", kept.Concepts)
	}
}
