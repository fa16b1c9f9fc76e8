package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jellycore/oracle/internal/store"
)

// Outcome classifies how an episode ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
	OutcomeUnknown Outcome = "unknown"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomePartial, OutcomeFailed, OutcomeUnknown:
		return true
	}
	return false
}

// Episode is one recorded interaction summary.
type Episode struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId,omitempty"`
	GroupID    string    `json:"groupId,omitempty"`
	Summary    string    `json:"summary"`
	Topics     []string  `json:"topics,omitempty"`
	Outcome    Outcome   `json:"outcome"`
	DurationMs int64     `json:"durationMs,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Episode lifecycle constants: fresh episodes live 90 days, every
// retrieval hit buys 30 more, and archived episodes restart at half
// decay.
const (
	EpisodeTTLDays       = 90
	EpisodeExtensionDays = 30
	PurgeBatchSize       = 100

	archivedDecay = 0.5
)

// Episodes manages the episodic memory layer.
//
// Episodes is safe for concurrent use.
type Episodes struct {
	docs   Store
	logger *slog.Logger
}

// NewEpisodes creates the episodic layer over docs.
func NewEpisodes(docs Store, logger *slog.Logger) (*Episodes, error) {
	if docs == nil {
		return nil, errors.New("document store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Episodes{docs: docs, logger: logger}, nil
}

// Record stores an episode with the standard TTL. A missing ID,
// outcome, or timestamp is filled in.
func (e *Episodes) Record(ctx context.Context, ep *Episode) (*Episode, error) {
	if ep == nil || strings.TrimSpace(ep.Summary) == "" {
		return nil, fmt.Errorf("%w: summary is required", store.ErrInvalidInput)
	}
	if ep.Outcome == "" {
		ep.Outcome = OutcomeUnknown
	}
	if !ep.Outcome.Valid() {
		return nil, fmt.Errorf("%w: unknown outcome %q", store.ErrInvalidInput, ep.Outcome)
	}
	if ep.RecordedAt.IsZero() {
		ep.RecordedAt = time.Now().UTC()
	}
	if ep.ID == "" {
		ep.ID = "episodic_" + uuid.NewString()
	}

	payload, err := json.Marshal(ep)
	if err != nil {
		return nil, fmt.Errorf("encoding episode: %w", err)
	}

	expires := ep.RecordedAt.AddDate(0, 0, EpisodeTTLDays)
	doc := &store.Document{
		ID:         ep.ID,
		Kind:       store.KindRetro,
		Content:    ep.Summary,
		Concepts:   episodeTags(ep),
		Payload:    payload,
		Layer:      store.LayerEpisodic,
		CreatedBy:  ep.UserID,
		Confidence: 0.7,
		ExpiresAt:  &expires,
	}
	if err := e.docs.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("saving episode %q: %w", ep.ID, err)
	}
	return ep, nil
}

// FindRelated returns live episodes related to a topic, optionally
// scoped to one user. Expired episodes never appear. Every returned
// episode has its TTL extended by thirty days.
func (e *Episodes) FindRelated(ctx context.Context, topic, userID string, limit int) ([]*Episode, error) {
	if limit <= 0 {
		limit = store.DefaultSearchLimit
	}

	docs, err := layerSearch(ctx, e.docs, topic, store.LayerEpisodic, limit)
	if err != nil {
		return nil, fmt.Errorf("finding episodes: %w", err)
	}

	var (
		episodes []*Episode
		hitIDs   []string
	)
	for _, doc := range docs {
		var ep Episode
		if err := json.Unmarshal(doc.Payload, &ep); err != nil {
			e.logger.Warn("skipping unreadable episode", "id", doc.ID, "error", err)
			continue
		}
		if userID != "" && ep.UserID != userID {
			continue
		}
		ep.ID = doc.ID
		episodes = append(episodes, &ep)
		hitIDs = append(hitIDs, doc.ID)
	}

	if err := e.docs.ExtendExpiry(ctx, hitIDs, EpisodeExtensionDays); err != nil {
		e.logger.Warn("extending episode expiry failed", "count", len(hitIDs), "error", err)
	}
	return episodes, nil
}

// PurgeExpired sweeps expired episodes in batches. A decodable episode
// is archived as a permanent semantic record keeping its tag trail; an
// undecodable one is removed outright. Returns archived and deleted
// counts.
func (e *Episodes) PurgeExpired(ctx context.Context) (archived, deleted int, err error) {
	for {
		expired, err := e.docs.ExpiredDocuments(ctx, store.LayerEpisodic, PurgeBatchSize)
		if err != nil {
			return archived, deleted, fmt.Errorf("listing expired episodes: %w", err)
		}
		if len(expired) == 0 {
			return archived, deleted, nil
		}

		for _, doc := range expired {
			var ep Episode
			if decodeErr := json.Unmarshal(doc.Payload, &ep); decodeErr != nil || strings.TrimSpace(ep.Summary) == "" {
				if delErr := e.docs.Delete(ctx, doc.ID); delErr != nil {
					return archived, deleted, fmt.Errorf("deleting corrupt episode %q: %w", doc.ID, delErr)
				}
				deleted++
				continue
			}

			ep.ID = doc.ID
			if archiveErr := e.archive(ctx, doc, &ep); archiveErr != nil {
				return archived, deleted, archiveErr
			}
			archived++
		}

		if len(expired) < PurgeBatchSize {
			return archived, deleted, nil
		}
	}
}

// archive converts an expired episode into a permanent semantic record:
// the TTL is dropped, decay restarts at the archive baseline, and the
// concepts collapse to a compact tag trail.
func (e *Episodes) archive(ctx context.Context, doc *store.Document, ep *Episode) error {
	archivedDoc := *doc
	archivedDoc.Layer = store.LayerSemantic
	archivedDoc.ExpiresAt = nil
	archivedDoc.DecayScore = archivedDecay
	archivedDoc.Concepts = episodeTags(ep)

	if err := e.docs.Save(ctx, &archivedDoc); err != nil {
		return fmt.Errorf("archiving episode %q: %w", doc.ID, err)
	}
	return nil
}

// episodeTags builds the compact tag trail kept on the document row.
func episodeTags(ep *Episode) []string {
	tags := []string{"episode"}
	if ep.UserID != "" {
		tags = append(tags, "user:"+ep.UserID)
	}
	if ep.GroupID != "" {
		tags = append(tags, "group:"+ep.GroupID)
	}
	if ep.Outcome != "" {
		tags = append(tags, "outcome:"+string(ep.Outcome))
	}
	tags = append(tags, ep.Topics...)
	return tags
}
