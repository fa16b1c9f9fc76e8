package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jellycore/oracle/internal/store"
)

// Model is a user's profile payload: expertise levels, communication
// preferences, known topics, timezone, and free-form notes. It is kept
// as a generic map so Update can deep-merge arbitrary nesting.
type Model map[string]any

// DefaultModel is what Get serves for a user with no persisted profile.
// It is never written to the store; the first Update creates the row.
func DefaultModel(userID string) Model {
	return Model{
		"userId":    userID,
		"expertise": map[string]any{},
		"communication": map[string]any{
			"language":       "auto",
			"responseLength": "medium",
			"tone":           "neutral",
		},
		"knownTopics": []any{},
		"timezone":    "",
		"notes":       "",
	}
}

// ModelID returns the document ID holding a user's profile.
func ModelID(userID string) string {
	return store.DeterministicID("user_model", userID)
}

// UserModels manages the per-user profile layer.
//
// UserModels is safe for concurrent use.
type UserModels struct {
	docs   Store
	logger *slog.Logger
}

// NewUserModels creates the user model layer over docs.
func NewUserModels(docs Store, logger *slog.Logger) (*UserModels, error) {
	if docs == nil {
		return nil, errors.New("document store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UserModels{docs: docs, logger: logger}, nil
}

// Get returns the user's persisted profile, or the in-memory default
// when none exists. Reading never persists anything.
func (u *UserModels) Get(ctx context.Context, userID string) (Model, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", store.ErrInvalidInput)
	}

	doc, err := u.docs.Get(ctx, ModelID(userID))
	if errors.Is(err, store.ErrNotFound) {
		return DefaultModel(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading user model for %q: %w", userID, err)
	}

	var m Model
	if err := json.Unmarshal(doc.Payload, &m); err != nil {
		u.logger.Warn("user model payload unreadable, serving defaults",
			"user", userID, "error", err)
		return DefaultModel(userID), nil
	}
	return m, nil
}

// Update deep-merges patch into the user's profile and persists the
// result. Nested objects merge key by key; arrays and primitives are
// replaced wholesale by the incoming value. userId and updatedAt are
// stamped on every write.
func (u *UserModels) Update(ctx context.Context, userID string, patch map[string]any) (Model, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", store.ErrInvalidInput)
	}

	current, err := u.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	merged := deepMerge(current, patch)
	merged["userId"] = userID
	merged["updatedAt"] = time.Now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encoding user model for %q: %w", userID, err)
	}

	doc := &store.Document{
		ID:         ModelID(userID),
		Kind:       store.KindLearning,
		Content:    modelSummary(userID, merged),
		Concepts:   []string{"user-profile", userID},
		Payload:    payload,
		Layer:      store.LayerUserModel,
		CreatedBy:  userID,
		Private:    true,
		Confidence: 1.0,
		DecayScore: 1.0,
	}
	if err := u.docs.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("saving user model for %q: %w", userID, err)
	}
	return merged, nil
}

// Reset hard-deletes the user's profile. The next Get serves defaults.
func (u *UserModels) Reset(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", store.ErrInvalidInput)
	}
	return u.docs.Delete(ctx, ModelID(userID))
}

// deepMerge merges patch into base without mutating either. Nested
// maps merge recursively; everything else, arrays included, is
// replaced by the patch value.
func deepMerge(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, pv := range patch {
		if pm, ok := pv.(map[string]any); ok {
			if bm, ok := out[k].(map[string]any); ok {
				out[k] = deepMerge(bm, pm)
				continue
			}
		}
		out[k] = pv
	}
	return out
}

// modelSummary renders a short lexical text for the profile row so the
// keyword index has something meaningful to match.
func modelSummary(userID string, m Model) string {
	var b strings.Builder
	fmt.Fprintf(&b, "user profile %s", userID)
	if tz, ok := m["timezone"].(string); ok && tz != "" {
		fmt.Fprintf(&b, ", timezone %s", tz)
	}
	if topics, ok := m["knownTopics"].([]any); ok && len(topics) > 0 {
		b.WriteString(", topics:")
		for _, t := range topics {
			if s, ok := t.(string); ok {
				b.WriteString(" " + s)
			}
		}
	}
	if notes, ok := m["notes"].(string); ok && notes != "" {
		b.WriteString(". " + notes)
	}
	return b.String()
}
