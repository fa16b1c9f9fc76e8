package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jellycore/oracle/internal/store"
)

// ProcedureSource records how a procedure was learned.
type ProcedureSource string

const (
	SourceCorrection      ProcedureSource = "correction"
	SourceRepeatedPattern ProcedureSource = "repeated_pattern"
	SourceExplicit        ProcedureSource = "explicit"
)

// Valid reports whether s is a known source.
func (s ProcedureSource) Valid() bool {
	switch s {
	case SourceCorrection, SourceRepeatedPattern, SourceExplicit:
		return true
	}
	return false
}

// Procedure is a learned trigger-to-steps rule.
type Procedure struct {
	ID           string          `json:"id"`
	Trigger      string          `json:"trigger"`
	Steps        []string        `json:"procedure"`
	Source       ProcedureSource `json:"source"`
	SuccessCount int             `json:"successCount"`
	LastUsed     *time.Time      `json:"lastUsed,omitempty"`
}

// Confidence progression for procedures.
const (
	procedureBaseConfidence = 0.7
	procedureMaxConfidence  = 0.95
	procedureUsageStep      = 0.025
)

// ProcedureID derives the document ID from the normalized trigger
// text, so re-teaching the same trigger merges instead of duplicating.
func ProcedureID(trigger string) string {
	return store.DeterministicID("procedural", normalizeTrigger(trigger))
}

func normalizeTrigger(trigger string) string {
	return strings.ToLower(strings.Join(strings.Fields(trigger), " "))
}

func procedureConfidence(successCount int) float64 {
	c := procedureBaseConfidence + float64(successCount)*procedureUsageStep
	if c > procedureMaxConfidence {
		c = procedureMaxConfidence
	}
	return c
}

// Procedures manages the procedural memory layer.
//
// Procedures is safe for concurrent use.
type Procedures struct {
	docs   Store
	logger *slog.Logger
}

// NewProcedures creates the procedural layer over docs.
func NewProcedures(docs Store, logger *slog.Logger) (*Procedures, error) {
	if docs == nil {
		return nil, errors.New("document store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Procedures{docs: docs, logger: logger}, nil
}

// Learn records a trigger-to-steps rule. Re-learning an existing
// trigger unions the step lists, dropping exact duplicates, and
// increments the success count instead of inserting a second document.
func (p *Procedures) Learn(ctx context.Context, trigger string, steps []string, source ProcedureSource) (*Procedure, error) {
	if strings.TrimSpace(trigger) == "" {
		return nil, fmt.Errorf("%w: trigger is required", store.ErrInvalidInput)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: at least one step is required", store.ErrInvalidInput)
	}
	if source == "" {
		source = SourceExplicit
	}
	if !source.Valid() {
		return nil, fmt.Errorf("%w: unknown source %q", store.ErrInvalidInput, source)
	}

	id := ProcedureID(trigger)
	proc := &Procedure{
		ID:           id,
		Trigger:      trigger,
		Steps:        unionSteps(nil, steps),
		Source:       source,
		SuccessCount: 1,
	}
	confidence := procedureBaseConfidence

	existing, err := p.docs.Get(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// First time: insert fresh.
	case err != nil:
		return nil, fmt.Errorf("loading procedure %q: %w", id, err)
	default:
		var prev Procedure
		if decodeErr := json.Unmarshal(existing.Payload, &prev); decodeErr != nil {
			p.logger.Warn("procedure payload unreadable, relearning from scratch",
				"id", id, "error", decodeErr)
			break
		}
		proc.Trigger = prev.Trigger
		proc.Source = prev.Source
		proc.Steps = unionSteps(prev.Steps, steps)
		proc.SuccessCount = prev.SuccessCount + 1
		proc.LastUsed = prev.LastUsed
		confidence = procedureConfidence(proc.SuccessCount)
	}

	if err := p.save(ctx, proc, confidence); err != nil {
		return nil, err
	}
	return proc, nil
}

// RecordUsage marks a procedure as successfully applied: the success
// count and lastUsed advance, and confidence climbs toward its ceiling.
func (p *Procedures) RecordUsage(ctx context.Context, id string) (*Procedure, error) {
	doc, err := p.docs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var proc Procedure
	if err := json.Unmarshal(doc.Payload, &proc); err != nil {
		return nil, fmt.Errorf("decoding procedure %q: %w", id, err)
	}

	now := time.Now().UTC()
	proc.ID = id
	proc.SuccessCount++
	proc.LastUsed = &now

	if err := p.save(ctx, &proc, procedureConfidence(proc.SuccessCount)); err != nil {
		return nil, err
	}
	return &proc, nil
}

// Find returns procedures relevant to a situation, most proven first.
// Retrieval is semantic with a lexical fallback when the vector store
// returns nothing; final order is success count descending.
func (p *Procedures) Find(ctx context.Context, situation string, limit int) ([]*Procedure, error) {
	if limit <= 0 {
		limit = store.DefaultSearchLimit
	}

	docs, err := layerSearch(ctx, p.docs, situation, store.LayerProcedural, limit)
	if err != nil {
		return nil, fmt.Errorf("finding procedures: %w", err)
	}

	procs := make([]*Procedure, 0, len(docs))
	for _, doc := range docs {
		var proc Procedure
		if err := json.Unmarshal(doc.Payload, &proc); err != nil {
			p.logger.Warn("skipping unreadable procedure", "id", doc.ID, "error", err)
			continue
		}
		proc.ID = doc.ID
		procs = append(procs, &proc)
	}

	sort.SliceStable(procs, func(i, j int) bool {
		return procs[i].SuccessCount > procs[j].SuccessCount
	})
	return procs, nil
}

func (p *Procedures) save(ctx context.Context, proc *Procedure, confidence float64) error {
	payload, err := json.Marshal(proc)
	if err != nil {
		return fmt.Errorf("encoding procedure %q: %w", proc.ID, err)
	}

	doc := &store.Document{
		ID:         proc.ID,
		Kind:       store.KindPattern,
		Content:    procedureText(proc),
		Concepts:   []string{"procedure", string(proc.Source)},
		Payload:    payload,
		Layer:      store.LayerProcedural,
		Confidence: confidence,
	}
	if err := p.docs.Save(ctx, doc); err != nil {
		return fmt.Errorf("saving procedure %q: %w", proc.ID, err)
	}
	return nil
}

// procedureText renders the trigger and steps as the searchable body.
func procedureText(proc *Procedure) string {
	var b strings.Builder
	b.WriteString(proc.Trigger)
	for _, step := range proc.Steps {
		b.WriteString("\n- ")
		b.WriteString(step)
	}
	return b.String()
}

// unionSteps appends incoming steps that are not already present,
// matching by exact string, preserving order.
func unionSteps(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, s := range existing {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range incoming {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// layerSearch is the shared vector-first, lexical-fallback retrieval
// used by the procedural and episodic layers.
func layerSearch(ctx context.Context, docs Store, query string, layer store.Layer, limit int) ([]*store.Document, error) {
	req := store.SearchRequest{
		Query:          query,
		Limit:          limit,
		Layers:         []store.Layer{layer},
		Mode:           store.ModeSemantic,
		IncludePrivate: true,
	}

	resp, err := docs.Search(ctx, req)
	if err != nil || len(resp.Results) == 0 {
		req.Mode = store.ModeLexical
		resp, err = docs.Search(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	out := make([]*store.Document, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, r.Document)
	}
	return out, nil
}
