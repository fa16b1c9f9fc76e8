package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
	"strings"
	"time"
)

var (
	// ErrNotFound indicates the document does not exist or is not visible.
	ErrNotFound = errors.New("document not found")

	// ErrAlreadySuperseded indicates the supersession pointer was already
	// set; it is append-only and immutable.
	ErrAlreadySuperseded = errors.New("document already superseded")

	// ErrInvalidInput indicates a structurally invalid document or request.
	ErrInvalidInput = errors.New("invalid input")
)

// Kind categorizes a document. The set is closed and reused loosely
// across memory layers.
type Kind string

const (
	KindPrinciple Kind = "principle"
	KindPattern   Kind = "pattern"
	KindLearning  Kind = "learning"
	KindRetro     Kind = "retro"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPrinciple, KindPattern, KindLearning, KindRetro:
		return true
	}
	return false
}

// Layer is a memory layer with its own lifecycle and decay rules.
type Layer string

const (
	LayerUserModel  Layer = "user_model"
	LayerProcedural Layer = "procedural"
	LayerSemantic   Layer = "semantic"
	LayerEpisodic   Layer = "episodic"
)

// Valid reports whether l is a known layer.
func (l Layer) Valid() bool {
	switch l {
	case LayerUserModel, LayerProcedural, LayerSemantic, LayerEpisodic:
		return true
	}
	return false
}

// NormalizeLayer maps a stored layer value to its canonical form.
// Legacy rows carry NULL for "semantic"; that convention is resolved
// here, at the read boundary, so business logic never checks for it.
func NormalizeLayer(s *string) Layer {
	if s == nil || *s == "" {
		return LayerSemantic
	}
	return Layer(*s)
}

// ParseLayers parses a comma-separated layer list, dropping unknown
// values.
func ParseLayers(s string) []Layer {
	var layers []Layer
	for _, part := range strings.Split(s, ",") {
		if l := Layer(strings.TrimSpace(part)); l.Valid() {
			layers = append(layers, l)
		}
	}
	return layers
}

// Document is the universal record persisted by the engine.
type Document struct {
	ID        string
	Kind      Kind
	Content   string
	SourceRef string
	Concepts  []string

	// Payload carries the layer-specific structured data as JSON.
	Payload []byte

	Layer     Layer
	Project   string
	Origin    string
	CreatedBy string
	Private   bool

	// Confidence and DecayScore are 0-1 floats, persisted as 0-100
	// integers.
	Confidence float64
	DecayScore float64

	AccessCount    int
	LastAccessedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	IndexedAt *time.Time

	SupersededBy     *string
	SupersededAt     *time.Time
	SupersededReason string

	EmbeddingModel   string
	EmbeddingVersion int
	EmbeddingHash    string

	ChunkIndex  int
	TotalChunks int
	ParentID    *string

	ExpiresAt *time.Time
}

// Expired reports whether the document's TTL has passed.
func (d *Document) Expired(now time.Time) bool {
	return d.ExpiresAt != nil && d.ExpiresAt.Before(now)
}

// ScoreToInt converts a 0-1 score to its 0-100 storage form.
func ScoreToInt(f float64) int {
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return int(math.Round(f * 100))
}

// ScoreFromInt converts a 0-100 stored score back to 0-1.
func ScoreFromInt(n int) float64 {
	if n < 0 {
		n = 0
	}
	if n > 100 {
		n = 100
	}
	return float64(n) / 100
}

// ContentHash is the canonical hash of embedded text, used to detect
// when a document needs re-embedding.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// DeterministicID derives a stable document ID from a logical key, so
// re-learning the same key updates rather than duplicates.
func DeterministicID(prefix, key string) string {
	sum := sha256.Sum256([]byte(key))
	return prefix + "_" + hex.EncodeToString(sum[:8])
}
