package memory

import (
	"math"
	"time"

	"github.com/jellycore/oracle/internal/store"
)

// Decay constants. The lambda values set the half-life of a
// never-accessed document: roughly 69 days at 0.01 and 139 days at
// 0.005. Access keeps documents alive: the factor starts at 0.5 for a
// never-read document and saturates at 1.0 after ten reads.
const (
	DefaultLambda    = 0.01
	ProceduralLambda = 0.005

	AccessFloor = 0.5
	AccessStep  = 0.05
)

// Lambda returns the decay constant for a memory layer. The user model
// does not decay; its lambda is meaningless and callers must check the
// layer before applying the formula, or use Score which does.
func Lambda(layer store.Layer) float64 {
	if layer == store.LayerProcedural {
		return ProceduralLambda
	}
	return DefaultLambda
}

// Score computes the decay score for a document: recency times access.
// This is the authoritative formula; the batch SQL in the store mirrors
// it and the two must stay in sync.
func Score(layer store.Layer, updatedAt time.Time, accessCount int, now time.Time) float64 {
	if layer == store.LayerUserModel {
		return 1.0
	}

	days := now.Sub(updatedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	recency := math.Exp(-Lambda(layer) * days)

	access := AccessFloor + float64(accessCount)*AccessStep
	if access > 1 {
		access = 1
	}
	return recency * access
}
