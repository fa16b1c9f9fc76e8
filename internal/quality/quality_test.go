package quality

import (
	"math"
	"testing"

	"github.com/jellycore/oracle/internal/classifier"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestAssess(t *testing.T) {
	tests := []struct {
		name      string
		scores    []float64
		requested int
		check     func(t *testing.T, q Source)
	}{
		{
			name:      "empty scores",
			scores:    nil,
			requested: 10,
			check: func(t *testing.T, q Source) {
				if q.Composite != 0 {
					t.Errorf("composite = %v, want 0 for empty scores", q.Composite)
				}
			},
		},
		{
			name:      "single decent hit gets flat gap",
			scores:    []float64{0.8},
			requested: 5,
			check: func(t *testing.T, q Source) {
				if q.Gap != 0.5 {
					t.Errorf("gap = %v, want 0.5", q.Gap)
				}
			},
		},
		{
			name:      "single weak hit gets no gap",
			scores:    []float64{0.2},
			requested: 5,
			check: func(t *testing.T, q Source) {
				if q.Gap != 0 {
					t.Errorf("gap = %v, want 0", q.Gap)
				}
			},
		},
		{
			name:      "standout top hit saturates gap",
			scores:    []float64{0.9, 0.2, 0.1},
			requested: 3,
			check: func(t *testing.T, q Source) {
				if q.Gap != 1.0 {
					t.Errorf("gap = %v, want 1.0 (10*(0.9-0.2) clamped)", q.Gap)
				}
			},
		},
		{
			name:      "tight cluster is coherent",
			scores:    []float64{0.80, 0.79, 0.78, 0.78, 0.77},
			requested: 5,
			check: func(t *testing.T, q Source) {
				if q.Coherence < 0.9 {
					t.Errorf("coherence = %v, want >= 0.9 for tight cluster", q.Coherence)
				}
				if q.Coverage != 1.0 {
					t.Errorf("coverage = %v, want 1.0", q.Coverage)
				}
			},
		},
		{
			name:      "scattered scores lose coherence",
			scores:    []float64{0.9, 0.5, 0.3, 0.1, 0.05},
			requested: 5,
			check: func(t *testing.T, q Source) {
				if q.Coherence > 0.2 {
					t.Errorf("coherence = %v, want near 0 for scattered scores", q.Coherence)
				}
			},
		},
		{
			name:      "partial coverage",
			scores:    []float64{0.7, 0.6},
			requested: 10,
			check: func(t *testing.T, q Source) {
				if !almostEqual(q.Coverage, 0.2, 1e-9) {
					t.Errorf("coverage = %v, want 0.2", q.Coverage)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Assess(tt.scores, tt.requested))
		})
	}
}

func TestCorrectWeightsSumToOne(t *testing.T) {
	priors := []classifier.Profile{
		classifier.Classify("`exactToken` ERR_X"),
		classifier.Classify("why is everything broken"),
		classifier.Classify("redis"),
	}
	scoreSets := [][]float64{
		nil,
		{},
		{0.9},
		{0.9, 0.8, 0.7},
		{0.1, 0.05},
	}
	for _, prior := range priors {
		for _, fts := range scoreSets {
			for _, vec := range scoreSets {
				w := Correct(prior, fts, vec, 10)
				if sum := w.FTS + w.Vector; !almostEqual(sum, 1.0, 1e-9) {
					t.Errorf("Correct(%v, %v, %v) weights sum %v, want 1.0", prior.Type, fts, vec, sum)
				}
			}
		}
	}
}

// Regression test for the self-correction mechanism: a prior favoring
// FTS must flip toward vector when FTS returns near-zero scores and the
// vector source returns tight, high-scoring matches.
func TestCorrectOverridesWrongPrior(t *testing.T) {
	prior := classifier.Profile{
		Type: classifier.TypeExact, FTSWeight: 0.85, VectorWeight: 0.15,
		FTSCandidates: 6, VectorCandidates: 3,
	}
	fts := []float64{0.02, 0.01, 0.01}
	vec := []float64{0.95, 0.93, 0.92, 0.91, 0.90}

	w := Correct(prior, fts, vec, 5)
	if w.Vector <= w.FTS {
		t.Fatalf("posterior fts=%v vector=%v, want vector > fts", w.FTS, w.Vector)
	}
}

// Order independence per source: shuffling which side a score list is
// passed on must mirror the weights, not change their magnitudes.
func TestCorrectSymmetry(t *testing.T) {
	prior := classifier.Profile{FTSWeight: 0.5, VectorWeight: 0.5}
	a := []float64{0.9, 0.8}
	b := []float64{0.3, 0.2}

	w1 := Correct(prior, a, b, 5)
	w2 := Correct(prior, b, a, 5)
	if !almostEqual(w1.FTS, w2.Vector, 1e-9) || !almostEqual(w1.Vector, w2.FTS, 1e-9) {
		t.Errorf("symmetric inputs gave asymmetric weights: %+v vs %+v", w1, w2)
	}
}

func TestCorrectBothEmpty(t *testing.T) {
	prior := classifier.Classify("anything at all")
	w := Correct(prior, nil, nil, 10)
	if sum := w.FTS + w.Vector; !almostEqual(sum, 1.0, 1e-9) {
		t.Errorf("weights sum %v, want 1.0 with both score lists empty", sum)
	}
}
