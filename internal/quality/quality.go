// Package quality implements posterior correction of retrieval weights.
//
// The classifier produces a prior guess about how to blend the lexical
// and vector sources. After both sources return, this package scores the
// quality of what each actually delivered and corrects the blend: the
// prior is dampened (raised to an exponent < 1) and multiplied by the
// measured quality, so a source that returned garbage loses weight even
// when the classifier favored it.
package quality

import (
	"math"

	"github.com/jellycore/oracle/internal/classifier"
)

// Quality metric weights. Relevance dominates; coverage and gap reward a
// source that filled the request and produced a standout top hit;
// coherence rewards tight score clustering.
const (
	weightRelevance = 0.35
	weightCoverage  = 0.25
	weightGap       = 0.25
	weightCoherence = 0.15
)

// priorDamping is the exponent applied to the prior weight. Below 1 it
// flattens the prior so measured quality can override a wrong guess.
const priorDamping = 0.4

// qualityFloor keeps a source alive even with zero measured quality, so
// renormalization never divides by zero when the prior is nonzero.
const qualityFloor = 0.1

// topN caps how many leading scores feed relevance and coherence.
const topN = 5

// Source describes the measured quality of one retrieval source.
type Source struct {
	Relevance float64 `json:"relevance"` // mean of top-5 scores, clamped to 1
	Coherence float64 `json:"coherence"` // 1 - 5*stddev(top-5), clamped >= 0
	Gap       float64 `json:"gap"`       // standout-top-hit signal
	Coverage  float64 `json:"coverage"`  // returned / requested, clamped to 1
	Composite float64 `json:"composite"`
}

// Weights is the corrected, normalized blend.
type Weights struct {
	FTS           float64 `json:"ftsWeight"`
	Vector        float64 `json:"vectorWeight"`
	FTSQuality    Source  `json:"ftsQuality"`
	VectorQuality Source  `json:"vectorQuality"`
}

// Assess computes the quality profile for one source from its raw
// relevance scores (descending order expected) and the originally
// requested result count.
func Assess(scores []float64, requested int) Source {
	var q Source

	top := scores
	if len(top) > topN {
		top = top[:topN]
	}

	if len(top) > 0 {
		var sum float64
		for _, s := range top {
			sum += s
		}
		q.Relevance = math.Min(1.0, sum/float64(len(top)))
		q.Coherence = math.Max(0, 1-5*stddev(top))
	}

	switch {
	case len(scores) >= 2:
		q.Gap = math.Min(1.0, 10*(scores[0]-scores[1]))
		if q.Gap < 0 {
			q.Gap = 0
		}
	case len(scores) == 1 && scores[0] > 0.3:
		// A single decent hit is weak evidence of confidence.
		q.Gap = 0.5
	}

	if requested > 0 {
		q.Coverage = math.Min(1.0, float64(len(scores))/float64(requested))
	}

	q.Composite = weightRelevance*q.Relevance +
		weightCoverage*q.Coverage +
		weightGap*q.Gap +
		weightCoherence*q.Coherence
	return q
}

// Correct combines the classifier prior with measured per-source quality
// and returns normalized blend weights summing to 1.0.
//
// Posterior per source: prior^0.4 * max(0.1, composite quality).
func Correct(prior classifier.Profile, ftsScores, vectorScores []float64, requested int) Weights {
	fq := Assess(ftsScores, requested)
	vq := Assess(vectorScores, requested)

	fts := math.Pow(prior.FTSWeight, priorDamping) * math.Max(qualityFloor, fq.Composite)
	vec := math.Pow(prior.VectorWeight, priorDamping) * math.Max(qualityFloor, vq.Composite)

	sum := fts + vec
	if sum <= 0 {
		// Both priors were zero; split evenly rather than divide by zero.
		fts, vec, sum = 0.5, 0.5, 1.0
	}

	return Weights{
		FTS:           fts / sum,
		Vector:        vec / sum,
		FTSQuality:    fq,
		VectorQuality: vq,
	}
}

// stddev is the population standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	return math.Sqrt(variance)
}
