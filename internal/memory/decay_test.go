package memory

import (
	"math"
	"testing"
	"time"

	"github.com/jellycore/oracle/internal/store"
)

func TestScoreUserModelNeverDecays(t *testing.T) {
	now := time.Now()
	ancient := now.AddDate(-5, 0, 0)

	if got := Score(store.LayerUserModel, ancient, 0, now); got != 1.0 {
		t.Errorf("user model score = %v, want exactly 1.0", got)
	}
}

func TestScoreProceduralHalfLife(t *testing.T) {
	// 139 days at lambda 0.005 is one half-life; with zero accesses the
	// access floor halves it again.
	now := time.Now()
	updated := now.AddDate(0, 0, -139)

	got := Score(store.LayerProcedural, updated, 0, now)
	if math.Abs(got-0.25) > 0.01 {
		t.Errorf("procedural score after 139 days = %v, want ~0.25", got)
	}
}

func TestScoreSemanticHalfLife(t *testing.T) {
	now := time.Now()
	updated := now.AddDate(0, 0, -69)

	got := Score(store.LayerSemantic, updated, 0, now)
	if math.Abs(got-0.25) > 0.01 {
		t.Errorf("semantic score after 69 days = %v, want ~0.25", got)
	}
}

func TestScoreAccessFactor(t *testing.T) {
	now := time.Now()

	// Fresh document, never accessed: recency 1.0 x floor 0.5.
	if got := Score(store.LayerSemantic, now, 0, now); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("fresh unaccessed score = %v, want 0.5", got)
	}

	// Access factor saturates at ten reads.
	ten := Score(store.LayerSemantic, now, 10, now)
	hundred := Score(store.LayerSemantic, now, 100, now)
	if ten != hundred {
		t.Errorf("access factor not saturated: 10 reads = %v, 100 reads = %v", ten, hundred)
	}
	if math.Abs(ten-1.0) > 1e-9 {
		t.Errorf("saturated fresh score = %v, want 1.0", ten)
	}
}

func TestScoreFutureUpdateClamped(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)

	if got := Score(store.LayerSemantic, future, 0, now); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("future-dated score = %v, want 0.5 (no negative age)", got)
	}
}

func TestLambda(t *testing.T) {
	if got := Lambda(store.LayerProcedural); got != ProceduralLambda {
		t.Errorf("procedural lambda = %v, want %v", got, ProceduralLambda)
	}
	if got := Lambda(store.LayerEpisodic); got != DefaultLambda {
		t.Errorf("episodic lambda = %v, want %v", got, DefaultLambda)
	}
}
