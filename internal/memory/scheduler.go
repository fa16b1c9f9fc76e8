package memory

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jellycore/oracle/internal/store"
)

// DefaultMaintenanceInterval is how often background maintenance runs.
const DefaultMaintenanceInterval = 6 * time.Hour

// decayedLayers are the layers the decay pass walks. The user model is
// included so drifted legacy rows get re-pinned to full score.
var decayedLayers = []store.Layer{
	store.LayerUserModel,
	store.LayerProcedural,
	store.LayerSemantic,
	store.LayerEpisodic,
}

// Scheduler runs periodic memory maintenance: decay refresh, episodic
// purge, and embedding backfill. It is decoupled from request handling
// and works in bounded batches.
type Scheduler struct {
	docs     Store
	episodes *Episodes
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a maintenance scheduler. interval <= 0 uses the
// default.
func NewScheduler(docs Store, episodes *Episodes, interval time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if docs == nil {
		return nil, errors.New("document store is required")
	}
	if episodes == nil {
		return nil, errors.New("episodic store is required")
	}
	if interval <= 0 {
		interval = DefaultMaintenanceInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{docs: docs, episodes: episodes, interval: interval, logger: logger}, nil
}

// Run performs one maintenance pass immediately, then repeats on the
// configured interval until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("memory maintenance stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce executes a single maintenance pass. Each stage logs its own
// failure and the pass continues; maintenance is best-effort.
func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()

	for _, layer := range decayedLayers {
		n, err := s.docs.UpdateDecayScores(ctx, layer, Lambda(layer))
		if err != nil {
			s.logger.Warn("decay refresh failed", "layer", layer, "error", err)
			continue
		}
		if n > 0 {
			s.logger.Debug("decay refreshed", "layer", layer, "documents", n)
		}
	}

	archived, deleted, err := s.episodes.PurgeExpired(ctx)
	if err != nil {
		s.logger.Warn("episodic purge failed", "error", err)
	} else if archived > 0 || deleted > 0 {
		s.logger.Info("episodic purge done", "archived", archived, "deleted", deleted)
	}

	reembedded, err := s.docs.ReembedStale(ctx, store.ReembedBatchSize)
	if err != nil {
		s.logger.Warn("embedding backfill failed", "error", err)
	} else if reembedded > 0 {
		s.logger.Info("embedding backfill done", "documents", reembedded)
	}

	s.logger.Debug("memory maintenance pass complete", "elapsed", time.Since(start))
}
