package media

import (
	"context"
	"time"

	"github.com/bandsite/service/internal/metrics"
	"github.com/bandsite/service/internal/storage"
	"github.com/rs/zerolog"
)

// SweeperConfig controls orphan collection.
type SweeperConfig struct {
	Interval time.Duration
	Grace    time.Duration
	Batch    int
}

// Sweeper removes stored objects left behind by uploads whose metadata
// write failed. Only FAILED rows older than the grace period are touched.
type Sweeper struct {
	repo  Repository
	store storage.Storage
	cfg   SweeperConfig
	log   zerolog.Logger
	now   func() time.Time
}

// NewSweeper creates a Sweeper.
func NewSweeper(repo Repository, store storage.Storage, cfg SweeperConfig, log zerolog.Logger) *Sweeper {
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	return &Sweeper{
		repo:  repo,
		store: store,
		cfg:   cfg,
		log:   log.With().Str("component", "sweeper").Logger(),
		now:   time.Now,
	}
}

// Run sweeps every Interval until ctx is done. A zero Interval disables it.
func (s *Sweeper) Run(ctx context.Context) {
	if s.cfg.Interval <= 0 {
		s.log.Info().Msg("orphan sweeper disabled")
		return
	}
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.cfg.Interval).Dur("grace", s.cfg.Grace).Msg("orphan sweeper started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.Error().Err(err).Msg("orphan sweep failed")
			}
		}
	}
}

// SweepOnce processes one batch and returns how many objects were purged.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.Grace)
	orphans, err := s.repo.ListUnpurgedFailed(ctx, cutoff, s.cfg.Batch)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, obj := range orphans {
		if ctx.Err() != nil {
			break
		}
		if err := s.store.Delete(ctx, obj.Key); err != nil {
			s.log.Warn().Err(err).Str("id", obj.ID).Str("key", obj.Key).Msg("orphan delete failed, will retry")
			continue
		}
		if err := s.repo.MarkPurged(ctx, obj.ID); err != nil {
			s.log.Warn().Err(err).Str("id", obj.ID).Msg("orphan removed but not marked purged")
			continue
		}
		metrics.SweptObjectsTotal.Inc()
		purged++
	}
	if purged > 0 {
		s.log.Info().Int("purged", purged).Int("candidates", len(orphans)).Msg("orphaned objects removed")
	}
	return purged, ctx.Err()
}
