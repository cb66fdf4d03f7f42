// Package retention purges completed sessions past their retention
// window on a fixed interval.
package retention

import (
	"context"
	"time"

	"github.com/playden/playden/internal/clock"
	"github.com/playden/playden/internal/config"
	obsmetrics "github.com/playden/playden/internal/observability/metrics"
	"github.com/playden/playden/internal/session/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Repo    domain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
	Config  config.Config
}

// Worker deletes completed sessions whose end time is older than the
// configured maximum age. Active sessions are never touched.
type Worker struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     domain.Repository
	metrics  *obsmetrics.Metrics
	maxAge   time.Duration
	interval time.Duration
}

func New(p Params) *Worker {
	return &Worker{
		db:       p.DB,
		log:      p.Log.Named("retention.worker"),
		clock:    p.Clock,
		repo:     p.Repo,
		metrics:  p.Metrics,
		maxAge:   p.Config.RetentionMaxAge,
		interval: p.Config.RetentionInterval,
	}
}

// RunOnce performs a single purge sweep and returns the number of
// sessions removed.
func (w *Worker) RunOnce(ctx context.Context) (int64, error) {
	cutoff := w.clock.Now().UTC().Add(-w.maxAge)
	purged, err := w.repo.PurgeCompletedBefore(ctx, w.db, cutoff)
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		w.metrics.RecordRetentionPurged(ctx, purged)
		w.log.Info("purged expired sessions",
			zap.Int64("purged", purged),
			zap.Time("cutoff", cutoff),
		)
	}
	return purged, nil
}

// RunForever sweeps on the configured interval until the context is
// canceled.
func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil {
			w.log.Warn("retention sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
