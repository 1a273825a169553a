package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/visualmatch/internal/constants"
	"github.com/kozaktomas/visualmatch/internal/lock"
	"github.com/kozaktomas/visualmatch/internal/logger"
)

// LockKey names the lease guarding backfill runs of kind.
func LockKey(kind string) string {
	return "backfill:" + kind
}

// RunExclusive executes the pipeline while holding its kind's lease. It returns
// lock.ErrHeld without running when another run is in progress.
func RunExclusive(ctx context.Context, locker lock.Locker, p *Pipeline, batchSize int) (*Report, error) {
	release, err := locker.Acquire(ctx, LockKey(p.Kind()), constants.BackfillLockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		// Release on a fresh context so a cancelled run still frees the lease.
		relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := release(relCtx); err != nil {
			p.logger.Warn("failed to release backfill lock", zap.Error(err))
		}
	}()

	return p.Execute(ctx, batchSize)
}

// Scheduler runs backfill pipelines on a fixed interval.
type Scheduler struct {
	pipelines []*Pipeline
	locker    lock.Locker
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

// NewScheduler creates a scheduler. The interval must be positive.
func NewScheduler(pipelines []*Pipeline, locker lock.Locker, interval time.Duration, batchSize int, l *zap.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("backfill interval must be positive, got %s", interval)
	}
	return &Scheduler{
		pipelines: pipelines,
		locker:    locker,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger.OrNop(l),
	}, nil
}

// Run ticks until ctx is done. Each tick runs every pipeline once; a pipeline whose
// lease is held elsewhere is skipped for that tick.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("backfill scheduler started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("backfill scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs every pipeline once.
func (s *Scheduler) Tick(ctx context.Context) {
	for _, p := range s.pipelines {
		if ctx.Err() != nil {
			return
		}
		_, err := RunExclusive(ctx, s.locker, p, s.batchSize)
		switch {
		case err == nil:
		case errors.Is(err, lock.ErrHeld):
			s.logger.Info("backfill already running elsewhere, skipping", zap.String("kind", p.Kind()))
		default:
			s.logger.Error("scheduled backfill failed", zap.String("kind", p.Kind()), zap.Error(err))
		}
	}
}
