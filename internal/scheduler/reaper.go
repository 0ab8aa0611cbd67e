package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/triggerd/internal/metrics"
	"github.com/ErlanBelekov/triggerd/internal/repository"
)

// Reaper frees claims whose holder died before recording a result. The
// trigger keeps its next_fire_at, so it is picked up again on the next poll.
type Reaper struct {
	repo         repository.TriggerRepository
	interval     time.Duration
	claimTimeout time.Duration
	batchSize    int
	logger       *slog.Logger
	clock        func() time.Time
}

func NewReaper(repo repository.TriggerRepository, logger *slog.Logger, interval, claimTimeout time.Duration) *Reaper {
	return &Reaper{
		repo:         repo,
		interval:     interval,
		claimTimeout: claimTimeout,
		batchSize:    100,
		logger:       logger.With("component", "reaper"),
		clock:        time.Now,
	}
}

func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reaper started", "interval", r.interval, "claim_timeout", r.claimTimeout)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper shut down")
			return
		case <-ticker.C:
			r.reap(ctx)
		}
	}
}

func (r *Reaper) reap(ctx context.Context) int {
	start := time.Now()
	defer func() { metrics.ReaperCycleDuration.Observe(time.Since(start).Seconds()) }()

	cutoff := r.clock().Add(-r.claimTimeout)
	total := 0
	for {
		n, err := r.repo.ReleaseStaleClaims(ctx, cutoff, r.batchSize)
		if err != nil {
			r.logger.Error("release stale claims", "error", err)
			break
		}
		total += n
		if n < r.batchSize {
			break
		}
	}

	if total > 0 {
		metrics.StaleClaimsReleasedTotal.Add(float64(total))
		r.logger.Warn("released stale claims", "count", total, "cutoff", cutoff)
	}
	return total
}
