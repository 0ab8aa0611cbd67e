package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ErlanBelekov/triggerd/internal/action"
	"github.com/ErlanBelekov/triggerd/internal/domain"
	"github.com/ErlanBelekov/triggerd/internal/logctx"
	"github.com/ErlanBelekov/triggerd/internal/metrics"
	"github.com/ErlanBelekov/triggerd/internal/repository"
	"github.com/ErlanBelekov/triggerd/internal/schedule"
)

// evaluationFallback is how far out a trigger is pushed when its schedule can
// no longer be evaluated, so a broken row does not fire on every poll.
const evaluationFallback = time.Hour

// ActionExecutor is satisfied by *action.Registry.
type ActionExecutor interface {
	Execute(ctx context.Context, a domain.Action) action.Outcome
}

type Config struct {
	PollInterval time.Duration
	BatchSize    int
	Concurrency  int
	ClaimTimeout time.Duration
	Backoff      Backoff
}

type Dispatcher struct {
	id        string
	repo      repository.TriggerRepository
	evaluator *schedule.Evaluator
	actions   ActionExecutor
	logger    *slog.Logger
	cfg       Config
	sem       chan struct{}
	wg        sync.WaitGroup
	clock     func() time.Time
}

func NewDispatcher(
	repo repository.TriggerRepository,
	evaluator *schedule.Evaluator,
	actions ActionExecutor,
	logger *slog.Logger,
	cfg Config,
) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	id := NewEvaluatorID()
	return &Dispatcher{
		id:        id,
		repo:      repo,
		evaluator: evaluator,
		actions:   actions,
		logger:    logger.With("component", "dispatcher", "evaluator_id", id),
		cfg:       cfg,
		sem:       make(chan struct{}, cfg.Concurrency),
		clock:     time.Now,
	}
}

// NewEvaluatorID returns <hostname>-<pid>-<8 hex chars>. The random suffix
// keeps two processes that reuse a pid in one container distinguishable.
func NewEvaluatorID() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), uuid.NewString()[:8])
}

func (d *Dispatcher) ID() string { return d.id }

// Start releases claims left behind by a previous crash, then polls until ctx
// is done. It returns once every in-flight firing has been recorded.
func (d *Dispatcher) Start(ctx context.Context) {
	metrics.DispatcherStartTime.SetToCurrentTime()

	if d.cfg.ClaimTimeout > 0 {
		cutoff := d.clock().Add(-d.cfg.ClaimTimeout)
		if n, err := d.repo.ReleaseStaleClaims(ctx, cutoff, d.cfg.BatchSize); err != nil {
			d.logger.Error("release stale claims on startup", "error", err)
		} else if n > 0 {
			metrics.StaleClaimsReleasedTotal.Add(float64(n))
			d.logger.Warn("released stale claims on startup", "count", n)
		}
	}

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	d.logger.Info("dispatcher started",
		"poll_interval", d.cfg.PollInterval,
		"concurrency", d.cfg.Concurrency,
		"batch_size", d.cfg.BatchSize,
	)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping, waiting for in-flight firings", "in_flight", len(d.sem))
			d.wg.Wait()
			metrics.DispatcherShutdownsTotal.Inc()
			d.logger.Info("dispatcher shut down")
			return
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

// poll claims up to the number of free slots and fires each claimed trigger
// in its own goroutine.
func (d *Dispatcher) poll(ctx context.Context) int {
	available := cap(d.sem) - len(d.sem)
	if available == 0 {
		return 0
	}

	start := time.Now()
	defer func() { metrics.PollDuration.Observe(time.Since(start).Seconds()) }()

	now := d.clock()
	due, err := d.repo.GetDue(ctx, now, min(d.cfg.BatchSize, available))
	if err != nil {
		d.logger.Error("get due triggers", "error", err)
		return 0
	}

	launched := 0
	for _, t := range due {
		claimed, err := d.repo.Claim(ctx, t.ID, d.id, now, t.Version)
		if err != nil {
			if errors.Is(err, domain.ErrClaimConflict) || errors.Is(err, domain.ErrTriggerNotFound) {
				metrics.ClaimConflictsTotal.Inc()
				d.logger.Debug("claim lost", "trigger_id", t.ID, "error", err)
				continue
			}
			d.logger.Error("claim trigger", "trigger_id", t.ID, "error", err)
			continue
		}
		if t.NextFireAt != nil {
			metrics.FireLag.Observe(now.Sub(*t.NextFireAt).Seconds())
		}

		d.sem <- struct{}{}
		d.wg.Add(1)
		launched++
		go func(t *domain.Trigger) {
			metrics.FiringsInFlight.Inc()
			defer metrics.FiringsInFlight.Dec()
			defer func() { <-d.sem }()
			defer d.wg.Done()
			if _, err := d.fire(ctx, t, d.clock()); err != nil {
				d.logger.Error("record firing", "trigger_id", t.ID, "error", err)
			}
		}(claimed)
	}

	if launched > 0 {
		d.logger.Info("fired triggers", "count", launched, "slots_used", len(d.sem), "slots_total", cap(d.sem))
	}
	return launched
}

// FireNow claims and fires one trigger synchronously, regardless of when it
// is next due. firedAt is the instant recorded for the firing and the base for
// the next evaluation.
func (d *Dispatcher) FireNow(ctx context.Context, id int64, firedAt time.Time) (action.Outcome, error) {
	found, err := d.repo.GetByIDs(ctx, []int64{id})
	if err != nil {
		return action.Outcome{}, err
	}
	t := found[id]
	if t.NextFireAt == nil {
		return action.Outcome{}, fmt.Errorf("%s: %w", t.Describe(), domain.ErrTriggerExhausted)
	}

	// The claim carries wall-clock time so an overridden firedAt in the past
	// does not make the claim look stale to a reaper.
	claimed, err := d.repo.Claim(ctx, id, d.id, d.clock(), t.Version)
	if err != nil {
		return action.Outcome{}, fmt.Errorf("claim %s: %w", t.Describe(), err)
	}
	return d.fire(ctx, claimed, firedAt)
}

// fire runs the action of a trigger this dispatcher has claimed and records
// the outcome, releasing the claim.
func (d *Dispatcher) fire(ctx context.Context, t *domain.Trigger, firedAt time.Time) (action.Outcome, error) {
	ctx = logctx.WithTriggerID(ctx, t.ID)
	ctx = action.WithFiring(ctx, action.Firing{TriggerID: t.ID, Version: t.Version})

	d.logger.DebugContext(ctx, "firing trigger", "action", t.Action.Kind)

	start := time.Now()
	out := d.actions.Execute(ctx, t.Action)
	elapsed := time.Since(start)

	metrics.FiringDuration.WithLabelValues(t.Action.Kind).Observe(elapsed.Seconds())
	metrics.FiringsTotal.WithLabelValues(t.Action.Kind, string(out.Status)).Inc()

	switch out.Status {
	case action.StatusSuccess:
		d.logger.InfoContext(ctx, "trigger fired", "action", t.Action.Kind, "duration", elapsed)
	default:
		d.logger.WarnContext(ctx, "trigger action did not succeed",
			"action", t.Action.Kind,
			"outcome", out.Status,
			"detail", out.Detail,
			"consecutive_failures", t.ConsecutiveFailures+1,
		)
	}

	// The result must land even when shutdown cancelled ctx mid-action,
	// otherwise the claim stays held until the reaper times it out.
	return out, d.record(context.WithoutCancel(ctx), t, out, firedAt, elapsed)
}

func (d *Dispatcher) record(ctx context.Context, t *domain.Trigger, out action.Outcome, firedAt time.Time, elapsed time.Duration) error {
	err := d.repo.RecordFiring(ctx, d.firingRecord(ctx, t, out, firedAt, elapsed))
	if !errors.Is(err, domain.ErrFiringConflict) {
		return err
	}

	// Someone bumped the version while the action ran. A cancel does that
	// without taking the claim, so the claim may still be ours.
	found, getErr := d.repo.GetByIDs(ctx, []int64{t.ID})
	if getErr != nil {
		return fmt.Errorf("reload after firing conflict: %w", getErr)
	}
	fresh := found[t.ID]
	if fresh.ClaimedBy == nil || *fresh.ClaimedBy != d.id {
		metrics.RecordConflictsTotal.Inc()
		d.logger.WarnContext(ctx, "claim lost before firing was recorded", "outcome", out.Status)
		return err
	}

	if err := d.repo.RecordFiring(ctx, d.firingRecord(ctx, fresh, out, firedAt, elapsed)); err != nil {
		metrics.RecordConflictsTotal.Inc()
		return fmt.Errorf("record firing after reload: %w", err)
	}
	return nil
}

func (d *Dispatcher) firingRecord(ctx context.Context, t *domain.Trigger, out action.Outcome, firedAt time.Time, elapsed time.Duration) domain.FiringRecord {
	now := firedAt.Add(elapsed)
	failures := t.ConsecutiveFailures

	var next *time.Time
	switch out.Status {
	case action.StatusSuccess:
		failures = 0
		next = d.nextFire(ctx, t, firedAt, now)
	case action.StatusRetrySoon:
		failures++
		at := now.Add(d.cfg.Backoff.Delay(failures)).UTC()
		next = &at
	default:
		failures++
		next = d.nextFire(ctx, t, firedAt, now)
	}

	rec := domain.FiringRecord{
		TriggerID:           t.ID,
		EvaluatorID:         d.id,
		ExpectedVersion:     t.Version,
		Outcome:             out.Status,
		FiredAt:             firedAt.UTC(),
		Duration:            elapsed,
		NextFireAt:          next,
		ConsecutiveFailures: failures,
	}
	if out.Detail != "" {
		detail := out.Detail
		rec.Detail = &detail
	}
	return rec
}

func (d *Dispatcher) nextFire(ctx context.Context, t *domain.Trigger, firedAt, now time.Time) *time.Time {
	next, err := d.evaluator.Next(t.Schedule, &firedAt, now)
	if err != nil {
		d.logger.ErrorContext(ctx, "evaluate schedule, pushing trigger out", "error", err, "fallback", evaluationFallback)
		at := now.Add(evaluationFallback).UTC()
		return &at
	}
	return next
}
