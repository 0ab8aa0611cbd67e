// Package schedule computes when a trigger should fire next.
//
// Everything here is pure: the current time is always passed in, so the
// evaluator can be tested without a clock.
package schedule

import (
	"fmt"
	"math"
	"time"

	"github.com/ErlanBelekov/triggerd/internal/domain"
)

// IntervalPolicy decides how an interval schedule recovers from missed runs,
// e.g. after the dispatcher was offline for several periods.
type IntervalPolicy string

const (
	// IntervalAdvance moves to the first slot lastFiredAt+k*period that is
	// strictly after now. Missed slots are not replayed; the phase is kept.
	IntervalAdvance IntervalPolicy = "advance"
	// IntervalStep always returns lastFiredAt+period, even if that is already
	// in the past. Each missed slot then fires once, back to back.
	IntervalStep IntervalPolicy = "step"
)

func ParseIntervalPolicy(s string) (IntervalPolicy, error) {
	switch IntervalPolicy(s) {
	case IntervalAdvance, IntervalStep:
		return IntervalPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown interval policy %q", s)
	}
}

// MaxIntervalSeconds is the longest interval whose period still fits in a
// time.Duration.
const MaxIntervalSeconds = math.MaxInt64 / int64(time.Second)

// One-shot fire times must fall in the years both stores and RFC 3339 can
// represent.
const (
	minFireAtYear = 1
	maxFireAtYear = 9999
)

type Evaluator struct {
	policy IntervalPolicy
}

func NewEvaluator(policy IntervalPolicy) *Evaluator {
	if policy == "" {
		policy = IntervalAdvance
	}
	return &Evaluator{policy: policy}
}

func (e *Evaluator) Policy() IntervalPolicy {
	return e.policy
}

// Validate reports whether s is a well-formed schedule.
func (e *Evaluator) Validate(s domain.Schedule) error {
	switch s.Kind {
	case domain.ScheduleInterval:
		if s.IntervalSeconds <= 0 {
			return fmt.Errorf("%w: interval must be a positive number of seconds", domain.ErrInvalidSchedule)
		}
		if s.IntervalSeconds > MaxIntervalSeconds {
			return fmt.Errorf("%w: interval must be at most %d seconds", domain.ErrInvalidSchedule, MaxIntervalSeconds)
		}
	case domain.ScheduleOnce:
		if s.FireAt == nil || s.FireAt.IsZero() {
			return fmt.Errorf("%w: one-shot schedule needs fire_at", domain.ErrInvalidSchedule)
		}
		if y := s.FireAt.UTC().Year(); y < minFireAtYear || y > maxFireAtYear {
			return fmt.Errorf("%w: fire_at must fall within years %d to %d", domain.ErrInvalidSchedule, minFireAtYear, maxFireAtYear)
		}
	case domain.ScheduleCron:
		if _, err := parseCron(s.CronExpr, s.Timezone); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidSchedule, err)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidSchedule, s.Kind)
	}
	return nil
}

// Next returns the next fire time for s, or nil when the schedule will never
// fire again.
func (e *Evaluator) Next(s domain.Schedule, lastFiredAt *time.Time, now time.Time) (*time.Time, error) {
	switch s.Kind {
	case domain.ScheduleInterval:
		return e.nextInterval(s, lastFiredAt, now)
	case domain.ScheduleOnce:
		if s.FireAt == nil {
			return nil, fmt.Errorf("%w: one-shot schedule needs fire_at", domain.ErrInvalidSchedule)
		}
		if lastFiredAt != nil {
			return nil, nil
		}
		at := s.FireAt.UTC()
		return &at, nil
	case domain.ScheduleCron:
		return nextCron(s, lastFiredAt, now)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidSchedule, s.Kind)
	}
}

func (e *Evaluator) nextInterval(s domain.Schedule, lastFiredAt *time.Time, now time.Time) (*time.Time, error) {
	period := s.Interval()
	if period <= 0 {
		return nil, fmt.Errorf("%w: interval must be a positive number of seconds", domain.ErrInvalidSchedule)
	}

	// Never fired: due right away.
	if lastFiredAt == nil {
		due := now.UTC()
		return &due, nil
	}

	next := lastFiredAt.Add(period)
	if e.policy == IntervalAdvance && !next.After(now) {
		k := now.Sub(*lastFiredAt)/period + 1
		next = lastFiredAt.Add(k * period)
	}
	next = next.UTC()
	return &next, nil
}

func nextCron(s domain.Schedule, lastFiredAt *time.Time, now time.Time) (*time.Time, error) {
	cs, err := parseCron(s.CronExpr, s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSchedule, err)
	}

	after := now
	if lastFiredAt != nil && lastFiredAt.After(after) {
		after = *lastFiredAt
	}

	next := cs.next(after)
	if next.IsZero() {
		return nil, nil
	}
	next = next.UTC()
	return &next, nil
}
