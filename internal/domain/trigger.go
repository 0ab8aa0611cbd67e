package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTriggerNotFound   = errors.New("trigger not found")
	ErrClaimConflict     = errors.New("trigger claim conflict")
	ErrFiringConflict    = errors.New("trigger firing conflict")
	ErrInvalidSchedule   = errors.New("invalid schedule")
	ErrUnknownActionKind = errors.New("unknown action kind")
	ErrTriggerExhausted  = errors.New("trigger schedule is exhausted")
	ErrInvalidCursor     = errors.New("invalid cursor")
)

type ScheduleKind string

const (
	ScheduleInterval ScheduleKind = "interval"
	ScheduleCron     ScheduleKind = "cron"
	ScheduleOnce     ScheduleKind = "once"
)

// Schedule is a tagged variant; only the fields of Kind are meaningful.
type Schedule struct {
	Kind ScheduleKind

	IntervalSeconds int64

	CronExpr string
	Timezone string // IANA name, empty means UTC

	FireAt *time.Time
}

func (s Schedule) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// Action names the side effect a trigger performs. Payload is opaque to the scheduler.
type Action struct {
	Kind    string
	Payload json.RawMessage
}

type Trigger struct {
	ID       int64
	Schedule Schedule
	Action   Action

	LastFiredAt *time.Time
	NextFireAt  *time.Time // nil once the schedule is exhausted

	ClaimedBy *string // evaluator ID, nil when free
	ClaimedAt *time.Time

	Version             int64
	ConsecutiveFailures int
	CancelledAt         *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t *Trigger) IsClaimed() bool {
	return t.ClaimedBy != nil
}

func (t *Trigger) IsCancelled() bool {
	return t.CancelledAt != nil
}

// Describe returns the human-readable name used by operator tooling.
func (t *Trigger) Describe() string {
	return fmt.Sprintf("Trigger %d", t.ID)
}

// MissingTriggersError reports every ID a lookup could not resolve.
type MissingTriggersError struct {
	IDs []int64
}

func (e *MissingTriggersError) Error() string {
	parts := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("%s: %s", ErrTriggerNotFound, strings.Join(parts, ", "))
}

func (e *MissingTriggersError) Unwrap() error {
	return ErrTriggerNotFound
}
