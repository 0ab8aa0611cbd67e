package domain

import "time"

type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeRetrySoon Outcome = "retry_soon"
)

// Event is one firing attempt of a trigger. Events are append-only.
type Event struct {
	ID          int64
	TriggerID   int64
	EvaluatorID string
	Outcome     Outcome
	Detail      *string
	FiredAt     time.Time
	DurationMS  int64
}

// FiringRecord is everything the store needs to release a claim after a firing.
type FiringRecord struct {
	TriggerID           int64
	EvaluatorID         string
	ExpectedVersion     int64
	Outcome             Outcome
	Detail              *string
	FiredAt             time.Time
	Duration            time.Duration
	NextFireAt          *time.Time
	ConsecutiveFailures int
}
