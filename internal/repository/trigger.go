package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/triggerd/internal/domain"
)

type ListTriggersInput struct {
	AfterID int64 // keyset cursor, 0 = first page
	Limit   int
}

// TriggerRepository is the durable trigger registry. Claim is the only
// concurrency primitive: every implementation must perform it as a single
// conditional write against the backing store.
type TriggerRepository interface {
	Create(ctx context.Context, t *domain.Trigger) (*domain.Trigger, error)

	// GetByIDs returns every trigger it found. When some IDs are absent the
	// error is a *domain.MissingTriggersError and the map still holds the rest.
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Trigger, error)
	List(ctx context.Context, input ListTriggersInput) ([]*domain.Trigger, error)

	// GetDue returns free triggers with next_fire_at <= now, earliest first.
	GetDue(ctx context.Context, now time.Time, limit int) ([]*domain.Trigger, error)

	// Claim transitions a free trigger to claimed if its version still equals
	// expectedVersion. Returns domain.ErrClaimConflict otherwise.
	Claim(ctx context.Context, id int64, evaluatorID string, now time.Time, expectedVersion int64) (*domain.Trigger, error)

	// RecordFiring releases the claim held by rec.EvaluatorID, updates the
	// schedule bookkeeping and appends an event. Returns domain.ErrFiringConflict
	// when the version moved or the claim belongs to someone else.
	RecordFiring(ctx context.Context, rec domain.FiringRecord) error

	// ReleaseStaleClaims frees claims taken strictly before cutoff.
	ReleaseStaleClaims(ctx context.Context, cutoff time.Time, limit int) (int, error)

	Cancel(ctx context.Context, id int64, now time.Time) (*domain.Trigger, error)
	Delete(ctx context.Context, id int64) error

	// ListEvents returns the newest events first.
	ListEvents(ctx context.Context, triggerID int64, limit int) ([]*domain.Event, error)
}
