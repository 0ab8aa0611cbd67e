package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/triggerd/internal/domain"
)

const staleClaimDetail = "claim expired before the firing was recorded"

// sql.Row and sql.Rows both implement this.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrigger(row rowScanner) (*domain.Trigger, error) {
	var (
		t                    domain.Trigger
		payload              string
		fireAt, lastFired    sql.NullInt64
		nextFire, claimedAt  sql.NullInt64
		cancelledAt          sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&t.ID, &t.Schedule.Kind, &t.Schedule.IntervalSeconds, &t.Schedule.CronExpr, &t.Schedule.Timezone, &fireAt,
		&t.Action.Kind, &payload, &lastFired, &nextFire, &t.ClaimedBy, &claimedAt,
		&t.Version, &t.ConsecutiveFailures, &cancelledAt, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTriggerNotFound
		}
		return nil, fmt.Errorf("scan trigger: %w", err)
	}

	t.Schedule.FireAt = fromMicros(fireAt)
	t.Action.Payload = json.RawMessage(payload)
	t.LastFiredAt = fromMicros(lastFired)
	t.NextFireAt = fromMicros(nextFire)
	t.ClaimedAt = fromMicros(claimedAt)
	t.CancelledAt = fromMicros(cancelledAt)
	t.CreatedAt = time.UnixMicro(createdAt).UTC()
	t.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	return &t, nil
}

func collectTriggers(rows *sql.Rows) ([]*domain.Trigger, error) {
	defer rows.Close()

	var triggers []*domain.Trigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate triggers: %w", err)
	}
	return triggers, nil
}

func missing(ids []int64, found map[int64]*domain.Trigger) error {
	var absent []int64
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			absent = append(absent, id)
		}
	}
	if len(absent) == 0 {
		return nil
	}
	return &domain.MissingTriggersError{IDs: absent}
}

func toMicros(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMicro()
}

func fromMicros(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}
