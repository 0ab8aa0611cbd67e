package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/triggerd/internal/domain"
	"github.com/ErlanBelekov/triggerd/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const triggerColumns = `id, schedule_kind, interval_seconds, cron_expr, timezone, fire_at,
	action_kind, action_payload, last_fired_at, next_fire_at, claimed_by, claimed_at,
	version, consecutive_failures, cancelled_at, created_at, updated_at`

const staleClaimDetail = "claim expired before the firing was recorded"

type TriggerRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ repository.TriggerRepository = (*TriggerRepository)(nil)

func NewTriggerRepository(pool *pgxpool.Pool, logger *slog.Logger) *TriggerRepository {
	return &TriggerRepository{pool: pool, logger: logger.With("component", "trigger_repo", "driver", "postgres")}
}

func (r *TriggerRepository) Create(ctx context.Context, t *domain.Trigger) (*domain.Trigger, error) {
	payload := []byte(t.Action.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO triggers (
			schedule_kind, interval_seconds, cron_expr, timezone, fire_at,
			action_kind, action_payload, next_fire_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+triggerColumns,
		t.Schedule.Kind, t.Schedule.IntervalSeconds, t.Schedule.CronExpr, t.Schedule.Timezone, t.Schedule.FireAt,
		t.Action.Kind, payload, t.NextFireAt,
	)

	created, err := scanTrigger(row)
	if err != nil {
		return nil, fmt.Errorf("insert trigger: %w", err)
	}
	return created, nil
}

func (r *TriggerRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Trigger, error) {
	found := make(map[int64]*domain.Trigger, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+triggerColumns+` FROM triggers WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get triggers: %w", err)
	}
	triggers, err := collectTriggers(rows)
	if err != nil {
		return nil, err
	}
	for _, t := range triggers {
		found[t.ID] = t
	}

	var absent []int64
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			absent = append(absent, id)
		}
	}
	if len(absent) > 0 {
		return found, &domain.MissingTriggersError{IDs: absent}
	}
	return found, nil
}

func (r *TriggerRepository) List(ctx context.Context, input repository.ListTriggersInput) ([]*domain.Trigger, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+triggerColumns+`
		FROM triggers
		WHERE id > $1
		ORDER BY id ASC
		LIMIT $2`, input.AfterID, input.Limit)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	return collectTriggers(rows)
}

func (r *TriggerRepository) GetDue(ctx context.Context, now time.Time, limit int) ([]*domain.Trigger, error) {
	// No row locks here: two dispatchers may see the same trigger, and Claim
	// decides which of them fires it.
	rows, err := r.pool.Query(ctx, `
		SELECT `+triggerColumns+`
		FROM triggers
		WHERE next_fire_at <= $1
		  AND claimed_by IS NULL
		ORDER BY next_fire_at ASC, id ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("get due triggers: %w", err)
	}
	return collectTriggers(rows)
}

func (r *TriggerRepository) Claim(ctx context.Context, id int64, evaluatorID string, now time.Time, expectedVersion int64) (*domain.Trigger, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE triggers
		SET    claimed_by = $2,
		       claimed_at = $3,
		       version    = version + 1,
		       updated_at = NOW()
		WHERE  id = $1
		  AND  version = $4
		  AND  claimed_by IS NULL
		RETURNING `+triggerColumns,
		id, evaluatorID, now, expectedVersion)

	claimed, err := scanTrigger(row)
	if errors.Is(err, domain.ErrTriggerNotFound) {
		// Distinguish a deleted trigger from a lost race.
		if _, getErr := r.getOne(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, domain.ErrClaimConflict
	}
	if err != nil {
		return nil, fmt.Errorf("claim trigger %d: %w", id, err)
	}
	return claimed, nil
}

// RecordFiring releases the claim and appends the event in one transaction.
func (r *TriggerRepository) RecordFiring(ctx context.Context, rec domain.FiringRecord) (err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE triggers
		SET    claimed_by           = NULL,
		       claimed_at           = NULL,
		       last_fired_at        = $4,
		       next_fire_at         = CASE WHEN cancelled_at IS NULL THEN $5::timestamptz ELSE NULL END,
		       consecutive_failures = $6,
		       version              = version + 1,
		       updated_at           = NOW()
		WHERE  id = $1
		  AND  version = $2
		  AND  claimed_by = $3`,
		rec.TriggerID, rec.ExpectedVersion, rec.EvaluatorID, rec.FiredAt, rec.NextFireAt, rec.ConsecutiveFailures)
	if err != nil {
		return fmt.Errorf("release trigger %d: %w", rec.TriggerID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM triggers WHERE id = $1)`, rec.TriggerID).Scan(&exists); err != nil {
			return fmt.Errorf("check trigger %d: %w", rec.TriggerID, err)
		}
		if !exists {
			err = domain.ErrTriggerNotFound
			return err
		}
		err = domain.ErrFiringConflict
		return err
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO trigger_events (trigger_id, evaluator_id, outcome, detail, fired_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.TriggerID, rec.EvaluatorID, rec.Outcome, rec.Detail, rec.FiredAt, rec.Duration.Milliseconds(),
	); err != nil {
		return fmt.Errorf("append event for trigger %d: %w", rec.TriggerID, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *TriggerRepository) ReleaseStaleClaims(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	// SKIP LOCKED lets several reapers run at once without blocking each other.
	tag, err := r.pool.Exec(ctx, `
		WITH stale AS (
			SELECT id, claimed_by, claimed_at
			FROM triggers
			WHERE claimed_by IS NOT NULL
			  AND claimed_at < $1
			ORDER BY claimed_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		), released AS (
			UPDATE triggers t
			SET    claimed_by = NULL,
			       claimed_at = NULL,
			       version    = t.version + 1,
			       updated_at = NOW()
			FROM   stale
			WHERE  t.id = stale.id
			RETURNING t.id, stale.claimed_by, stale.claimed_at
		)
		INSERT INTO trigger_events (trigger_id, evaluator_id, outcome, detail, fired_at, duration_ms)
		SELECT id, claimed_by, $3, $4, claimed_at, 0 FROM released`,
		cutoff, limit, domain.OutcomeFailure, staleClaimDetail)
	if err != nil {
		return 0, fmt.Errorf("release stale claims: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *TriggerRepository) Cancel(ctx context.Context, id int64, now time.Time) (*domain.Trigger, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE triggers
		SET    cancelled_at = COALESCE(cancelled_at, $2),
		       next_fire_at = NULL,
		       version      = version + 1,
		       updated_at   = NOW()
		WHERE  id = $1
		RETURNING `+triggerColumns, id, now)

	t, err := scanTrigger(row)
	if err != nil {
		return nil, fmt.Errorf("cancel trigger %d: %w", id, err)
	}
	return t, nil
}

func (r *TriggerRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM triggers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete trigger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTriggerNotFound
	}
	return nil
}

func (r *TriggerRepository) ListEvents(ctx context.Context, triggerID int64, limit int) ([]*domain.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, trigger_id, evaluator_id, outcome, detail, fired_at, duration_ms
		FROM trigger_events
		WHERE trigger_id = $1
		ORDER BY id DESC
		LIMIT $2`, triggerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TriggerID, &e.EvaluatorID, &e.Outcome, &e.Detail, &e.FiredAt, &e.DurationMS); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.FiredAt = e.FiredAt.UTC()
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (r *TriggerRepository) getOne(ctx context.Context, id int64) (*domain.Trigger, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+triggerColumns+` FROM triggers WHERE id = $1`, id)
	return scanTrigger(row)
}

// pgx.Row and pgx.Rows both implement this.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrigger(row rowScanner) (*domain.Trigger, error) {
	var (
		t       domain.Trigger
		payload []byte
	)
	err := row.Scan(
		&t.ID, &t.Schedule.Kind, &t.Schedule.IntervalSeconds, &t.Schedule.CronExpr, &t.Schedule.Timezone, &t.Schedule.FireAt,
		&t.Action.Kind, &payload, &t.LastFiredAt, &t.NextFireAt, &t.ClaimedBy, &t.ClaimedAt,
		&t.Version, &t.ConsecutiveFailures, &t.CancelledAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTriggerNotFound
		}
		return nil, fmt.Errorf("scan trigger: %w", err)
	}
	t.Action.Payload = payload
	return &t, nil
}

func collectTriggers(rows pgx.Rows) ([]*domain.Trigger, error) {
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
