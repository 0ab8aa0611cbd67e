package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ErlanBelekov/triggerd/internal/domain"
	"github.com/ErlanBelekov/triggerd/internal/repository"
)

const triggerColumns = `id, schedule_kind, interval_seconds, cron_expr, timezone, fire_at,
	action_kind, action_payload, last_fired_at, next_fire_at, claimed_by, claimed_at,
	version, consecutive_failures, cancelled_at, created_at, updated_at`

const eventColumns = `id, trigger_id, evaluator_id, outcome, detail, fired_at, duration_ms`

type TriggerRepository struct {
	db     *sql.DB
	logger *slog.Logger
	clock  func() time.Time
}

var _ repository.TriggerRepository = (*TriggerRepository)(nil)

func NewTriggerRepository(db *sql.DB, logger *slog.Logger) *TriggerRepository {
	return &TriggerRepository{
		db:     db,
		logger: logger.With("component", "trigger_repo", "driver", "sqlite"),
		clock:  time.Now,
	}
}

func (r *TriggerRepository) Create(ctx context.Context, t *domain.Trigger) (*domain.Trigger, error) {
	now := r.clock().UTC()
	payload := string(t.Action.Payload)
	if payload == "" {
		payload = "{}"
	}

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO triggers (
			schedule_kind, interval_seconds, cron_expr, timezone, fire_at,
			action_kind, action_payload, next_fire_at, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		RETURNING `+triggerColumns,
		t.Schedule.Kind, t.Schedule.IntervalSeconds, t.Schedule.CronExpr, t.Schedule.Timezone,
		toMicros(t.Schedule.FireAt), t.Action.Kind, payload, toMicros(t.NextFireAt),
		now.UnixMicro(), now.UnixMicro(),
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

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+triggerColumns+` FROM triggers WHERE id IN (`+placeholders+`)`, args...)
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

	return found, missing(ids, found)
}

func (r *TriggerRepository) List(ctx context.Context, input repository.ListTriggersInput) ([]*domain.Trigger, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+triggerColumns+` FROM triggers WHERE id > ? ORDER BY id ASC LIMIT ?`,
		input.AfterID, input.Limit)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	return collectTriggers(rows)
}

func (r *TriggerRepository) GetDue(ctx context.Context, now time.Time, limit int) ([]*domain.Trigger, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+triggerColumns+`
		FROM triggers
		WHERE next_fire_at IS NOT NULL
		  AND next_fire_at <= ?
		  AND claimed_by IS NULL
		ORDER BY next_fire_at ASC, id ASC
		LIMIT ?`, now.UnixMicro(), limit)
	if err != nil {
		return nil, fmt.Errorf("get due triggers: %w", err)
	}
	return collectTriggers(rows)
}

func (r *TriggerRepository) Claim(ctx context.Context, id int64, evaluatorID string, now time.Time, expectedVersion int64) (*domain.Trigger, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE triggers
		SET    claimed_by = ?,
		       claimed_at = ?,
		       version    = version + 1,
		       updated_at = ?
		WHERE  id = ?
		  AND  version = ?
		  AND  claimed_by IS NULL
		RETURNING `+triggerColumns,
		evaluatorID, now.UnixMicro(), now.UnixMicro(), id, expectedVersion)

	claimed, err := scanTrigger(row)
	if errors.Is(err, domain.ErrTriggerNotFound) {
		// No row updated: either it is gone or someone else moved the version.
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

func (r *TriggerRepository) RecordFiring(ctx context.Context, rec domain.FiringRecord) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := r.clock().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE triggers
		SET    claimed_by           = NULL,
		       claimed_at           = NULL,
		       last_fired_at        = ?,
		       next_fire_at         = CASE WHEN cancelled_at IS NULL THEN ? ELSE NULL END,
		       consecutive_failures = ?,
		       version              = version + 1,
		       updated_at           = ?
		WHERE  id = ?
		  AND  version = ?
		  AND  claimed_by = ?`,
		rec.FiredAt.UnixMicro(), toMicros(rec.NextFireAt), rec.ConsecutiveFailures, now.UnixMicro(),
		rec.TriggerID, rec.ExpectedVersion, rec.EvaluatorID)
	if err != nil {
		return fmt.Errorf("release trigger %d: %w", rec.TriggerID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release trigger %d: %w", rec.TriggerID, err)
	}
	if n == 0 {
		var exists int
		if scanErr := tx.QueryRowContext(ctx, `SELECT 1 FROM triggers WHERE id = ?`, rec.TriggerID).Scan(&exists); errors.Is(scanErr, sql.ErrNoRows) {
			err = domain.ErrTriggerNotFound
			return err
		}
		err = domain.ErrFiringConflict
		return err
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO trigger_events (trigger_id, evaluator_id, outcome, detail, fired_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.TriggerID, rec.EvaluatorID, rec.Outcome, rec.Detail, rec.FiredAt.UnixMicro(), rec.Duration.Milliseconds(),
	); err != nil {
		return fmt.Errorf("append event for trigger %d: %w", rec.TriggerID, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *TriggerRepository) ReleaseStaleClaims(ctx context.Context, cutoff time.Time, limit int) (released int, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, claimed_by, claimed_at
		FROM triggers
		WHERE claimed_by IS NOT NULL
		  AND claimed_at < ?
		ORDER BY claimed_at ASC
		LIMIT ?`, cutoff.UnixMicro(), limit)
	if err != nil {
		return 0, fmt.Errorf("find stale claims: %w", err)
	}

	type staleClaim struct {
		id        int64
		claimedBy string
		claimedAt int64
	}
	var stale []staleClaim
	for rows.Next() {
		var s staleClaim
		if err = rows.Scan(&s.id, &s.claimedBy, &s.claimedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan stale claim: %w", err)
		}
		stale = append(stale, s)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate stale claims: %w", err)
	}

	now := r.clock().UTC().UnixMicro()
	for _, s := range stale {
		if _, err = tx.ExecContext(ctx, `
			UPDATE triggers
			SET    claimed_by = NULL,
			       claimed_at = NULL,
			       version    = version + 1,
			       updated_at = ?
			WHERE  id = ?`, now, s.id); err != nil {
			return 0, fmt.Errorf("release stale claim %d: %w", s.id, err)
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO trigger_events (trigger_id, evaluator_id, outcome, detail, fired_at, duration_ms)
			VALUES (?, ?, ?, ?, ?, 0)`,
			s.id, s.claimedBy, domain.OutcomeFailure, staleClaimDetail, s.claimedAt); err != nil {
			return 0, fmt.Errorf("append stale event %d: %w", s.id, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return len(stale), nil
}

func (r *TriggerRepository) Cancel(ctx context.Context, id int64, now time.Time) (*domain.Trigger, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE triggers
		SET    cancelled_at = COALESCE(cancelled_at, ?),
		       next_fire_at = NULL,
		       version      = version + 1,
		       updated_at   = ?
		WHERE  id = ?
		RETURNING `+triggerColumns,
		now.UnixMicro(), now.UnixMicro(), id)

	t, err := scanTrigger(row)
	if err != nil {
		return nil, fmt.Errorf("cancel trigger %d: %w", id, err)
	}
	return t, nil
}

func (r *TriggerRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM triggers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete trigger: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete trigger: %w", err)
	}
	if n == 0 {
		return domain.ErrTriggerNotFound
	}
	return nil
}

func (r *TriggerRepository) ListEvents(ctx context.Context, triggerID int64, limit int) ([]*domain.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM trigger_events
		WHERE trigger_id = ?
		ORDER BY id DESC
		LIMIT ?`, triggerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		var (
			e       domain.Event
			firedAt int64
		)
		if err := rows.Scan(&e.ID, &e.TriggerID, &e.EvaluatorID, &e.Outcome, &e.Detail, &firedAt, &e.DurationMS); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.FiredAt = time.UnixMicro(firedAt).UTC()
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (r *TriggerRepository) getOne(ctx context.Context, id int64) (*domain.Trigger, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+triggerColumns+` FROM triggers WHERE id = ?`, id)
	return scanTrigger(row)
}
