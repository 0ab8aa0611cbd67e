package usecase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ErlanBelekov/triggerd/internal/domain"
	"github.com/ErlanBelekov/triggerd/internal/repository"
	"github.com/ErlanBelekov/triggerd/internal/schedule"
)

// ActionKinds reports which action kinds can be executed; *action.Registry
// satisfies it.
type ActionKinds interface {
	Has(kind string) bool
}

type TriggerUsecase struct {
	repo      repository.TriggerRepository
	evaluator *schedule.Evaluator
	actions   ActionKinds
	clock     func() time.Time
}

func NewTriggerUsecase(repo repository.TriggerRepository, evaluator *schedule.Evaluator, actions ActionKinds) *TriggerUsecase {
	return &TriggerUsecase{repo: repo, evaluator: evaluator, actions: actions, clock: time.Now}
}

type CreateTriggerInput struct {
	Schedule domain.Schedule
	Action   domain.Action
}

func (u *TriggerUsecase) CreateTrigger(ctx context.Context, input CreateTriggerInput) (*domain.Trigger, error) {
	if err := u.evaluator.Validate(input.Schedule); err != nil {
		return nil, err
	}
	if !u.actions.Has(input.Action.Kind) {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownActionKind, input.Action.Kind)
	}
	if len(input.Action.Payload) == 0 {
		input.Action.Payload = json.RawMessage(`{}`)
	}

	next, err := u.evaluator.Next(input.Schedule, nil, u.clock())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, fmt.Errorf("%w: schedule never fires", domain.ErrInvalidSchedule)
	}

	created, err := u.repo.Create(ctx, &domain.Trigger{
		Schedule:   input.Schedule,
		Action:     input.Action,
		NextFireAt: next,
	})
	if err != nil {
		return nil, fmt.Errorf("create trigger: %w", err)
	}
	return created, nil
}

func (u *TriggerUsecase) GetTrigger(ctx context.Context, id int64) (*domain.Trigger, error) {
	found, err := u.repo.GetByIDs(ctx, []int64{id})
	if err != nil {
		return nil, fmt.Errorf("get trigger: %w", err)
	}
	return found[id], nil
}

type ListTriggersInput struct {
	Cursor string
	Limit  int
}

type ListTriggersResult struct {
	Triggers   []*domain.Trigger
	NextCursor *string
}

type triggerCursor struct {
	ID int64 `json:"i"`
}

func decodeCursor(s string) (int64, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return 0, fmt.Errorf("decode cursor: %w", err)
	}
	var c triggerCursor
	if err := json.Unmarshal(b, &c); err != nil {
		return 0, fmt.Errorf("unmarshal cursor: %w", err)
	}
	if c.ID <= 0 {
		return 0, fmt.Errorf("cursor id %d out of range", c.ID)
	}
	return c.ID, nil
}

func encodeCursor(id int64) string {
	b, _ := json.Marshal(triggerCursor{ID: id})
	return base64.RawURLEncoding.EncodeToString(b)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return min(limit, 100)
}

func (u *TriggerUsecase) ListTriggers(ctx context.Context, input ListTriggersInput) (ListTriggersResult, error) {
	limit := clampLimit(input.Limit)

	repoInput := repository.ListTriggersInput{Limit: limit + 1}
	if input.Cursor != "" {
		afterID, err := decodeCursor(input.Cursor)
		if err != nil {
			return ListTriggersResult{}, domain.ErrInvalidCursor
		}
		repoInput.AfterID = afterID
	}

	triggers, err := u.repo.List(ctx, repoInput)
	if err != nil {
		return ListTriggersResult{}, fmt.Errorf("list triggers: %w", err)
	}

	var nextCursor *string
	if len(triggers) == limit+1 {
		triggers = triggers[:limit]
		s := encodeCursor(triggers[limit-1].ID)
		nextCursor = &s
	}

	return ListTriggersResult{Triggers: triggers, NextCursor: nextCursor}, nil
}

// CancelTrigger stops future firings. An in-flight firing still completes and
// is recorded. Cancelling twice keeps the first cancellation time.
func (u *TriggerUsecase) CancelTrigger(ctx context.Context, id int64) (*domain.Trigger, error) {
	t, err := u.repo.Cancel(ctx, id, u.clock())
	if err != nil {
		return nil, fmt.Errorf("cancel trigger: %w", err)
	}
	return t, nil
}

func (u *TriggerUsecase) DeleteTrigger(ctx context.Context, id int64) error {
	if err := u.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete trigger: %w", err)
	}
	return nil
}

func (u *TriggerUsecase) ListEvents(ctx context.Context, id int64, limit int) ([]*domain.Event, error) {
	if _, err := u.GetTrigger(ctx, id); err != nil {
		return nil, err
	}
	events, err := u.repo.ListEvents(ctx, id, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}
