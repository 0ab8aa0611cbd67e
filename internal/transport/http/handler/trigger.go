package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ErlanBelekov/triggerd/internal/domain"
	"github.com/ErlanBelekov/triggerd/internal/usecase"
	"github.com/gin-gonic/gin"
)

// triggerUsecaser is the subset of TriggerUsecase the handler needs.
type triggerUsecaser interface {
	CreateTrigger(ctx context.Context, input usecase.CreateTriggerInput) (*domain.Trigger, error)
	GetTrigger(ctx context.Context, id int64) (*domain.Trigger, error)
	ListTriggers(ctx context.Context, input usecase.ListTriggersInput) (usecase.ListTriggersResult, error)
	CancelTrigger(ctx context.Context, id int64) (*domain.Trigger, error)
	DeleteTrigger(ctx context.Context, id int64) error
	ListEvents(ctx context.Context, id int64, limit int) ([]*domain.Event, error)
}

type TriggerHandler struct {
	uc     triggerUsecaser
	logger *slog.Logger
}

func NewTriggerHandler(uc triggerUsecaser, logger *slog.Logger) *TriggerHandler {
	return &TriggerHandler{uc: uc, logger: logger.With("component", "trigger_handler")}
}

type scheduleBody struct {
	Kind            domain.ScheduleKind `json:"kind"             binding:"required,oneof=interval cron once"`
	IntervalSeconds int64               `json:"interval_seconds,omitempty" binding:"omitempty,min=1"`
	CronExpr        string              `json:"cron_expr,omitempty"        binding:"omitempty,max=256"`
	Timezone        string              `json:"timezone,omitempty"         binding:"omitempty,max=64"`
	FireAt          *time.Time          `json:"fire_at,omitempty"`
}

type actionBody struct {
	Kind    string          `json:"kind"    binding:"required,max=64"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type createTriggerRequest struct {
	Schedule scheduleBody `json:"schedule"`
	Action   actionBody   `json:"action"`
}

type triggerResponse struct {
	ID                  int64        `json:"id"`
	Schedule            scheduleBody `json:"schedule"`
	Action              actionBody   `json:"action"`
	LastFiredAt         *time.Time   `json:"last_fired_at,omitempty"`
	NextFireAt          *time.Time   `json:"next_fire_at,omitempty"`
	ClaimedBy           *string      `json:"claimed_by,omitempty"`
	ClaimedAt           *time.Time   `json:"claimed_at,omitempty"`
	Version             int64        `json:"version"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	CancelledAt         *time.Time   `json:"cancelled_at,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

func toTriggerResponse(t *domain.Trigger) triggerResponse {
	return triggerResponse{
		ID: t.ID,
		Schedule: scheduleBody{
			Kind:            t.Schedule.Kind,
			IntervalSeconds: t.Schedule.IntervalSeconds,
			CronExpr:        t.Schedule.CronExpr,
			Timezone:        t.Schedule.Timezone,
			FireAt:          t.Schedule.FireAt,
		},
		Action:              actionBody{Kind: t.Action.Kind, Payload: t.Action.Payload},
		LastFiredAt:         t.LastFiredAt,
		NextFireAt:          t.NextFireAt,
		ClaimedBy:           t.ClaimedBy,
		ClaimedAt:           t.ClaimedAt,
		Version:             t.Version,
		ConsecutiveFailures: t.ConsecutiveFailures,
		CancelledAt:         t.CancelledAt,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
	}
}

type eventResponse struct {
	ID          int64          `json:"id"`
	EvaluatorID string         `json:"evaluator_id"`
	Outcome     domain.Outcome `json:"outcome"`
	Detail      *string        `json:"detail,omitempty"`
	FiredAt     time.Time      `json:"fired_at"`
	DurationMS  int64          `json:"duration_ms"`
}

func (h *TriggerHandler) Create(ctx *gin.Context) {
	var req createTriggerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.uc.CreateTrigger(ctx.Request.Context(), usecase.CreateTriggerInput{
		Schedule: domain.Schedule{
			Kind:            req.Schedule.Kind,
			IntervalSeconds: req.Schedule.IntervalSeconds,
			CronExpr:        req.Schedule.CronExpr,
			Timezone:        req.Schedule.Timezone,
			FireAt:          req.Schedule.FireAt,
		},
		Action: domain.Action{Kind: req.Action.Kind, Payload: req.Action.Payload},
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidSchedule), errors.Is(err, domain.ErrUnknownActionKind):
			// Both messages name only user input.
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.ErrorContext(ctx.Request.Context(), "create trigger", "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	h.logger.InfoContext(ctx.Request.Context(), "trigger created",
		"trigger_id", t.ID, "schedule", t.Schedule.Kind, "action", t.Action.Kind, "by", ctx.GetString("subject"))
	ctx.JSON(http.StatusCreated, toTriggerResponse(t))
}

func (h *TriggerHandler) List(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.Query("limit"))

	result, err := h.uc.ListTriggers(ctx.Request.Context(), usecase.ListTriggersInput{
		Cursor: ctx.Query("cursor"),
		Limit:  limit,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCursor) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidCursor})
			return
		}
		h.logger.ErrorContext(ctx.Request.Context(), "list triggers", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	items := make([]triggerResponse, len(result.Triggers))
	for i, t := range result.Triggers {
		items[i] = toTriggerResponse(t)
	}
	ctx.JSON(http.StatusOK, gin.H{
		"triggers":    items,
		"next_cursor": result.NextCursor,
	})
}

func (h *TriggerHandler) GetByID(ctx *gin.Context) {
	id, ok := triggerID(ctx)
	if !ok {
		return
	}

	t, err := h.uc.GetTrigger(ctx.Request.Context(), id)
	if err != nil {
		h.fail(ctx, "get trigger", id, err)
		return
	}

	ctx.JSON(http.StatusOK, toTriggerResponse(t))
}

func (h *TriggerHandler) ListEvents(ctx *gin.Context) {
	id, ok := triggerID(ctx)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(ctx.Query("limit"))

	events, err := h.uc.ListEvents(ctx.Request.Context(), id, limit)
	if err != nil {
		h.fail(ctx, "list events", id, err)
		return
	}

	items := make([]eventResponse, len(events))
	for i, e := range events {
		items[i] = eventResponse{
			ID:          e.ID,
			EvaluatorID: e.EvaluatorID,
			Outcome:     e.Outcome,
			Detail:      e.Detail,
			FiredAt:     e.FiredAt,
			DurationMS:  e.DurationMS,
		}
	}
	ctx.JSON(http.StatusOK, gin.H{"events": items})
}

func (h *TriggerHandler) Cancel(ctx *gin.Context) {
	id, ok := triggerID(ctx)
	if !ok {
		return
	}

	t, err := h.uc.CancelTrigger(ctx.Request.Context(), id)
	if err != nil {
		h.fail(ctx, "cancel trigger", id, err)
		return
	}

	h.logger.InfoContext(ctx.Request.Context(), "trigger cancelled", "trigger_id", id, "by", ctx.GetString("subject"))
	ctx.JSON(http.StatusOK, toTriggerResponse(t))
}

func (h *TriggerHandler) Delete(ctx *gin.Context) {
	id, ok := triggerID(ctx)
	if !ok {
		return
	}

	if err := h.uc.DeleteTrigger(ctx.Request.Context(), id); err != nil {
		h.fail(ctx, "delete trigger", id, err)
		return
	}

	h.logger.InfoContext(ctx.Request.Context(), "trigger deleted", "trigger_id", id, "by", ctx.GetString("subject"))
	ctx.Status(http.StatusNoContent)
}

func (h *TriggerHandler) fail(ctx *gin.Context, op string, id int64, err error) {
	if errors.Is(err, domain.ErrTriggerNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": errTriggerNotFound})
		return
	}
	h.logger.ErrorContext(ctx.Request.Context(), op, "trigger_id", id, "error", err)
	ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
}

func triggerID(ctx *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidTriggerID})
		return 0, false
	}
	return id, true
}
