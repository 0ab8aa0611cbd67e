package action

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

type AsynqPayload struct {
	Type     string          `json:"type" validate:"required"`
	Payload  json.RawMessage `json:"payload"`
	Queue    string          `json:"queue"`
	MaxRetry *int            `json:"max_retry" validate:"omitempty,min=0"`
	// TimeoutSeconds bounds the consumer's processing of the task.
	TimeoutSeconds int `json:"timeout_seconds" validate:"omitempty,min=1"`
}

// *asynq.Client satisfies this.
type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Asynq struct {
	client taskEnqueuer
}

func NewAsynq(client taskEnqueuer) *Asynq {
	return &Asynq{client: client}
}

func (a *Asynq) Execute(ctx context.Context, raw json.RawMessage) Outcome {
	var p AsynqPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Failure("decode asynq payload: %v", err)
	}
	if err := validate.Struct(p); err != nil {
		return Failure("invalid asynq payload: %v", err)
	}

	var opts []asynq.Option
	if p.Queue != "" {
		opts = append(opts, asynq.Queue(p.Queue))
	}
	if p.MaxRetry != nil {
		opts = append(opts, asynq.MaxRetry(*p.MaxRetry))
	}
	if p.TimeoutSeconds > 0 {
		opts = append(opts, asynq.Timeout(time.Duration(p.TimeoutSeconds)*time.Second))
	}
	if f, ok := FiringFromContext(ctx); ok {
		opts = append(opts, asynq.TaskID(f.Key()))
	}

	_, err := a.client.EnqueueContext(ctx, asynq.NewTask(p.Type, p.Payload), opts...)
	switch {
	case err == nil:
		return Success()
	case errors.Is(err, asynq.ErrTaskIDConflict), errors.Is(err, asynq.ErrDuplicateTask):
		// Enqueued by an earlier attempt of this same firing.
		return Success()
	default:
		return RetrySoon("enqueue %s: %v", p.Type, err)
	}
}
