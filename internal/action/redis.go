package action

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisPayload struct {
	Queue   string          `json:"queue" validate:"required"`
	Message json.RawMessage `json:"message"`
}

// redisEnvelope is what lands on the list. Consumers dedupe on FiringKey.
type redisEnvelope struct {
	FiringKey string          `json:"firing_key,omitempty"`
	TriggerID int64           `json:"trigger_id,omitempty"`
	FiredAt   time.Time       `json:"fired_at"`
	Message   json.RawMessage `json:"message,omitempty"`
}

// RedisQueue pushes messages onto Redis lists used as work queues.
type RedisQueue struct {
	client redis.Cmdable
	prefix string
	clock  func() time.Time
}

func NewRedisQueue(client redis.Cmdable, keyPrefix string) *RedisQueue {
	return &RedisQueue{client: client, prefix: keyPrefix, clock: time.Now}
}

func (q *RedisQueue) Execute(ctx context.Context, raw json.RawMessage) Outcome {
	var p RedisPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Failure("decode redis payload: %v", err)
	}
	if err := validate.Struct(p); err != nil {
		return Failure("invalid redis payload: %v", err)
	}

	env := redisEnvelope{FiredAt: q.clock().UTC(), Message: p.Message}
	if f, ok := FiringFromContext(ctx); ok {
		env.FiringKey = f.Key()
		env.TriggerID = f.TriggerID
	}
	body, err := json.Marshal(env)
	if err != nil {
		return Failure("encode redis message: %v", err)
	}

	if err := q.client.LPush(ctx, q.prefix+p.Queue, body).Err(); err != nil {
		return RetrySoon("lpush %s: %v", p.Queue, err)
	}
	return Success()
}
