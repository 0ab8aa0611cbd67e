// Package logctx carries correlation values that the log handler copies onto
// every record: the HTTP request ID and the trigger being fired.
package logctx

import (
	"context"

	"github.com/google/uuid"
)

type (
	requestIDKey struct{}
	triggerIDKey struct{}
)

// NewRequestID generates a random UUID v4 request ID.
func NewRequestID() string {
	return uuid.NewString()
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns "" if absent.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func WithTriggerID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, triggerIDKey{}, id)
}

func TriggerID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(triggerIDKey{}).(int64)
	return id, ok
}
