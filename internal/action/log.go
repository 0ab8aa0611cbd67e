package action

import (
	"context"
	"encoding/json"
	"log/slog"
)

// NewLogHandler returns a handler that only logs its payload. Handy for local
// smoke tests of the dispatch loop.
func NewLogHandler(logger *slog.Logger) Handler {
	logger = logger.With("component", "log_action")
	return HandlerFunc(func(ctx context.Context, payload json.RawMessage) Outcome {
		logger.InfoContext(ctx, "trigger fired", "payload", string(payload))
		return Success()
	})
}
