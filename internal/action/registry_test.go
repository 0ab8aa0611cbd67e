package action

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ErlanBelekov/triggerd/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistry_UnknownKindIsFailure(t *testing.T) {
	r := NewRegistry(time.Second, discardLogger())

	out := r.Execute(context.Background(), domain.Action{Kind: "nope"})

	assert.Equal(t, StatusFailure, out.Status)
	assert.Contains(t, out.Detail, `"nope"`)
}

func TestRegistry_RunsHandlerWithPayload(t *testing.T) {
	r := NewRegistry(time.Second, discardLogger())
	var got json.RawMessage
	r.Register("echo", HandlerFunc(func(_ context.Context, p json.RawMessage) Outcome {
		got = p
		return Success()
	}))

	out := r.Execute(context.Background(), domain.Action{Kind: "echo", Payload: json.RawMessage(`{"a":1}`)})

	assert.Equal(t, StatusSuccess, out.Status)
	assert.JSONEq(t, `{"a":1}`, string(got))
}

func TestRegistry_TimeoutIsRetrySoon(t *testing.T) {
	r := NewRegistry(20*time.Millisecond, discardLogger())
	release := make(chan struct{})
	defer close(release)
	r.Register("hang", HandlerFunc(func(context.Context, json.RawMessage) Outcome {
		<-release
		return Success()
	}))

	start := time.Now()
	out := r.Execute(context.Background(), domain.Action{Kind: "hang"})

	assert.Equal(t, StatusRetrySoon, out.Status)
	assert.Contains(t, out.Detail, "timed out")
	assert.Less(t, time.Since(start), time.Second)
}

func TestRegistry_PanicIsFailure(t *testing.T) {
	r := NewRegistry(time.Second, discardLogger())
	r.Register("boom", HandlerFunc(func(context.Context, json.RawMessage) Outcome {
		panic("kaboom")
	}))

	out := r.Execute(context.Background(), domain.Action{Kind: "boom"})

	assert.Equal(t, StatusFailure, out.Status)
	assert.Contains(t, out.Detail, "kaboom")
}

func TestRegistry_CancelledContextIsRetrySoon(t *testing.T) {
	r := NewRegistry(0, discardLogger())
	r.Register("wait", HandlerFunc(func(ctx context.Context, _ json.RawMessage) Outcome {
		<-ctx.Done()
		return Success()
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := r.Execute(ctx, domain.Action{Kind: "wait"})

	// Either branch may win the select; a cancelled firing must never look like a hard failure.
	assert.NotEqual(t, StatusFailure, out.Status)
}

func TestRegistry_KindsSortedAndHas(t *testing.T) {
	r := NewRegistry(0, discardLogger())
	noop := HandlerFunc(func(context.Context, json.RawMessage) Outcome { return Success() })
	r.Register("webhook", noop)
	r.Register("amqp", noop)
	r.Register("log", noop)

	require.Equal(t, []string{"amqp", "log", "webhook"}, r.Kinds())
	assert.True(t, r.Has("log"))
	assert.False(t, r.Has("redis"))
}

func TestFiringKey(t *testing.T) {
	ctx := WithFiring(context.Background(), Firing{TriggerID: 42, Version: 7})

	f, ok := FiringFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "trigger-42-v7", f.Key())

	_, ok = FiringFromContext(context.Background())
	assert.False(t, ok)
}
