// Package action maps an action kind to the handler that performs its side
// effect. The dispatcher only sees the Outcome a handler returns.
package action

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ErlanBelekov/triggerd/internal/domain"
)

type Status = domain.Outcome

const (
	StatusSuccess   = domain.OutcomeSuccess
	StatusFailure   = domain.OutcomeFailure
	StatusRetrySoon = domain.OutcomeRetrySoon
)

type Outcome struct {
	Status Status
	Detail string
}

func Success() Outcome { return Outcome{Status: StatusSuccess} }

func Failure(format string, args ...any) Outcome {
	return Outcome{Status: StatusFailure, Detail: fmt.Sprintf(format, args...)}
}

// RetrySoon asks the dispatcher to fire again after a backoff instead of
// waiting for the next scheduled slot.
func RetrySoon(format string, args ...any) Outcome {
	return Outcome{Status: StatusRetrySoon, Detail: fmt.Sprintf(format, args...)}
}

type Handler interface {
	Execute(ctx context.Context, payload json.RawMessage) Outcome
}

type HandlerFunc func(ctx context.Context, payload json.RawMessage) Outcome

func (f HandlerFunc) Execute(ctx context.Context, payload json.RawMessage) Outcome {
	return f(ctx, payload)
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	timeout  time.Duration
	logger   *slog.Logger
}

// NewRegistry returns an empty registry. timeout bounds every Execute call;
// zero disables the bound.
func NewRegistry(timeout time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		timeout:  timeout,
		logger:   logger.With("component", "action_registry"),
	}
}

// Register adds or replaces the handler for kind.
func (r *Registry) Register(kind string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[kind]
	return ok
}

func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Execute runs the handler for a.Kind. A handler that does not return within
// the timeout is abandoned and reported as RetrySoon; a panic becomes Failure.
func (r *Registry) Execute(ctx context.Context, a domain.Action) Outcome {
	r.mu.RLock()
	h, ok := r.handlers[a.Kind]
	r.mu.RUnlock()
	if !ok {
		return Failure("%s: %q", domain.ErrUnknownActionKind, a.Kind)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	done := make(chan Outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.logger.ErrorContext(ctx, "action handler panicked", "kind", a.Kind, "panic", p)
				done <- Failure("handler panicked: %v", p)
			}
		}()
		done <- h.Execute(ctx, a.Payload)
	}()

	select {
	case out := <-done:
		return out
	case <-ctx.Done():
		if r.timeout > 0 && ctx.Err() == context.DeadlineExceeded {
			return RetrySoon("action timed out after %s", r.timeout)
		}
		return RetrySoon("action interrupted: %v", ctx.Err())
	}
}
