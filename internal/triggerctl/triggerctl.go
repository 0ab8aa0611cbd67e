// Package triggerctl holds the argument handling behind the triggerctl
// command: selecting triggers by ID and reading human time strings. Every
// error it returns for bad input is a *UsageError carrying the literal value.
package triggerctl

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ErlanBelekov/triggerd/internal/domain"
)

// EventsPerTrigger caps how many events LoadTriggers attaches to each trigger.
const EventsPerTrigger = 20

// UsageError is malformed operator input. Callers print it and exit 2
// instead of logging a stack of wrapped errors.
type UsageError struct {
	msg string
}

func (e *UsageError) Error() string { return e.msg }

// Usagef builds a UsageError from a format string.
func Usagef(format string, args ...any) *UsageError {
	return &UsageError{msg: fmt.Sprintf(format, args...)}
}

// IsUsage reports whether err is (or wraps) a *UsageError.
func IsUsage(err error) bool {
	var u *UsageError
	return errors.As(err, &u)
}

// TriggerReader is the read side of repository.TriggerRepository.
type TriggerReader interface {
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Trigger, error)
	ListEvents(ctx context.Context, triggerID int64, limit int) ([]*domain.Event, error)
}

type LoadedTrigger struct {
	*domain.Trigger
	Events []*domain.Event // newest first; nil unless events were requested
}

// LoadTriggers resolves every raw --id value, in the order given with
// duplicates dropped. The first value that does not name an existing trigger
// fails the whole selection; nothing is modified either way.
func LoadTriggers(ctx context.Context, repo TriggerReader, rawIDs []string, needEvents bool) ([]*LoadedTrigger, error) {
	if len(rawIDs) == 0 {
		return nil, Usagef("Use --id to select triggers by ID.")
	}

	var (
		order []string
		ids   []int64
		seen  = make(map[string]bool, len(rawIDs))
		byRaw = make(map[string]int64, len(rawIDs))
	)
	for _, raw := range rawIDs {
		if seen[raw] {
			continue
		}
		seen[raw] = true
		order = append(order, raw)

		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			// Cannot name a trigger; reported in order below.
			continue
		}
		byRaw[raw] = id
		ids = append(ids, id)
	}

	found, err := repo.GetByIDs(ctx, ids)
	var missing *domain.MissingTriggersError
	if err != nil && !errors.As(err, &missing) {
		return nil, fmt.Errorf("load triggers: %w", err)
	}

	out := make([]*LoadedTrigger, 0, len(order))
	loaded := make(map[int64]bool, len(order))
	for _, raw := range order {
		id, ok := byRaw[raw]
		t := found[id]
		if !ok || t == nil {
			return nil, Usagef("No trigger exists with id %q!", raw)
		}
		// "7" and "07" name the same trigger.
		if loaded[id] {
			continue
		}
		loaded[id] = true
		out = append(out, &LoadedTrigger{Trigger: t})
	}

	if needEvents {
		for _, lt := range out {
			events, err := repo.ListEvents(ctx, lt.ID, EventsPerTrigger)
			if err != nil {
				return nil, fmt.Errorf("load events for %s: %w", lt.Describe(), err)
			}
			lt.Events = events
		}
	}
	return out, nil
}

func DescribeTrigger(t *domain.Trigger) string {
	return t.Describe()
}
