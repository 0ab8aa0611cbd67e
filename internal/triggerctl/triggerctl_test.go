package triggerctl_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ErlanBelekov/triggerd/internal/domain"
	"github.com/ErlanBelekov/triggerd/internal/triggerctl"
)

type fakeReader struct {
	triggers  map[int64]*domain.Trigger
	events    map[int64][]*domain.Event
	gotIDs    []int64
	eventsFor []int64
}

func (f *fakeReader) GetByIDs(_ context.Context, ids []int64) (map[int64]*domain.Trigger, error) {
	f.gotIDs = ids
	found := make(map[int64]*domain.Trigger)
	var absent []int64
	for _, id := range ids {
		if t, ok := f.triggers[id]; ok {
			found[id] = t
		} else {
			absent = append(absent, id)
		}
	}
	if len(absent) > 0 {
		return found, &domain.MissingTriggersError{IDs: absent}
	}
	return found, nil
}

func (f *fakeReader) ListEvents(_ context.Context, id int64, limit int) ([]*domain.Event, error) {
	f.eventsFor = append(f.eventsFor, id)
	if limit != triggerctl.EventsPerTrigger {
		return nil, errors.New("unexpected limit")
	}
	return f.events[id], nil
}

func newReader(ids ...int64) *fakeReader {
	f := &fakeReader{triggers: map[int64]*domain.Trigger{}, events: map[int64][]*domain.Event{}}
	for _, id := range ids {
		f.triggers[id] = &domain.Trigger{ID: id}
	}
	return f
}

func TestLoadTriggers_InputOrderAndDedupe(t *testing.T) {
	repo := newReader(3, 5, 9)

	got, err := triggerctl.LoadTriggers(context.Background(), repo, []string{"9", "3", "9", "5"}, false)
	if err != nil {
		t.Fatalf("LoadTriggers: %v", err)
	}
	var ids []int64
	for _, lt := range got {
		ids = append(ids, lt.ID)
		if lt.Events != nil {
			t.Errorf("trigger %d has events without asking", lt.ID)
		}
	}
	if len(ids) != 3 || ids[0] != 9 || ids[1] != 3 || ids[2] != 5 {
		t.Errorf("ids = %v, want [9 3 5]", ids)
	}
	if len(repo.gotIDs) != 3 {
		t.Errorf("repo asked for %v, want 3 distinct ids", repo.gotIDs)
	}
	if len(repo.eventsFor) != 0 {
		t.Errorf("events loaded for %v", repo.eventsFor)
	}
}

func TestLoadTriggers_MissingID(t *testing.T) {
	repo := newReader(5)

	_, err := triggerctl.LoadTriggers(context.Background(), repo, []string{"5", "9"}, false)
	if err == nil {
		t.Fatal("expected error")
	}
	if !triggerctl.IsUsage(err) {
		t.Errorf("err = %T, want *UsageError", err)
	}
	if want := `No trigger exists with id "9"!`; err.Error() != want {
		t.Errorf("err = %q, want %q", err, want)
	}
}

func TestLoadTriggers_FirstMissingInInputOrder(t *testing.T) {
	repo := newReader(1)

	_, err := triggerctl.LoadTriggers(context.Background(), repo, []string{"1", "abc", "7"}, false)
	if err == nil || !strings.Contains(err.Error(), `"abc"`) {
		t.Fatalf("err = %v, want mention of abc", err)
	}
}

func TestLoadTriggers_NoIDs(t *testing.T) {
	_, err := triggerctl.LoadTriggers(context.Background(), newReader(), nil, true)
	if err == nil || !triggerctl.IsUsage(err) {
		t.Fatalf("err = %v, want usage error", err)
	}
	if !strings.Contains(err.Error(), "--id") {
		t.Errorf("err = %q, want hint about --id", err)
	}
}

func TestLoadTriggers_WithEvents(t *testing.T) {
	repo := newReader(4)
	repo.events[4] = []*domain.Event{{ID: 2, TriggerID: 4}, {ID: 1, TriggerID: 4}}

	got, err := triggerctl.LoadTriggers(context.Background(), repo, []string{"4"}, true)
	if err != nil {
		t.Fatalf("LoadTriggers: %v", err)
	}
	if len(got) != 1 || len(got[0].Events) != 2 {
		t.Fatalf("got %+v, want one trigger with two events", got)
	}
}

func TestDescribeTrigger(t *testing.T) {
	if got := triggerctl.DescribeTrigger(&domain.Trigger{ID: 42}); got != "Trigger 42" {
		t.Errorf("DescribeTrigger = %q", got)
	}
}

func TestParseTime(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	midnight := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"now", now},
		{"today", midnight},
		{"tomorrow", midnight.AddDate(0, 0, 1)},
		{"Yesterday", midnight.AddDate(0, 0, -1)},
		{"+90m", now.Add(90 * time.Minute)},
		{"-1h30m", now.Add(-90 * time.Minute)},
		{"3 days ago", now.AddDate(0, 0, -3)},
		{"in 2 hours", now.Add(2 * time.Hour)},
		{"+1 week", now.AddDate(0, 0, 7)},
		{"@1767225600", time.Unix(1767225600, 0).UTC()},
		{"2026-04-01 12:00:00", time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)},
		{"2026-04-01T12:00:00Z", time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := triggerctl.ParseTime(tt.in, now)
			if err != nil {
				t.Fatalf("ParseTime: %v", err)
			}
			if got == nil || !got.Equal(tt.want) {
				t.Errorf("ParseTime(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseTime_Empty(t *testing.T) {
	got, err := triggerctl.ParseTime("", time.Now())
	if err != nil || got != nil {
		t.Errorf("ParseTime(\"\") = %v, %v; want nil, nil", got, err)
	}
}

func TestParseTime_Rejects(t *testing.T) {
	now := time.Now()
	for _, in := range []string{"not a date", "@0", "@-5", "in 3 days ago"} {
		t.Run(in, func(t *testing.T) {
			_, err := triggerctl.ParseTime(in, now)
			if err == nil {
				t.Fatal("expected error")
			}
			if want := `Unable to parse time "` + in + `".`; err.Error() != want {
				t.Errorf("err = %q, want %q", err, want)
			}
			if !triggerctl.IsUsage(err) {
				t.Errorf("err = %T, want *UsageError", err)
			}
		})
	}
}
