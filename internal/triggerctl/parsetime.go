package triggerctl

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var relativeRe = regexp.MustCompile(`^(in\s+)?([+-]?\d+)\s*(second|sec|minute|min|hour|day|week|month|year)s?(\s+ago)?$`)

// ParseTime reads an operator-supplied time. Empty input means "no
// constraint" and returns nil. Accepted forms:
//
//	now, today, tomorrow, yesterday
//	+90m, -1h30m                   (Go durations relative to now)
//	3 days ago, in 2 hours, +1 week
//	@1767225600                    (unix seconds)
//	anything dateparse understands, read in now's location
//
// Results at or before the unix epoch are rejected.
func ParseTime(s string, now time.Time) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}

	t, ok := parseTime(s, now)
	if !ok || t.Unix() <= 0 {
		return nil, Usagef("Unable to parse time %q.", s)
	}
	return &t, nil
}

func parseTime(s string, now time.Time) (time.Time, bool) {
	in := strings.ToLower(strings.TrimSpace(s))
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch in {
	case "":
		return time.Time{}, false
	case "now":
		return now, true
	case "today":
		return midnight, true
	case "tomorrow":
		return midnight.AddDate(0, 0, 1), true
	case "yesterday":
		return midnight.AddDate(0, 0, -1), true
	}

	if strings.HasPrefix(in, "@") {
		sec, err := strconv.ParseInt(in[1:], 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(sec, 0).In(now.Location()), true
	}

	if in[0] == '+' || in[0] == '-' {
		if d, err := time.ParseDuration(in[1:]); err == nil {
			if in[0] == '-' {
				d = -d
			}
			return now.Add(d), true
		}
	}

	if m := relativeRe.FindStringSubmatch(in); m != nil {
		future, n, unit, ago := m[1] != "", m[2], m[3], m[4] != ""
		if future && ago {
			return time.Time{}, false
		}
		amount, err := strconv.Atoi(n)
		if err != nil {
			return time.Time{}, false
		}
		if ago {
			amount = -amount
		}
		return shift(now, amount, unit), true
	}

	t, err := dateparse.ParseIn(strings.TrimSpace(s), now.Location())
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func shift(now time.Time, n int, unit string) time.Time {
	switch unit {
	case "second", "sec":
		return now.Add(time.Duration(n) * time.Second)
	case "minute", "min":
		return now.Add(time.Duration(n) * time.Minute)
	case "hour":
		return now.Add(time.Duration(n) * time.Hour)
	case "day":
		return now.AddDate(0, 0, n)
	case "week":
		return now.AddDate(0, 0, 7*n)
	case "month":
		return now.AddDate(0, n, 0)
	default:
		return now.AddDate(n, 0, 0)
	}
}
