package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// lastDayToken in the day-of-month field matches the last day of each month.
const lastDayToken = "L"

// A last-day expression restricted by weekday can skip many months before it
// matches; eight years of months is more than any real calendar needs.
const maxLastDaySteps = 12 * 8

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// cronSchedule wraps a robfig schedule with a timezone and the L extension.
type cronSchedule struct {
	sched   cron.Schedule
	loc     *time.Location
	lastDay bool
}

func parseCron(expr, timezone string) (*cronSchedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("cron expression is empty")
	}

	lastDay := false
	fields := strings.Fields(expr)
	if len(fields) == 5 && strings.EqualFold(fields[2], lastDayToken) {
		fields[2] = "*"
		expr = strings.Join(fields, " ")
		lastDay = true
	}

	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron: %w", err)
	}

	loc := time.UTC
	if timezone != "" {
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone: %w", err)
		}
	}

	return &cronSchedule{sched: sched, loc: loc, lastDay: lastDay}, nil
}

// next returns the first activation strictly after the given time, or the zero
// time when the expression can never match again.
func (c *cronSchedule) next(after time.Time) time.Time {
	t := c.sched.Next(after.In(c.loc))
	if !c.lastDay {
		return t
	}

	for range maxLastDaySteps {
		if t.IsZero() {
			return t
		}
		last := daysIn(t.Year(), t.Month())
		if t.Day() == last {
			return t
		}
		// robfig rounds up to the next whole second, so this lands on midnight.
		jump := time.Date(t.Year(), t.Month(), last, 0, 0, 0, 0, c.loc).Add(-time.Second)
		t = c.sched.Next(jump)
	}
	return time.Time{}
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
