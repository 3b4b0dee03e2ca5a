package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is the single source of wall-clock time for the trading components.
// Exit rules and slot snapping are pure functions of Clock.Now, which keeps
// them deterministic under test.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

type exchangeClock struct {
	loc *time.Location
}

func New(timezone string) (Clock, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, err
	}
	return &exchangeClock{loc: loc}, nil
}

func (c *exchangeClock) Now() time.Time           { return time.Now().In(c.loc) }
func (c *exchangeClock) Location() *time.Location { return c.loc }

// Fixed returns a clock pinned to t; used by tests and replay tooling.
func Fixed(t time.Time) Clock {
	return &fixedClock{t: t}
}

type fixedClock struct {
	t time.Time
}

func (c *fixedClock) Now() time.Time           { return c.t }
func (c *fixedClock) Location() *time.Location { return c.t.Location() }

// TradingDay is the date key ("2006-01-02") of t in its own location.
func TradingDay(t time.Time) string {
	return t.Format("2006-01-02")
}

// MinuteOfDay parses "HH:MM" into minutes since midnight.
func MinuteOfDay(hhmm string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(hhmm), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q", hhmm)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", hhmm)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", hhmm)
	}
	return h*60 + m, nil
}

// AtOrAfter reports whether t has reached the "HH:MM" wall-clock mark of its
// own day. A malformed mark is treated as not reached.
func AtOrAfter(t time.Time, hhmm string) bool {
	mark, err := MinuteOfDay(hhmm)
	if err != nil {
		return false
	}
	return t.Hour()*60+t.Minute() >= mark
}
