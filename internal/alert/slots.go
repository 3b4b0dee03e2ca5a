package alert

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"optiondesk/internal/clock"
)

// ErrBeforeFirstSlot marks a trigger time earlier than the first scan slot;
// such alerts are dropped, not queued.
var ErrBeforeFirstSlot = errors.New("trigger time before first slot")

// Slots is the fixed scan-slot table for a trading day, ordered ascending.
// Alerts snap to the nearest slot at or before their trigger time.
type Slots struct {
	labels  []string
	minutes []int
}

func NewSlots(labels []string) (*Slots, error) {
	if len(labels) == 0 {
		return nil, errors.New("no slots configured")
	}
	s := &Slots{
		labels:  make([]string, 0, len(labels)),
		minutes: make([]int, 0, len(labels)),
	}
	for _, label := range labels {
		m, err := clock.MinuteOfDay(label)
		if err != nil {
			return nil, fmt.Errorf("bad slot %q: %w", label, err)
		}
		s.labels = append(s.labels, label)
		s.minutes = append(s.minutes, m)
	}
	if !sort.IntsAreSorted(s.minutes) {
		return nil, errors.New("slots must be ascending")
	}
	return s, nil
}

func (s *Slots) Labels() []string {
	out := make([]string, len(s.labels))
	copy(out, s.labels)
	return out
}

// Snap returns the label of the latest slot at or before t.
func (s *Slots) Snap(t time.Time) (string, error) {
	minute := t.Hour()*60 + t.Minute()
	idx := sort.Search(len(s.minutes), func(i int) bool {
		return s.minutes[i] > minute
	}) - 1
	if idx < 0 {
		return "", ErrBeforeFirstSlot
	}
	return s.labels[idx], nil
}
