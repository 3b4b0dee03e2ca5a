package alert

import (
	"errors"
	"testing"
	"time"
)

func dayTime(t *testing.T, hhmm string) time.Time {
	t.Helper()
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		t.Fatalf("bad test time %q: %v", hhmm, err)
	}
	return time.Date(2026, 8, 28, parsed.Hour(), parsed.Minute(), 0, 0, time.UTC)
}

func defaultSlots(t *testing.T) *Slots {
	t.Helper()
	s, err := NewSlots([]string{"10:15", "11:15", "12:15", "13:15", "14:15", "15:15"})
	if err != nil {
		t.Fatalf("NewSlots: %v", err)
	}
	return s
}

func TestSnapSlot(t *testing.T) {
	slots := defaultSlots(t)
	cases := []struct {
		at   string
		want string
	}{
		{"10:15", "10:15"},
		{"10:16", "10:15"},
		{"11:14", "10:15"},
		{"11:15", "11:15"},
		{"12:59", "12:15"},
		{"15:15", "15:15"},
		{"15:40", "15:15"},
		{"23:00", "15:15"},
	}
	for _, tc := range cases {
		got, err := slots.Snap(dayTime(t, tc.at))
		if err != nil {
			t.Fatalf("Snap(%s): %v", tc.at, err)
		}
		if got != tc.want {
			t.Fatalf("Snap(%s) = %s, want %s", tc.at, got, tc.want)
		}
	}
}

func TestSnapBeforeFirstSlot(t *testing.T) {
	slots := defaultSlots(t)
	for _, at := range []string{"09:20", "10:14", "00:00"} {
		_, err := slots.Snap(dayTime(t, at))
		if !errors.Is(err, ErrBeforeFirstSlot) {
			t.Fatalf("Snap(%s): expected ErrBeforeFirstSlot, got %v", at, err)
		}
	}
}

func TestNewSlotsRejectsBadInput(t *testing.T) {
	if _, err := NewSlots(nil); err == nil {
		t.Fatal("empty slot table should be rejected")
	}
	if _, err := NewSlots([]string{"11:15", "10:15"}); err == nil {
		t.Fatal("unsorted slot table should be rejected")
	}
	if _, err := NewSlots([]string{"25:00"}); err == nil {
		t.Fatal("invalid slot label should be rejected")
	}
}
