package hours

import (
	"errors"
	"testing"
	"time"
)

func weekdayNineToFive() [7]DayEntry {
	var entries [7]DayEntry
	for wd := 1; wd <= 5; wd++ {
		entries[wd] = DayEntry{Enabled: true, Start: "09:00", End: "17:00"}
	}
	return entries
}

func TestIsWithin(t *testing.T) {
	p := MustNew(weekdayNineToFive())

	// 2024-06-10 is a Monday.
	monday := func(h, m int) time.Time {
		return time.Date(2024, 6, 10, h, m, 0, 0, time.UTC)
	}
	sunday := time.Date(2024, 6, 9, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"start inclusive", monday(9, 0), true},
		{"middle", monday(12, 30), true},
		{"end exclusive", monday(17, 0), false},
		{"before start", monday(8, 59), false},
		{"disabled weekday", sunday, false},
	}
	for _, tc := range cases {
		if got := p.IsWithin(tc.at); got != tc.want {
			t.Fatalf("%s: IsWithin(%s) = %v, want %v", tc.name, tc.at, got, tc.want)
		}
	}
}

func TestNew_RejectsCrossMidnight(t *testing.T) {
	var entries [7]DayEntry
	entries[3] = DayEntry{Enabled: true, Start: "22:00", End: "02:00"}
	if _, err := New(entries); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy for cross-midnight window, got %v", err)
	}
}

func TestNew_RejectsBadClock(t *testing.T) {
	var entries [7]DayEntry
	entries[1] = DayEntry{Enabled: true, Start: "9am", End: "17:00"}
	if _, err := New(entries); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy for bad clock, got %v", err)
	}
}

func TestNew_IgnoresDisabledEntries(t *testing.T) {
	var entries [7]DayEntry
	entries[2] = DayEntry{Enabled: true, Start: "08:00", End: "12:00"}
	// Disabled days may carry junk; they are never parsed.
	entries[4] = DayEntry{Enabled: false, Start: "xx", End: "yy"}
	p, err := New(entries)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, _, ok := p.Window(time.Thursday); ok {
		t.Fatalf("Thursday should be disabled")
	}
	start, end, ok := p.Window(time.Tuesday)
	if !ok || start != 8*60 || end != 12*60 {
		t.Fatalf("Tuesday window = (%d,%d,%v), want (480,720,true)", start, end, ok)
	}
}
