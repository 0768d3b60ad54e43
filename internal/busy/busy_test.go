package busy

import (
	"testing"
	"time"

	"github.com/schedkit/schedkit/internal/model"
)

func at(h, m int) time.Time {
	return time.Date(2024, 6, 10, h, m, 0, 0, time.UTC)
}

func commitment(start, end time.Time) model.Commitment {
	return model.Commitment{ActorID: "a1", Window: model.Window{Start: start, End: end}, Source: "booking"}
}

func TestOverlaps_HalfOpen(t *testing.T) {
	set := NewSet("a1", []model.Commitment{commitment(at(10, 0), at(10, 30))})

	cases := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"fully inside", at(10, 0), at(10, 30), true},
		{"straddles start", at(9, 45), at(10, 15), true},
		{"straddles end", at(10, 15), at(10, 45), true},
		{"back-to-back before", at(9, 30), at(10, 0), false},
		{"back-to-back after", at(10, 30), at(11, 0), false},
		{"well clear", at(12, 0), at(12, 30), false},
	}
	for _, tc := range cases {
		got := set.Overlaps(model.Window{Start: tc.start, End: tc.end}, 0, 0)
		if got != tc.want {
			t.Fatalf("%s: Overlaps = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestOverlaps_BuffersCountAsBusy(t *testing.T) {
	set := NewSet("a1", []model.Commitment{commitment(at(10, 0), at(10, 30))})

	// 09:30-10:00 is clear on its own, but a 15-minute trailing buffer runs
	// into the 10:00 commitment.
	w := model.Window{Start: at(9, 30), End: at(10, 0)}
	if !set.Overlaps(w, 0, 15*time.Minute) {
		t.Fatalf("trailing buffer should collide with the 10:00 commitment")
	}
	if set.Overlaps(w, 0, 0) {
		t.Fatalf("unbuffered back-to-back window should not conflict")
	}

	// Leading buffer reaches back into the commitment.
	w = model.Window{Start: at(10, 45), End: at(11, 15)}
	if !set.Overlaps(w, 30*time.Minute, 0) {
		t.Fatalf("leading buffer should collide with the 10:30 commitment end")
	}
	if set.Overlaps(w, 15*time.Minute, 0) {
		t.Fatalf("15m leading buffer only reaches 10:30, which is adjacent, not overlapping")
	}
}

func TestNewSet_DropsDegenerateIntervals(t *testing.T) {
	set := NewSet("a1", []model.Commitment{
		commitment(at(10, 0), at(10, 0)),
		commitment(at(11, 0), at(10, 0)),
		commitment(at(9, 0), at(9, 30)),
	})
	if set.Len() != 1 {
		t.Fatalf("expected 1 interval after dropping degenerate ones, got %d", set.Len())
	}
}

func TestOverlaps_ManyIntervalsSorted(t *testing.T) {
	// Insertion order should not matter.
	set := NewSet("a1", []model.Commitment{
		commitment(at(15, 0), at(15, 30)),
		commitment(at(9, 0), at(9, 30)),
		commitment(at(12, 0), at(12, 30)),
	})
	if set.Overlaps(model.Window{Start: at(10, 0), End: at(11, 0)}, 0, 0) {
		t.Fatalf("10:00-11:00 is free")
	}
	if !set.Overlaps(model.Window{Start: at(11, 45), End: at(12, 15)}, 0, 0) {
		t.Fatalf("11:45-12:15 hits the noon commitment")
	}
}
