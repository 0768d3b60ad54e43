// Package busy holds one actor's existing commitments and answers buffered
// overlap queries against them. Buffers belong to the meeting being scheduled,
// not to the stored commitments, so they are applied at query time.
package busy

import (
	"sort"
	"time"

	"github.com/schedkit/schedkit/internal/model"
)

// Set is an immutable snapshot of one actor's busy intervals for a resolution
// pass.
type Set struct {
	actorID   string
	intervals []model.Window
}

// NewSet copies the commitment windows and sorts them by start. Zero-length
// and inverted intervals are dropped.
func NewSet(actorID string, commitments []model.Commitment) *Set {
	intervals := make([]model.Window, 0, len(commitments))
	for _, c := range commitments {
		if !c.Window.End.After(c.Window.Start) {
			continue
		}
		intervals = append(intervals, c.Window)
	}
	sort.Slice(intervals, func(i, j int) bool {
		return intervals[i].Start.Before(intervals[j].Start)
	})
	return &Set{actorID: actorID, intervals: intervals}
}

func (s *Set) ActorID() string { return s.actorID }

func (s *Set) Len() int { return len(s.intervals) }

// Overlaps reports whether the candidate, expanded by the meeting buffers,
// intersects any interval in the set. Intervals are half-open: [a,b) and
// [c,d) overlap iff a < d && b > c, so back-to-back meetings with zero
// buffers do not conflict.
func (s *Set) Overlaps(candidate model.Window, bufferBefore, bufferAfter time.Duration) bool {
	expanded := model.Window{
		Start: candidate.Start.Add(-bufferBefore),
		End:   candidate.End.Add(bufferAfter),
	}
	// Intervals are sorted by start; everything starting at or after the
	// expanded end can be skipped.
	for _, iv := range s.intervals {
		if !iv.Start.Before(expanded.End) {
			break
		}
		if expanded.Overlaps(iv) {
			return true
		}
	}
	return false
}
