// Package availability turns working-hours policy into concrete candidate
// windows and filters them against every required actor's commitments.
package availability

import (
	"iter"
	"time"

	"github.com/schedkit/schedkit/internal/hours"
	"github.com/schedkit/schedkit/internal/model"
	"github.com/schedkit/schedkit/internal/timezone"
)

// StepMinutes is the fixed slot granularity.
const StepMinutes = 30

// Generate walks every calendar day of [rangeStart, rangeEnd] in the given
// zone and emits candidate windows of length duration inside the policy's
// enabled windows, stepping the local clock in 30-minute increments.
//
// Each candidate boundary is converted to an instant individually, so a range
// spanning a DST transition yields correctly spaced instants even though the
// local clock arithmetic stays naive. The returned sequence is lazy, finite,
// and restartable: re-ranging over it replays the same candidates.
func Generate(rangeStart, rangeEnd time.Time, policy hours.Policy, duration time.Duration, zone string) (iter.Seq[model.Candidate], error) {
	if _, err := timezone.Location(zone); err != nil {
		return nil, err
	}

	startWall, err := timezone.ToWallClock(rangeStart, zone)
	if err != nil {
		return nil, err
	}
	endWall, err := timezone.ToWallClock(rangeEnd, zone)
	if err != nil {
		return nil, err
	}

	// Naive calendar cursor: only the date fields matter, instants come from
	// the per-boundary conversion below.
	firstDay := time.Date(startWall.Year(), startWall.Month(), startWall.Day(), 0, 0, 0, 0, time.UTC)
	lastDay := time.Date(endWall.Year(), endWall.Month(), endWall.Day(), 0, 0, 0, 0, time.UTC)
	durMinutes := int(duration / time.Minute)

	seq := func(yield func(model.Candidate) bool) {
		for day := firstDay; !day.After(lastDay); day = day.AddDate(0, 0, 1) {
			startMin, endMin, enabled := policy.Window(day.Weekday())
			if !enabled {
				continue
			}
			for minute := startMin; minute+durMinutes <= endMin; minute += StepMinutes {
				slotStart, err := timezone.ToInstant(day.Add(time.Duration(minute)*time.Minute), zone)
				if err != nil {
					return
				}
				slotEnd, err := timezone.ToInstant(day.Add(time.Duration(minute+durMinutes)*time.Minute), zone)
				if err != nil {
					return
				}
				if !yield(model.Candidate{Start: slotStart, End: slotEnd}) {
					return
				}
			}
		}
	}
	return seq, nil
}
