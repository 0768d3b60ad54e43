// Package hours models a per-weekday working-hours policy in an actor's local
// time. Windows never cross midnight; that is rejected when the policy is
// built, not when it is queried.
package hours

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPolicy is returned for malformed clock strings or windows where
// end is not later than start on the same day.
var ErrInvalidPolicy = errors.New("invalid working-hours policy")

// DayEntry is the raw configuration for one weekday, clocks as "HH:MM".
type DayEntry struct {
	Enabled bool
	Start   string
	End     string
}

type dayWindow struct {
	enabled     bool
	startMinute int
	endMinute   int
}

// Policy is a validated 7-entry table keyed by weekday (0=Sunday..6=Saturday,
// matching time.Weekday). Immutable after New.
type Policy struct {
	days [7]dayWindow
}

// New validates the entries and resolves them into minutes since local
// midnight. Disabled days may leave Start/End empty.
func New(entries [7]DayEntry) (Policy, error) {
	var p Policy
	for wd, e := range entries {
		if !e.Enabled {
			continue
		}
		start, err := parseClock(e.Start)
		if err != nil {
			return Policy{}, fmt.Errorf("%w: weekday %d start: %v", ErrInvalidPolicy, wd, err)
		}
		end, err := parseClock(e.End)
		if err != nil {
			return Policy{}, fmt.Errorf("%w: weekday %d end: %v", ErrInvalidPolicy, wd, err)
		}
		if end <= start {
			return Policy{}, fmt.Errorf("%w: weekday %d window %s-%s does not end after it starts (cross-midnight windows are unsupported)",
				ErrInvalidPolicy, wd, e.Start, e.End)
		}
		p.days[wd] = dayWindow{enabled: true, startMinute: start, endMinute: end}
	}
	return p, nil
}

// MustNew is for fixtures and compiled-in defaults where entries are known
// valid.
func MustNew(entries [7]DayEntry) Policy {
	p, err := New(entries)
	if err != nil {
		panic(err)
	}
	return p
}

// Window returns the configured minutes-since-midnight window for a weekday.
// ok is false on disabled days.
func (p Policy) Window(wd time.Weekday) (startMinute, endMinute int, ok bool) {
	d := p.days[int(wd)]
	return d.startMinute, d.endMinute, d.enabled
}

// IsWithin reports whether a local wall-clock time falls inside the enabled
// window of its weekday. The end bound is exclusive, matching half-open
// interval semantics everywhere else in the engine.
func (p Policy) IsWithin(localWall time.Time) bool {
	d := p.days[int(localWall.Weekday())]
	if !d.enabled {
		return false
	}
	minute := localWall.Hour()*60 + localWall.Minute()
	return minute >= d.startMinute && minute < d.endMinute
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("clock %q is not HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
