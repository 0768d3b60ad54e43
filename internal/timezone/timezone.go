// Package timezone converts between wall-clock times in named IANA zones and
// absolute instants, resolving the UTC offset as of the specific date so that
// daylight-saving transitions are handled correctly.
package timezone

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidZone is returned when a zone name is not in the IANA database.
var ErrInvalidZone = errors.New("invalid timezone")

var (
	locMu    sync.RWMutex
	locCache = map[string]*time.Location{}
)

// Location resolves a zone name, caching successful lookups. LoadLocation
// reads the tz database from disk, which is too slow to repeat per slot.
func Location(zone string) (*time.Location, error) {
	if zone == "" {
		return nil, fmt.Errorf("%w: empty zone name", ErrInvalidZone)
	}

	locMu.RLock()
	loc, ok := locCache[zone]
	locMu.RUnlock()
	if ok {
		return loc, nil
	}

	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidZone, zone)
	}

	locMu.Lock()
	locCache[zone] = loc
	locMu.Unlock()
	return loc, nil
}

// ToInstant interprets the calendar fields of wall (year, month, day, hour,
// minute) as a local time in zone and returns the corresponding instant.
//
// An ambiguous local time (the repeated hour when clocks fall back) resolves
// to the earlier of the two valid instants. A skipped local time (the missing
// hour when clocks spring forward) normalizes forward the way time.Date does.
func ToInstant(wall time.Time, zone string) (time.Time, error) {
	loc, err := Location(zone)
	if err != nil {
		return time.Time{}, err
	}
	t := time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), 0, 0, loc)

	// time.Date leaves the choice between the two offsets of an ambiguous
	// time unspecified. Probe one standard transition step either side and
	// keep the earliest instant that still reads back as the requested wall
	// clock in this zone.
	earliest := t
	matched := sameWall(t, wall, loc)
	for _, probe := range []time.Time{t.Add(-time.Hour), t.Add(time.Hour)} {
		if !sameWall(probe, wall, loc) {
			continue
		}
		if !matched || probe.Before(earliest) {
			earliest = probe
			matched = true
		}
	}
	return earliest, nil
}

// ToWallClock returns the instant expressed as a wall-clock time in zone.
func ToWallClock(instant time.Time, zone string) (time.Time, error) {
	loc, err := Location(zone)
	if err != nil {
		return time.Time{}, err
	}
	return instant.In(loc), nil
}

func sameWall(instant, wall time.Time, loc *time.Location) bool {
	local := instant.In(loc)
	return local.Year() == wall.Year() &&
		local.Month() == wall.Month() &&
		local.Day() == wall.Day() &&
		local.Hour() == wall.Hour() &&
		local.Minute() == wall.Minute()
}
