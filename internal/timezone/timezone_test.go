package timezone

import (
	"errors"
	"testing"
	"time"
)

func TestToInstant_DSTOffsetsDiffer(t *testing.T) {
	// 09:00 New York local maps to different UTC instants in March vs July.
	march := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	july := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)

	mi, err := ToInstant(march, "America/New_York")
	if err != nil {
		t.Fatalf("ToInstant(march): %v", err)
	}
	ji, err := ToInstant(july, "America/New_York")
	if err != nil {
		t.Fatalf("ToInstant(july): %v", err)
	}

	if got := mi.UTC().Hour(); got != 14 {
		t.Fatalf("expected 09:00 EST = 14:00 UTC, got %02d:00", got)
	}
	if got := ji.UTC().Hour(); got != 13 {
		t.Fatalf("expected 09:00 EDT = 13:00 UTC, got %02d:00", got)
	}
}

func TestToInstant_AmbiguousPicksEarlier(t *testing.T) {
	// US fall-back 2024-11-03: 01:30 occurs twice in America/New_York.
	wall := time.Date(2024, 11, 3, 1, 30, 0, 0, time.UTC)
	got, err := ToInstant(wall, "America/New_York")
	if err != nil {
		t.Fatalf("ToInstant: %v", err)
	}
	// Earlier occurrence is still EDT (UTC-4): 05:30 UTC.
	want := time.Date(2024, 11, 3, 5, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected earlier instant %s, got %s", want, got.UTC())
	}
}

func TestRoundTrip(t *testing.T) {
	zones := []string{"UTC", "America/New_York", "Europe/Berlin", "Asia/Kolkata"}
	wall := time.Date(2024, 6, 10, 14, 30, 0, 0, time.UTC)
	for _, zone := range zones {
		instant, err := ToInstant(wall, zone)
		if err != nil {
			t.Fatalf("ToInstant(%s): %v", zone, err)
		}
		back, err := ToWallClock(instant, zone)
		if err != nil {
			t.Fatalf("ToWallClock(%s): %v", zone, err)
		}
		if back.Hour() != 14 || back.Minute() != 30 || back.Day() != 10 {
			t.Fatalf("%s: round trip produced %s", zone, back)
		}
	}
}

func TestInvalidZone(t *testing.T) {
	if _, err := ToInstant(time.Now(), "Mars/Olympus_Mons"); !errors.Is(err, ErrInvalidZone) {
		t.Fatalf("expected ErrInvalidZone, got %v", err)
	}
	if _, err := Location(""); !errors.Is(err, ErrInvalidZone) {
		t.Fatalf("expected ErrInvalidZone for empty name, got %v", err)
	}
}

func TestLocationCached(t *testing.T) {
	a, err := Location("Europe/Berlin")
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	b, err := Location("Europe/Berlin")
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	if a != b {
		t.Fatalf("expected cached *time.Location to be reused")
	}
}
