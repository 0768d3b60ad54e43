package availability

import (
	"testing"
	"time"

	"github.com/schedkit/schedkit/internal/hours"
	"github.com/schedkit/schedkit/internal/model"
	"github.com/schedkit/schedkit/internal/timezone"
)

func nineToNoonWeekdays(t *testing.T) hours.Policy {
	t.Helper()
	var entries [7]hours.DayEntry
	for wd := 1; wd <= 5; wd++ {
		entries[wd] = hours.DayEntry{Enabled: true, Start: "09:00", End: "12:00"}
	}
	p, err := hours.New(entries)
	if err != nil {
		t.Fatalf("hours.New: %v", err)
	}
	return p
}

func collect(t *testing.T, rangeStart, rangeEnd time.Time, policy hours.Policy, duration time.Duration, zone string) []model.Candidate {
	t.Helper()
	seq, err := Generate(rangeStart, rangeEnd, policy, duration, zone)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	var out []model.Candidate
	for c := range seq {
		out = append(out, c)
	}
	return out
}

func TestGenerate_SingleDay(t *testing.T) {
	policy := nineToNoonWeekdays(t)
	// Monday 2024-06-10 UTC.
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	got := collect(t, day, day.Add(23*time.Hour), policy, 30*time.Minute, "UTC")
	want := []int{9 * 60, 9*60 + 30, 10 * 60, 10*60 + 30, 11 * 60, 11*60 + 30}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(got))
	}
	for i, c := range got {
		minute := c.Start.Hour()*60 + c.Start.Minute()
		if minute != want[i] {
			t.Fatalf("candidate %d starts at minute %d, want %d", i, minute, want[i])
		}
		if c.End.Sub(c.Start) != 30*time.Minute {
			t.Fatalf("candidate %d has duration %s", i, c.End.Sub(c.Start))
		}
	}
}

func TestGenerate_SkipsDisabledDays(t *testing.T) {
	policy := nineToNoonWeekdays(t)
	// Saturday through Sunday.
	sat := time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC)
	if got := collect(t, sat, sat.Add(47*time.Hour), policy, 30*time.Minute, "UTC"); len(got) != 0 {
		t.Fatalf("expected no candidates on a weekend, got %d", len(got))
	}
}

func TestGenerate_CandidatesFitWithinWorkingWindow(t *testing.T) {
	policy := nineToNoonWeekdays(t)
	start := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	// 45-minute meetings: last start is 11:00 (11:45 <= 12:00 fails for 11:30).
	got := collect(t, start, start.Add(5*24*time.Hour), policy, 45*time.Minute, "America/Chicago")
	if len(got) == 0 {
		t.Fatalf("expected candidates across the week")
	}
	for _, c := range got {
		localStart, err := timezone.ToWallClock(c.Start, "America/Chicago")
		if err != nil {
			t.Fatalf("ToWallClock: %v", err)
		}
		localEnd, err := timezone.ToWallClock(c.End, "America/Chicago")
		if err != nil {
			t.Fatalf("ToWallClock: %v", err)
		}
		if !policy.IsWithin(localStart) {
			t.Fatalf("candidate start %s is outside working hours", localStart)
		}
		endMinute := localEnd.Hour()*60 + localEnd.Minute()
		if endMinute > 12*60 {
			t.Fatalf("candidate end %s runs past the working window", localEnd)
		}
	}
}

func TestGenerate_DSTTransitionKeepsInstantsCorrect(t *testing.T) {
	policy := nineToNoonWeekdays(t)
	// US spring-forward weekend: Friday 2024-03-08 through Monday 2024-03-11.
	from := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)

	got := collect(t, from, to, policy, 30*time.Minute, "America/New_York")

	var friday9, monday9 model.Candidate
	for _, c := range got {
		wall, err := timezone.ToWallClock(c.Start, "America/New_York")
		if err != nil {
			t.Fatalf("ToWallClock: %v", err)
		}
		if wall.Hour() == 9 && wall.Minute() == 0 {
			switch wall.Day() {
			case 8:
				friday9 = c
			case 11:
				monday9 = c
			}
		}
	}
	if friday9.Start.IsZero() || monday9.Start.IsZero() {
		t.Fatalf("expected 09:00 candidates on both sides of the transition")
	}
	if friday9.Start.UTC().Hour() != 14 {
		t.Fatalf("pre-transition 09:00 EST should be 14:00 UTC, got %02d", friday9.Start.UTC().Hour())
	}
	if monday9.Start.UTC().Hour() != 13 {
		t.Fatalf("post-transition 09:00 EDT should be 13:00 UTC, got %02d", monday9.Start.UTC().Hour())
	}
}

func TestGenerate_Restartable(t *testing.T) {
	policy := nineToNoonWeekdays(t)
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	seq, err := Generate(day, day.Add(24*time.Hour), policy, 30*time.Minute, "UTC")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var first, second []model.Candidate
	for c := range seq {
		first = append(first, c)
	}
	for c := range seq {
		second = append(second, c)
	}
	if len(first) == 0 || len(first) != len(second) {
		t.Fatalf("restarted sequence length %d, first pass %d", len(second), len(first))
	}
	for i := range first {
		if !first[i].Start.Equal(second[i].Start) || !first[i].End.Equal(second[i].End) {
			t.Fatalf("restarted sequence diverged at index %d", i)
		}
	}
}

func TestGenerate_InvalidZone(t *testing.T) {
	policy := nineToNoonWeekdays(t)
	_, err := Generate(time.Now(), time.Now().Add(time.Hour), policy, 30*time.Minute, "Not/AZone")
	if err == nil {
		t.Fatalf("expected error for unknown zone")
	}
}
