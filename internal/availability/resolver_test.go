package availability

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/schedkit/schedkit/internal/hours"
	"github.com/schedkit/schedkit/internal/model"
)

type fakeStore struct {
	actors      map[string]model.Actor
	commitments []model.Commitment
}

func (f *fakeStore) Actor(_ context.Context, id string) (model.Actor, error) {
	a, ok := f.actors[id]
	if !ok {
		return model.Actor{}, fmt.Errorf("actor %s not found", id)
	}
	return a, nil
}

func (f *fakeStore) Commitments(_ context.Context, actorID string, from, to time.Time) ([]model.Commitment, error) {
	var out []model.Commitment
	for _, c := range f.commitments {
		if c.ActorID == actorID && c.Window.Start.Before(to) && c.Window.End.After(from) {
			out = append(out, c)
		}
	}
	return out, nil
}

func testActor(id, zone string) model.Actor {
	var entries [7]hours.DayEntry
	for wd := 1; wd <= 5; wd++ {
		entries[wd] = hours.DayEntry{Enabled: true, Start: "09:00", End: "12:00"}
	}
	return model.Actor{ID: id, Timezone: zone, Hours: hours.MustNew(entries)}
}

func singleHostLink(actorID string, spec model.MeetingSpec) model.LinkConfig {
	return model.LinkConfig{
		ID:      "link-1",
		OwnerID: actorID,
		Pool:    model.AssignmentPool{Strategy: model.StrategyFixed},
		FixedID: actorID,
		Spec:    spec,
	}
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestResolve_BufferExample(t *testing.T) {
	// One actor, working 09:00-12:00, one commitment [10:00,10:30), meetings
	// of 30 minutes with a 15-minute trailing buffer. The 09:30 slot is
	// excluded because its buffered end (10:15) collides with the
	// commitment; 09:00 survives.
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC) // Monday
	store := &fakeStore{
		actors: map[string]model.Actor{"a1": testActor("a1", "UTC")},
		commitments: []model.Commitment{{
			ActorID: "a1",
			Window:  model.Window{Start: day.Add(10 * time.Hour), End: day.Add(10*time.Hour + 30*time.Minute)},
			Source:  "booking",
		}},
	}
	link := singleHostLink("a1", model.MeetingSpec{
		Duration:    30 * time.Minute,
		BufferAfter: 15 * time.Minute,
	})

	windows, err := NewResolver(store, discard()).Resolve(context.Background(), link, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	starts := map[int]bool{}
	for _, w := range windows {
		starts[w.Start.Hour()*60+w.Start.Minute()] = true
	}
	if !starts[9*60] {
		t.Fatalf("09:00 should be available, got %v", starts)
	}
	if starts[9*60+30] {
		t.Fatalf("09:30 should be excluded by the trailing buffer")
	}
	if starts[10*60] {
		t.Fatalf("10:00 collides with the commitment itself")
	}
	// 10:30 starts exactly at the commitment end; half-open intervals and a
	// trailing-only buffer leave it free.
	if !starts[10*60+30] {
		t.Fatalf("10:30 should be available, got %v", starts)
	}
}

func TestResolve_PooledAnyOfSemantics(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{
		actors: map[string]model.Actor{
			"a1": testActor("a1", "UTC"),
			"a2": testActor("a2", "UTC"),
		},
		// a1 is blocked all morning; a2 only 10:00-10:30.
		commitments: []model.Commitment{
			{ActorID: "a1", Window: model.Window{Start: day.Add(9 * time.Hour), End: day.Add(12 * time.Hour)}},
			{ActorID: "a2", Window: model.Window{Start: day.Add(10 * time.Hour), End: day.Add(10*time.Hour + 30*time.Minute)}},
		},
	}
	link := model.LinkConfig{
		ID:      "team",
		OwnerID: "a1",
		Pool:    model.AssignmentPool{ActorIDs: []string{"a1", "a2"}, Strategy: model.StrategyFirstAvailable},
		Spec:    model.MeetingSpec{Duration: 30 * time.Minute},
	}

	windows, err := NewResolver(store, discard()).Resolve(context.Background(), link, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// a2 covers every slot except 10:00; any-of keeps the rest alive.
	for _, w := range windows {
		if w.Start.Hour() == 10 && w.Start.Minute() == 0 {
			t.Fatalf("10:00 has no free actor and should be gone")
		}
		if len(w.FreeActorIDs) != 1 || w.FreeActorIDs[0] != "a2" {
			t.Fatalf("window %s: free actors %v, want [a2]", w.Start, w.FreeActorIDs)
		}
	}
	if len(windows) != 5 {
		t.Fatalf("expected 5 windows (six slots minus 10:00), got %d", len(windows))
	}
}

func TestResolve_OutputSelfConsistent(t *testing.T) {
	// Re-running the buffered overlap check against the same snapshot must
	// show every returned window conflict-free.
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{
		actors: map[string]model.Actor{"a1": testActor("a1", "UTC")},
		commitments: []model.Commitment{
			{ActorID: "a1", Window: model.Window{Start: day.Add(9*time.Hour + 30*time.Minute), End: day.Add(11 * time.Hour)}},
		},
	}
	spec := model.MeetingSpec{Duration: 30 * time.Minute, BufferBefore: 10 * time.Minute, BufferAfter: 5 * time.Minute}
	link := singleHostLink("a1", spec)
	r := NewResolver(store, discard())

	windows, err := r.Resolve(context.Background(), link, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	actor := store.actors["a1"]
	set, err := r.LoadBusySet(context.Background(), actor, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("LoadBusySet: %v", err)
	}
	for _, w := range windows {
		if set.Overlaps(w.Window, spec.BufferBefore, spec.BufferAfter) {
			t.Fatalf("resolver returned conflicting window %s-%s", w.Start, w.End)
		}
	}
}

func TestResolve_Idempotent(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{
		actors: map[string]model.Actor{"a1": testActor("a1", "UTC")},
		commitments: []model.Commitment{
			{ActorID: "a1", Window: model.Window{Start: day.Add(10 * time.Hour), End: day.Add(10*time.Hour + 30*time.Minute)}},
		},
	}
	link := singleHostLink("a1", model.MeetingSpec{Duration: 30 * time.Minute})
	r := NewResolver(store, discard())

	first, err := r.Resolve(context.Background(), link, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := r.Resolve(context.Background(), link, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("idempotence violated: %d vs %d windows", len(first), len(second))
	}
	for i := range first {
		if !first[i].Start.Equal(second[i].Start) || !first[i].End.Equal(second[i].End) {
			t.Fatalf("window %d differs between runs", i)
		}
		if i > 0 && !first[i-1].Start.Before(first[i].Start) {
			t.Fatalf("windows not in chronological order at %d", i)
		}
	}
}

func TestResolve_ManualBlocksCountAsBusy(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	actor := testActor("a1", "UTC")
	actor.Blocks = []model.Window{{Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)}}
	store := &fakeStore{actors: map[string]model.Actor{"a1": actor}}
	link := singleHostLink("a1", model.MeetingSpec{Duration: 30 * time.Minute})

	windows, err := NewResolver(store, discard()).Resolve(context.Background(), link, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for _, w := range windows {
		if w.Start.Hour() == 9 {
			t.Fatalf("09:xx slots should be blocked by the manual block")
		}
	}
	if len(windows) != 4 {
		t.Fatalf("expected 4 windows (10:00..11:30), got %d", len(windows))
	}
}
