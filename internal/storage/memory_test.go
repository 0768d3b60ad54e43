package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/schedkit/schedkit/internal/booking"
	"github.com/schedkit/schedkit/internal/model"
)

func testBooking(id, actorID string, start time.Time) model.Booking {
	return model.Booking{
		ID:      id,
		LinkID:  "link-1",
		ActorID: actorID,
		Window:  model.Window{Start: start, End: start.Add(30 * time.Minute)},
		Status:  model.StatusConfirmed,
	}
}

func TestMemoryStore_CreateBookingRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	start := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)

	if _, err := s.CreateBooking(ctx, testBooking("b1", "a1", start)); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := s.CreateBooking(ctx, testBooking("b2", "a1", start.Add(15*time.Minute)))
	if !errors.Is(err, booking.ErrWindowTaken) {
		t.Fatalf("err = %v, want ErrWindowTaken", err)
	}

	// Other actors are independent.
	if _, err := s.CreateBooking(ctx, testBooking("b3", "a2", start)); err != nil {
		t.Fatalf("other-actor create: %v", err)
	}

	// A cancelled booking stops blocking the window.
	if _, err := s.UpdateBookingStatus(ctx, "b1", model.StatusCancelled, start); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := s.CreateBooking(ctx, testBooking("b4", "a1", start)); err != nil {
		t.Fatalf("create after cancel: %v", err)
	}
}

func TestMemoryStore_CommitmentsIncludeBookings(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	start := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)

	s.AddCommitment(model.Commitment{
		ActorID: "a1",
		Window:  model.Window{Start: start.Add(-time.Hour), End: start.Add(-30 * time.Minute)},
		Source:  "calendar",
	})
	if _, err := s.CreateBooking(ctx, testBooking("b1", "a1", start)); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Commitments(ctx, "a1", start.Add(-2*time.Hour), start.Add(time.Hour))
	if err != nil {
		t.Fatalf("Commitments: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d commitments, want 2", len(got))
	}
	if got[0].Window.Start.After(got[1].Window.Start) {
		t.Fatal("commitments not sorted by start")
	}
}

func TestMemoryStore_UpsertCommitmentByExternalID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	start := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)

	c := model.Commitment{
		ActorID: "a1",
		Window:  model.Window{Start: start, End: start.Add(time.Hour)},
		Source:  "calendar",
	}
	if err := s.UpsertCommitment(ctx, c, "evt-1"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Redelivery with a moved window overwrites instead of duplicating.
	c.Window = model.Window{Start: start.Add(time.Hour), End: start.Add(2 * time.Hour)}
	if err := s.UpsertCommitment(ctx, c, "evt-1"); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := s.Commitments(ctx, "a1", start, start.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("Commitments: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d commitments, want 1", len(got))
	}
	if !got[0].Window.Start.Equal(start.Add(time.Hour)) {
		t.Fatalf("window not updated: %v", got[0].Window)
	}
}

func TestMemoryStore_IdempotencyLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec, finalized, err := s.ClaimIdempotencyKey(ctx, "link-1", "key-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if finalized {
		t.Fatalf("fresh key reported finalized: %+v", rec)
	}

	payload := []byte(`{"booking_id":"b1"}`)
	if err := s.FinalizeIdempotencyKey(ctx, "link-1", "key-1", "b1", 201, payload); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	rec, finalized, err = s.ClaimIdempotencyKey(ctx, "link-1", "key-1")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if !finalized || rec.BookingID != "b1" || rec.StatusCode != 201 || string(rec.ResponsePayload) != string(payload) {
		t.Fatalf("unexpected record: finalized=%v rec=%+v", finalized, rec)
	}

	// Keys are scoped per link.
	if _, finalized, _ := s.ClaimIdempotencyKey(ctx, "link-2", "key-1"); finalized {
		t.Fatal("key leaked across links")
	}
}
