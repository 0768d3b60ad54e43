// Package storage provides the engine's data access: a Postgres
// implementation for production and an in-memory implementation for tests
// and single-process development.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/schedkit/schedkit/internal/booking"
	"github.com/schedkit/schedkit/internal/model"
)

// MemoryStore implements booking.Store and the link lookup with an
// insert-if-no-overlap guard equivalent to the Postgres exclusion constraint.
type MemoryStore struct {
	mu          sync.RWMutex
	actors      map[string]model.Actor
	links       map[string]model.LinkConfig
	commitments []model.Commitment
	external    map[string]int // actorID+externalID -> commitments index
	bookings    map[string]model.Booking
	idemKeys    map[string]IdempotencyRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		actors:   map[string]model.Actor{},
		links:    map[string]model.LinkConfig{},
		external: map[string]int{},
		bookings: map[string]model.Booking{},
		idemKeys: map[string]IdempotencyRecord{},
	}
}

func (s *MemoryStore) PutActor(a model.Actor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actors[a.ID] = a
}

func (s *MemoryStore) PutLink(l model.LinkConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[l.ID] = l
}

func (s *MemoryStore) AddCommitment(c model.Commitment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitments = append(s.commitments, c)
}

func (s *MemoryStore) Actor(_ context.Context, id string) (model.Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actors[id]
	if !ok {
		return model.Actor{}, fmt.Errorf("actor %s: %w", id, booking.ErrNotFound)
	}
	return a, nil
}

func (s *MemoryStore) Link(_ context.Context, id string) (model.LinkConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.links[id]
	if !ok {
		return model.LinkConfig{}, fmt.Errorf("link %s: %w", id, booking.ErrNotFound)
	}
	return l, nil
}

// Commitments returns stored commitments plus confirmed bookings overlapping
// [from, to). A committed booking is busy immediately; there is no pending
// state.
func (s *MemoryStore) Commitments(_ context.Context, actorID string, from, to time.Time) ([]model.Commitment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Commitment
	for _, c := range s.commitments {
		if c.ActorID == actorID && c.Window.Start.Before(to) && c.Window.End.After(from) {
			out = append(out, c)
		}
	}
	for _, b := range s.bookings {
		if b.ActorID == actorID && b.Status == model.StatusConfirmed &&
			b.Window.Start.Before(to) && b.Window.End.After(from) {
			out = append(out, model.Commitment{ActorID: actorID, Window: b.Window, Source: "booking"})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Window.Start.Before(out[j].Window.Start) })
	return out, nil
}

func (s *MemoryStore) ConfirmedCountOn(_ context.Context, actorID string, dayStart, dayEnd time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, b := range s.bookings {
		if b.ActorID == actorID && b.Status == model.StatusConfirmed &&
			!b.Window.Start.Before(dayStart) && b.Window.Start.Before(dayEnd) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ConfirmedCount(_ context.Context, linkID, actorID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, b := range s.bookings {
		if b.LinkID == linkID && b.ActorID == actorID && b.Status == model.StatusConfirmed {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CreateBooking(_ context.Context, b model.Booking) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.bookings {
		if existing.ActorID == b.ActorID && existing.Status == model.StatusConfirmed &&
			existing.Window.Overlaps(b.Window) {
			return model.Booking{}, fmt.Errorf("%w: overlaps booking %s", booking.ErrWindowTaken, existing.ID)
		}
	}
	s.bookings[b.ID] = b
	return b, nil
}

func (s *MemoryStore) Booking(_ context.Context, id string) (model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, fmt.Errorf("booking %s: %w", id, booking.ErrNotFound)
	}
	return b, nil
}

func (s *MemoryStore) UpdateBookingStatus(_ context.Context, id string, status model.BookingStatus, at time.Time) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, fmt.Errorf("booking %s: %w", id, booking.ErrNotFound)
	}
	b.Status = status
	if status == model.StatusCancelled || status == model.StatusRescheduled {
		t := at
		b.CancelledAt = &t
	}
	s.bookings[id] = b
	return b, nil
}

// ListActorBookings returns an actor's bookings ordered by start time,
// feeding their ICS export.
func (s *MemoryStore) ListActorBookings(_ context.Context, actorID string, limit int) ([]model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.ActorID == actorID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Window.Start.Before(out[j].Window.Start) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpsertCommitment mirrors the Postgres upsert keyed by provider event ID.
func (s *MemoryStore) UpsertCommitment(_ context.Context, c model.Commitment, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if externalID != "" {
		key := c.ActorID + "\x00" + externalID
		if i, ok := s.external[key]; ok {
			s.commitments[i] = c
			return nil
		}
		s.external[key] = len(s.commitments)
	}
	s.commitments = append(s.commitments, c)
	return nil
}

func (s *MemoryStore) ClaimIdempotencyKey(_ context.Context, linkID, key string) (IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := linkID + "\x00" + key
	rec, ok := s.idemKeys[k]
	if !ok {
		s.idemKeys[k] = IdempotencyRecord{}
	}
	return rec, ok && rec.StatusCode > 0, nil
}

func (s *MemoryStore) FinalizeIdempotencyKey(_ context.Context, linkID, key, bookingID string, statusCode int, response []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idemKeys[linkID+"\x00"+key] = IdempotencyRecord{
		BookingID:       bookingID,
		StatusCode:      statusCode,
		ResponsePayload: append([]byte(nil), response...),
	}
	return nil
}

// ListBookings returns all bookings for a link, most recent first.
func (s *MemoryStore) ListBookings(_ context.Context, linkID string, limit int) ([]model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.LinkID == linkID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Window.Start.After(out[j].Window.Start) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
