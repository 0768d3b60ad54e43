package model

import (
	"fmt"
	"time"
)

// Window is a half-open [Start, End) interval in absolute time.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Overlaps reports whether two half-open intervals intersect.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// Commitment is an existing busy interval on one actor's calendar. The engine
// never mutates commitments it reads; it only produces new ones through a
// confirmed booking.
type Commitment struct {
	ActorID string
	Window  Window
	Source  string // "booking", "calendar", "manual"
}

// Candidate is a generated, not-yet-verified window.
type Candidate = Window

// AvailableWindow is a candidate that survived conflict filtering, together
// with the actors that are free in it.
type AvailableWindow struct {
	Window
	FreeActorIDs []string
}

// MeetingSpec is the shape of the meeting being scheduled. Zero buffers and a
// zero daily cap are valid (cap 0 = unlimited).
type MeetingSpec struct {
	Duration     time.Duration
	BufferBefore time.Duration
	BufferAfter  time.Duration
	LeadTime     time.Duration
	MaxPerDay    int
	Timezone     string // display zone only; authoritative times are instants
}

func (s MeetingSpec) Validate() error {
	if s.Duration <= 0 {
		return fmt.Errorf("meeting duration must be positive, got %s", s.Duration)
	}
	if s.BufferBefore < 0 || s.BufferAfter < 0 || s.LeadTime < 0 {
		return fmt.Errorf("buffers and lead time must not be negative")
	}
	if s.MaxPerDay < 0 {
		return fmt.Errorf("max per day must not be negative, got %d", s.MaxPerDay)
	}
	return nil
}

type BookingStatus string

const (
	StatusConfirmed   BookingStatus = "confirmed"
	StatusCancelled   BookingStatus = "cancelled"
	StatusRescheduled BookingStatus = "rescheduled"
)

// Requester identifies who asked for the booking.
type Requester struct {
	Name  string
	Email string
}

// Booking is the durable result of a successful commit. Cancellation is a
// status transition, never a deletion; round-robin fairness counts rely on the
// historical record staying put.
type Booking struct {
	ID          string
	LinkID      string
	ActorID     string
	Window      Window
	Requester   Requester
	Status      BookingStatus
	CancelledAt *time.Time
	CreatedAt   time.Time
}
