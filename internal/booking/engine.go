package booking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/schedkit/schedkit/internal/availability"
	"github.com/schedkit/schedkit/internal/model"
)

// BookingEvents receives lifecycle notifications after durable state
// transitions, typically backed by the transactional outbox.
type BookingEvents interface {
	Confirmed(ctx context.Context, b model.Booking)
	Cancelled(ctx context.Context, b model.Booking, reason string)
	Rescheduled(ctx context.Context, old, replacement model.Booking)
}

// Engine is the caller-facing facade: availability resolution plus booking
// lifecycle. The HTTP layer is a thin shim over it.
type Engine struct {
	resolver  *availability.Resolver
	committer *Committer
	store     Store
	events    BookingEvents
	logger    *slog.Logger
	now       func() time.Time
}

func NewEngine(resolver *availability.Resolver, committer *Committer, store Store, events BookingEvents, logger *slog.Logger) *Engine {
	return &Engine{
		resolver:  resolver,
		committer: committer,
		store:     store,
		events:    events,
		logger:    logger,
		now:       time.Now,
	}
}

// GetAvailability returns the link's jointly-free windows in [rangeStart,
// rangeEnd], chronologically ordered. Pure read, no locks.
func (e *Engine) GetAvailability(ctx context.Context, link model.LinkConfig, rangeStart, rangeEnd time.Time) ([]model.AvailableWindow, error) {
	return e.resolver.Resolve(ctx, link, rangeStart, rangeEnd)
}

// CommitBooking validates and reserves the chosen window.
func (e *Engine) CommitBooking(ctx context.Context, link model.LinkConfig, requester model.Requester, window model.Window) (model.Booking, error) {
	b, err := e.committer.Commit(ctx, link, requester, window)
	if err != nil {
		return model.Booking{}, err
	}
	if e.events != nil {
		e.events.Confirmed(ctx, b)
	}
	return b, nil
}

// CancelBooking transitions a confirmed booking to cancelled. The record
// stays put: a cancelled booking stops counting for fairness but remains
// visible history. Cancelling twice is a no-op returning the current row.
func (e *Engine) CancelBooking(ctx context.Context, bookingID, reason string) (model.Booking, error) {
	b, err := e.store.Booking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if b.Status == model.StatusCancelled {
		return b, nil
	}
	if b.Status != model.StatusConfirmed {
		return model.Booking{}, fmt.Errorf("booking %s has status %s and cannot be cancelled", bookingID, b.Status)
	}

	updated, err := e.store.UpdateBookingStatus(ctx, bookingID, model.StatusCancelled, e.now())
	if err != nil {
		return model.Booking{}, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	if e.events != nil {
		e.events.Cancelled(ctx, updated, reason)
	}
	e.logger.Info("booking cancelled", "booking_id", bookingID, "actor_id", updated.ActorID)
	return updated, nil
}

// RescheduleBooking commits a replacement window first and only then marks
// the original rescheduled, so a failed commit leaves the original booking
// untouched.
func (e *Engine) RescheduleBooking(ctx context.Context, link model.LinkConfig, bookingID string, window model.Window) (model.Booking, error) {
	old, err := e.store.Booking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if old.Status != model.StatusConfirmed {
		return model.Booking{}, fmt.Errorf("booking %s has status %s and cannot be rescheduled", bookingID, old.Status)
	}
	if old.LinkID != link.ID {
		return model.Booking{}, fmt.Errorf("booking %s does not belong to link %s", bookingID, link.ID)
	}

	replacement, err := e.committer.Commit(ctx, link, old.Requester, window)
	if err != nil {
		return model.Booking{}, err
	}

	oldUpdated, err := e.store.UpdateBookingStatus(ctx, bookingID, model.StatusRescheduled, e.now())
	if err != nil {
		// The replacement is already durable; report the transition failure
		// but do not roll it back.
		e.logger.Error("failed to mark original booking rescheduled",
			"booking_id", bookingID, "replacement_id", replacement.ID, "err", err)
		return replacement, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	if e.events != nil {
		e.events.Rescheduled(ctx, oldUpdated, replacement)
	}
	e.logger.Info("booking rescheduled",
		"booking_id", bookingID, "replacement_id", replacement.ID, "actor_id", replacement.ActorID)
	return replacement, nil
}
