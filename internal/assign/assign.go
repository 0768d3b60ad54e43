// Package assign chooses which actor hosts a booking once a window has been
// validated. All three strategies are pure functions of current busy state
// and booking history; no rotation cursor is persisted anywhere.
package assign

import (
	"context"
	"errors"
	"fmt"

	"github.com/schedkit/schedkit/internal/model"
)

var (
	// ErrActorUnavailable means the fixed, pre-designated actor has a
	// conflict in the chosen window. The caller should re-resolve.
	ErrActorUnavailable = errors.New("designated actor is unavailable in the chosen window")

	// ErrNoActorAvailable means no pool member is free in the chosen window.
	ErrNoActorAvailable = errors.New("no pool actor is available in the chosen window")
)

// BookingCounter exposes the all-time confirmed booking count used by the
// fewest-bookings strategy. Cancelled and rescheduled bookings must not be
// counted.
type BookingCounter interface {
	ConfirmedCount(ctx context.Context, linkID, actorID string) (int, error)
}

// FreeFunc reports whether an actor is conflict-free in the chosen window,
// checked against current busy state (not the resolution-time snapshot).
type FreeFunc func(actorID string) bool

// Pick selects exactly one host for the chosen window.
func Pick(ctx context.Context, link model.LinkConfig, free FreeFunc, counter BookingCounter) (string, error) {
	switch link.Pool.Strategy {
	case model.StrategyFixed:
		if !free(link.FixedID) {
			return "", ErrActorUnavailable
		}
		return link.FixedID, nil

	case model.StrategyFirstAvailable:
		for _, id := range link.Pool.ActorIDs {
			if free(id) {
				return id, nil
			}
		}
		return "", ErrNoActorAvailable

	case model.StrategyFewestBookings:
		chosen := ""
		best := -1
		for _, id := range link.Pool.ActorIDs {
			if !free(id) {
				continue
			}
			n, err := counter.ConfirmedCount(ctx, link.ID, id)
			if err != nil {
				return "", fmt.Errorf("count confirmed bookings for %s: %w", id, err)
			}
			// Strict less-than keeps pool order as the tie-breaker.
			if best < 0 || n < best {
				chosen, best = id, n
			}
		}
		if chosen == "" {
			return "", ErrNoActorAvailable
		}
		return chosen, nil
	}
	return "", fmt.Errorf("unknown assignment strategy %q", link.Pool.Strategy)
}
