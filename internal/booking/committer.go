package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/schedkit/schedkit/internal/assign"
	"github.com/schedkit/schedkit/internal/availability"
	"github.com/schedkit/schedkit/internal/locking"
	"github.com/schedkit/schedkit/internal/model"
	"github.com/schedkit/schedkit/internal/timezone"
)

// Store is the booking-side storage contract. Commitments returned by the
// embedded availability.Store must include confirmed bookings, so a committed
// booking is immediately busy for every later query.
type Store interface {
	availability.Store

	// ConfirmedCountOn counts confirmed bookings for an actor whose window
	// start falls in [dayStart, dayEnd).
	ConfirmedCountOn(ctx context.Context, actorID string, dayStart, dayEnd time.Time) (int, error)

	// ConfirmedCount is the all-time per-link count used by fewest-bookings
	// assignment.
	ConfirmedCount(ctx context.Context, linkID, actorID string) (int, error)

	// CreateBooking persists atomically, returning ErrWindowTaken when a
	// confirmed booking already overlaps the actor's window.
	CreateBooking(ctx context.Context, b model.Booking) (model.Booking, error)

	Booking(ctx context.Context, id string) (model.Booking, error)

	// UpdateBookingStatus transitions a booking's status. The row is never
	// deleted; history feeds fairness counting.
	UpdateBookingStatus(ctx context.Context, id string, status model.BookingStatus, at time.Time) (model.Booking, error)
}

// CalendarWriter receives the create-commitment handoff after a successful
// commit so external calendars reflect the new busy period. Fire and forget:
// failures are logged, never fail the commit.
type CalendarWriter interface {
	CreateCommitment(ctx context.Context, actorID string, w model.Window) error
}

// Committer validates a chosen window against link policy and atomically
// reserves it, assigning the host on the way.
type Committer struct {
	store    Store
	resolver *availability.Resolver
	calendar CalendarWriter
	locker   locking.Locker
	logger   *slog.Logger
	now      func() time.Time
}

func NewCommitter(store Store, resolver *availability.Resolver, calendar CalendarWriter, locker locking.Locker, logger *slog.Logger) *Committer {
	return &Committer{
		store:    store,
		resolver: resolver,
		calendar: calendar,
		locker:   locker,
		logger:   logger,
		now:      time.Now,
	}
}

// Commit runs the validation pipeline in order, first failure wins:
// duration match, lead time, daily cap, fresh conflict re-check, assignment,
// persist. The conflict re-check through persist runs inside the per-actor
// critical section so two overlapping commits for the same actor cannot both
// succeed.
func (c *Committer) Commit(ctx context.Context, link model.LinkConfig, requester model.Requester, window model.Window) (model.Booking, error) {
	if err := link.Validate(); err != nil {
		return model.Booking{}, err
	}

	// Step 1: exact duration match.
	if window.Duration() != link.Spec.Duration {
		return model.Booking{}, fmt.Errorf("%w: got %s, want %s", ErrDurationMismatch, window.Duration(), link.Spec.Duration)
	}

	// Step 2: lead time.
	now := c.now()
	if now.Add(link.Spec.LeadTime).After(window.Start) {
		return model.Booking{}, fmt.Errorf("%w: window starts %s, needs %s of notice from %s",
			ErrLeadTimeViolation, window.Start.Format(time.RFC3339), link.Spec.LeadTime, now.Format(time.RFC3339))
	}

	hosts := make(map[string]model.Actor, len(link.HostIDs()))
	for _, id := range link.HostIDs() {
		actor, err := c.store.Actor(ctx, id)
		if err != nil {
			return model.Booking{}, fmt.Errorf("load actor %s: %w", id, err)
		}
		hosts[id] = actor
	}

	// Step 3: daily cap, evaluated on the calendar day of the window start
	// in each actor's own zone. An actor at cap cannot host; if nobody can,
	// the whole request is capped out.
	eligible, err := c.underDailyCap(ctx, link, window, hosts)
	if err != nil {
		return model.Booking{}, err
	}
	if len(eligible) == 0 {
		return model.Booking{}, ErrDailyCapReached
	}

	// Locks are taken for every actor that could host, in sorted order so
	// two pooled commits can never deadlock against each other.
	release, err := c.lockAll(ctx, eligible)
	if err != nil {
		if errors.Is(err, locking.ErrLockHeld) {
			return model.Booking{}, fmt.Errorf("%w: %v", ErrConflictRejected, err)
		}
		return model.Booking{}, err
	}
	defer release()

	// Step 4: re-run the buffered conflict check against current state, not
	// the snapshot the caller resolved against.
	free := map[string]bool{}
	pad := link.Spec.BufferBefore + link.Spec.BufferAfter + link.Spec.Duration
	for _, id := range eligible {
		set, err := c.resolver.LoadBusySet(ctx, hosts[id], window.Start.Add(-pad), window.End.Add(pad))
		if err != nil {
			return model.Booking{}, err
		}
		free[id] = !set.Overlaps(window, link.Spec.BufferBefore, link.Spec.BufferAfter)
	}

	// Step 5: pick the host. Assignment failure has the same recovery path
	// as a conflict: re-resolve and pick again.
	counter := linkCounter{store: c.store}
	actorID, err := assign.Pick(ctx, link, func(id string) bool { return free[id] }, counter)
	if err != nil {
		if errors.Is(err, assign.ErrActorUnavailable) || errors.Is(err, assign.ErrNoActorAvailable) {
			return model.Booking{}, fmt.Errorf("%w: %v", ErrConflictRejected, err)
		}
		return model.Booking{}, err
	}

	// Step 6: persist. This is the last step, so a failure here leaves no
	// partial state and the caller may retry the whole commit.
	b := model.Booking{
		ID:        uuid.NewString(),
		LinkID:    link.ID,
		ActorID:   actorID,
		Window:    window,
		Requester: requester,
		Status:    model.StatusConfirmed,
		CreatedAt: now,
	}
	created, err := c.store.CreateBooking(ctx, b)
	if err != nil {
		if errors.Is(err, ErrWindowTaken) {
			return model.Booking{}, fmt.Errorf("%w: %v", ErrConflictRejected, err)
		}
		return model.Booking{}, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	if c.calendar != nil {
		if err := c.calendar.CreateCommitment(ctx, actorID, window); err != nil {
			c.logger.Warn("calendar commitment handoff failed",
				"booking_id", created.ID, "actor_id", actorID, "err", err)
		}
	}

	c.logger.Info("booking committed",
		"booking_id", created.ID,
		"link_id", link.ID,
		"actor_id", actorID,
		"start", window.Start.Format(time.RFC3339),
		"strategy", string(link.Pool.Strategy),
	)
	return created, nil
}

func (c *Committer) underDailyCap(ctx context.Context, link model.LinkConfig, window model.Window, hosts map[string]model.Actor) ([]string, error) {
	ids := link.HostIDs()
	if link.Spec.MaxPerDay <= 0 {
		return ids, nil
	}

	var eligible []string
	for _, id := range ids {
		actor := hosts[id]
		wall, err := timezone.ToWallClock(window.Start, actor.Timezone)
		if err != nil {
			return nil, err
		}
		dayStartWall := time.Date(wall.Year(), wall.Month(), wall.Day(), 0, 0, 0, 0, time.UTC)
		dayStart, err := timezone.ToInstant(dayStartWall, actor.Timezone)
		if err != nil {
			return nil, err
		}
		dayEnd, err := timezone.ToInstant(dayStartWall.AddDate(0, 0, 1), actor.Timezone)
		if err != nil {
			return nil, err
		}
		n, err := c.store.ConfirmedCountOn(ctx, id, dayStart, dayEnd)
		if err != nil {
			return nil, fmt.Errorf("count bookings for actor %s: %w", id, err)
		}
		if n < link.Spec.MaxPerDay {
			eligible = append(eligible, id)
		}
	}
	return eligible, nil
}

func (c *Committer) lockAll(ctx context.Context, actorIDs []string) (func(), error) {
	ordered := append([]string(nil), actorIDs...)
	sort.Strings(ordered)

	releases := make([]func(), 0, len(ordered))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, id := range ordered {
		release, err := c.locker.Acquire(ctx, id)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

type linkCounter struct {
	store Store
}

func (lc linkCounter) ConfirmedCount(ctx context.Context, linkID, actorID string) (int, error) {
	return lc.store.ConfirmedCount(ctx, linkID, actorID)
}
