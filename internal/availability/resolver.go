package availability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/schedkit/schedkit/internal/busy"
	"github.com/schedkit/schedkit/internal/model"
)

// Store is the slice of booking/calendar storage the resolver reads from.
// Commitments must include confirmed bookings: a committed booking is a
// commitment for every later resolution pass.
type Store interface {
	Actor(ctx context.Context, id string) (model.Actor, error)
	Commitments(ctx context.Context, actorID string, from, to time.Time) ([]model.Commitment, error)
}

// CommitmentSource is an additional producer of busy intervals for an actor,
// e.g. an external ICS feed. Source failures degrade resolution (logged, the
// feed's events are treated as absent) rather than failing the request.
type CommitmentSource interface {
	Commitments(ctx context.Context, actor model.Actor, from, to time.Time) ([]model.Commitment, error)
}

// Resolver computes jointly-free windows for a booking link. Resolution is a
// pure read and safe to run concurrently across requests.
type Resolver struct {
	store   Store
	sources []CommitmentSource
	logger  *slog.Logger
}

func NewResolver(store Store, logger *slog.Logger, sources ...CommitmentSource) *Resolver {
	return &Resolver{store: store, sources: sources, logger: logger}
}

// LoadBusySet builds the busy snapshot for one actor over [from, to),
// merging stored commitments, the actor's manual blocks, and any extra
// sources. The commit path uses the same loader so resolution and the
// commit-time re-check see identical inputs.
func (r *Resolver) LoadBusySet(ctx context.Context, actor model.Actor, from, to time.Time) (*busy.Set, error) {
	commitments, err := r.store.Commitments(ctx, actor.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load commitments for actor %s: %w", actor.ID, err)
	}
	for _, block := range actor.Blocks {
		commitments = append(commitments, model.Commitment{ActorID: actor.ID, Window: block, Source: "manual"})
	}
	for _, src := range r.sources {
		extra, err := src.Commitments(ctx, actor, from, to)
		if err != nil {
			r.logger.Warn("external commitment source failed", "actor_id", actor.ID, "err", err)
			continue
		}
		commitments = append(commitments, extra...)
	}
	return busy.NewSet(actor.ID, commitments), nil
}

// Resolve returns the chronologically ordered windows in [rangeStart,
// rangeEnd] in which the link can be booked. Single-host links require that
// host to be free; pooled links require at least one pool member to be free
// (any-of), and each window carries the IDs of the actors free in it.
func (r *Resolver) Resolve(ctx context.Context, link model.LinkConfig, rangeStart, rangeEnd time.Time) ([]model.AvailableWindow, error) {
	if err := link.Validate(); err != nil {
		return nil, err
	}

	owner, err := r.store.Actor(ctx, link.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("load link owner %s: %w", link.OwnerID, err)
	}

	hostIDs := link.HostIDs()
	sets := make(map[string]*busy.Set, len(hostIDs))
	// Pad the loaded range so buffers reaching past the edges still see the
	// commitments they collide with.
	pad := link.Spec.BufferBefore + link.Spec.BufferAfter + link.Spec.Duration
	for _, id := range hostIDs {
		actor := owner
		if id != owner.ID {
			actor, err = r.store.Actor(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("load pool actor %s: %w", id, err)
			}
		}
		set, err := r.LoadBusySet(ctx, actor, rangeStart.Add(-pad), rangeEnd.Add(pad))
		if err != nil {
			return nil, err
		}
		sets[id] = set
	}

	candidates, err := Generate(rangeStart, rangeEnd, owner.Hours, link.Spec.Duration, owner.Timezone)
	if err != nil {
		return nil, err
	}

	var out []model.AvailableWindow
	for candidate := range candidates {
		if candidate.Start.Before(rangeStart) || candidate.End.After(rangeEnd) {
			continue
		}
		var free []string
		for _, id := range hostIDs {
			if !sets[id].Overlaps(candidate, link.Spec.BufferBefore, link.Spec.BufferAfter) {
				free = append(free, id)
			}
		}
		if len(free) == 0 {
			continue
		}
		out = append(out, model.AvailableWindow{Window: candidate, FreeActorIDs: free})
	}
	return out, nil
}
