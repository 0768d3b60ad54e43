// Package calendar pulls busy intervals from actors' published ICS feeds.
package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/schedkit/schedkit/internal/model"
	"github.com/schedkit/schedkit/internal/timezone"
)

const feedSource = "ics"

// FeedSource fetches an actor's ICS feed and converts its VEVENTs into
// commitments. Responses are cached per feed URL for a short TTL so one
// availability request does not hammer the provider once per host.
type FeedSource struct {
	client *http.Client
	logger *slog.Logger
	ttl    time.Duration

	mu    sync.Mutex
	cache map[string]cachedFeed
}

type cachedFeed struct {
	fetchedAt time.Time
	events    []feedEvent
}

type feedEvent struct {
	uid    string
	window model.Window
}

func NewFeedSource(logger *slog.Logger, ttl time.Duration) *FeedSource {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &FeedSource{
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
		ttl:    ttl,
		cache:  map[string]cachedFeed{},
	}
}

// Commitments implements availability.CommitmentSource. Actors without a
// feed URL contribute nothing.
func (f *FeedSource) Commitments(ctx context.Context, actor model.Actor, from, to time.Time) ([]model.Commitment, error) {
	if actor.ICSFeedURL == "" {
		return nil, nil
	}
	events, err := f.events(ctx, actor)
	if err != nil {
		return nil, err
	}
	var out []model.Commitment
	for _, ev := range events {
		if ev.window.Start.Before(to) && ev.window.End.After(from) {
			out = append(out, model.Commitment{
				ActorID: actor.ID,
				Window:  ev.window,
				Source:  feedSource,
			})
		}
	}
	return out, nil
}

func (f *FeedSource) events(ctx context.Context, actor model.Actor) ([]feedEvent, error) {
	f.mu.Lock()
	cached, ok := f.cache[actor.ICSFeedURL]
	f.mu.Unlock()
	if ok && time.Since(cached.fetchedAt) < f.ttl {
		return cached.events, nil
	}

	events, err := f.fetch(ctx, actor)
	if err != nil {
		// Serve stale on fetch failure rather than dropping the feed's
		// busy intervals entirely.
		if ok {
			f.logger.Warn("ics fetch failed, serving cached feed",
				"actor_id", actor.ID, "err", err)
			return cached.events, nil
		}
		return nil, err
	}

	f.mu.Lock()
	f.cache[actor.ICSFeedURL] = cachedFeed{fetchedAt: time.Now(), events: events}
	f.mu.Unlock()
	return events, nil
}

func (f *FeedSource) fetch(ctx context.Context, actor model.Actor) ([]feedEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, actor.ICSFeedURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch ics feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch ics feed: status %d", resp.StatusCode)
	}

	cal, err := ical.NewDecoder(resp.Body).Decode()
	if err != nil {
		return nil, fmt.Errorf("decode ics feed: %w", err)
	}

	// Floating (zone-less) DTSTART values are interpreted in the actor's
	// zone, matching how calendar apps render them for the feed owner.
	loc, err := timezone.Location(actor.Timezone)
	if err != nil {
		return nil, err
	}

	var events []feedEvent
	seen := map[string]bool{}
	for _, ev := range cal.Events() {
		start, err := ev.DateTimeStart(loc)
		if err != nil {
			f.logger.Warn("ics event without usable start skipped", "actor_id", actor.ID, "err", err)
			continue
		}
		end, err := ev.DateTimeEnd(loc)
		if err != nil || !end.After(start) {
			f.logger.Warn("ics event without usable end skipped", "actor_id", actor.ID, "err", err)
			continue
		}
		uid := ""
		if prop := ev.Props.Get(ical.PropUID); prop != nil {
			uid = prop.Value
		}
		key := uid + "/" + start.UTC().Format(time.RFC3339)
		if uid != "" && seen[key] {
			continue
		}
		seen[key] = true
		events = append(events, feedEvent{
			uid:    uid,
			window: model.Window{Start: start.UTC(), End: end.UTC()},
		})
	}
	return events, nil
}
