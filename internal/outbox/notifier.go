package outbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/schedkit/schedkit/internal/model"
)

// Notifier turns engine lifecycle hooks into outbox events. Event loss on
// insert failure is logged, never surfaced: the booking itself is already
// durable and the feed is advisory.
type Notifier struct {
	repo   *Repository
	logger *slog.Logger
}

func NewNotifier(repo *Repository, logger *slog.Logger) *Notifier {
	return &Notifier{repo: repo, logger: logger}
}

type bookingPayload struct {
	BookingID  string    `json:"booking_id"`
	LinkID     string    `json:"link_id"`
	ActorID    string    `json:"actor_id"`
	Requester  string    `json:"requester_email"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	ReplacedBy string    `json:"replaced_by,omitempty"`
}

func payloadFor(b model.Booking) bookingPayload {
	return bookingPayload{
		BookingID: b.ID,
		LinkID:    b.LinkID,
		ActorID:   b.ActorID,
		Requester: b.Requester.Email,
		StartTime: b.Window.Start,
		EndTime:   b.Window.End,
		Status:    string(b.Status),
	}
}

func (n *Notifier) emit(ctx context.Context, eventType, aggregateID string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("outbox payload marshal failed", "event_type", eventType, "err", err)
		return
	}
	evt := Event{
		AggregateType: "booking",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
	}
	if err := n.repo.InsertOne(ctx, evt); err != nil {
		n.logger.Error("outbox insert failed", "event_type", eventType, "err", err)
	}
}

func (n *Notifier) Confirmed(ctx context.Context, b model.Booking) {
	n.emit(ctx, TopicBookingConfirmed, b.ID, payloadFor(b))
}

func (n *Notifier) Cancelled(ctx context.Context, b model.Booking, reason string) {
	p := payloadFor(b)
	p.Reason = reason
	n.emit(ctx, TopicBookingCancelled, b.ID, p)
}

func (n *Notifier) Rescheduled(ctx context.Context, old, replacement model.Booking) {
	p := payloadFor(old)
	p.ReplacedBy = replacement.ID
	n.emit(ctx, TopicBookingRescheduled, old.ID, p)
}

type commitmentPayload struct {
	ActorID   string    `json:"actor_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// CreateCommitment hands the reserved window to downstream calendar
// writers. Satisfies the committer's fire-and-forget contract.
func (n *Notifier) CreateCommitment(ctx context.Context, actorID string, w model.Window) error {
	evt := Event{
		AggregateType: "commitment",
		AggregateID:   actorID,
		EventType:     TopicCommitmentCreate,
	}
	body, err := json.Marshal(commitmentPayload{ActorID: actorID, StartTime: w.Start, EndTime: w.End})
	if err != nil {
		return err
	}
	evt.Payload = body
	return n.repo.InsertOne(ctx, evt)
}
