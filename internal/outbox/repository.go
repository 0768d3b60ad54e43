package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/schedkit/schedkit/libs/db"
	otelx "github.com/schedkit/schedkit/libs/otel"
)

// Repository persists events to the outbox table and drains them for the
// publisher. Fetch and mark run inside the publisher's transaction so two
// publisher instances never ship the same row.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes the event inside the caller's transaction, capturing the
// current trace context so the eventual Kafka message continues the span.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate)
	return err
}

// InsertOne is Insert wrapped in its own short transaction, for callers
// that have no surrounding one.
func (r *Repository) InsertOne(ctx context.Context, evt Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := r.Insert(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Pending is an outbox row awaiting publication.
type Pending struct {
	ID          int64
	EventID     string
	Event
	Traceparent string
	Tracestate  string
	CreatedAt   time.Time
}

func (r *Repository) FetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]Pending, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []Pending
	for rows.Next() {
		var p Pending
		if err := rows.Scan(&p.ID, &p.EventID, &p.AggregateType, &p.AggregateID, &p.EventType, &p.Payload, &p.Traceparent, &p.Tracestate, &p.CreatedAt); err != nil {
			return nil, err
		}
		pending = append(pending, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return pending, nil
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET published_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}
