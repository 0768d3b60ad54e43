// Package ingest consumes calendar sync events from Kafka and upserts the
// resulting busy intervals, deduplicating deliveries through the inbox
// table.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/schedkit/schedkit/internal/model"
	"github.com/schedkit/schedkit/libs/db"
	"github.com/schedkit/schedkit/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TopicCommitmentSynced carries upstream calendar changes into the engine.
const TopicCommitmentSynced = "calendar.commitment.synced.v1"

// CommitmentUpserter is the slice of the store the consumer writes through.
type CommitmentUpserter interface {
	UpsertCommitment(ctx context.Context, c model.Commitment, externalID string) error
}

// Inbox records processed event IDs so redelivered messages are dropped.
type Inbox struct {
	pool *db.Pool
}

func NewInbox(pool *db.Pool) *Inbox {
	return &Inbox{pool: pool}
}

// Record returns false when the event was already processed.
func (i *Inbox) Record(ctx context.Context, eventID, eventType string) (bool, error) {
	_, err := i.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return false, nil
	}
	return false, err
}

type Consumer struct {
	reader *kafka.Reader
	logger *slog.Logger
	inbox  *Inbox
	store  CommitmentUpserter
}

type Config struct {
	Brokers string
	GroupID string
}

func NewConsumer(logger *slog.Logger, inbox *Inbox, store CommitmentUpserter, cfg Config) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    TopicCommitmentSynced,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader: reader,
		logger: logger,
		inbox:  inbox,
		store:  store,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
		ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)

		meta := kafkax.ExtractEventMeta(msg)

		fresh, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType)
		if err != nil {
			c.logger.Error("inbox record failed", "err", err)
			span.RecordError(err)
			span.End()
			continue
		}
		if !fresh {
			c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			span.End()
			continue
		}

		if err := c.handle(ctxSpan, msg); err != nil {
			c.logger.Error("commitment sync failed", "err", err, "event_id", meta.EventID)
			span.RecordError(err)
		}
		span.End()
	}
}

type syncedPayload struct {
	ActorID    string    `json:"actor_id"`
	ExternalID string    `json:"external_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Source     string    `json:"source"`
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	var p syncedPayload
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if p.ActorID == "" || !p.EndTime.After(p.StartTime) {
		return fmt.Errorf("invalid synced commitment for actor %q", p.ActorID)
	}
	source := p.Source
	if source == "" {
		source = "calendar"
	}
	commitment := model.Commitment{
		ActorID: p.ActorID,
		Window:  model.Window{Start: p.StartTime, End: p.EndTime},
		Source:  source,
	}
	if err := c.store.UpsertCommitment(ctx, commitment, p.ExternalID); err != nil {
		return fmt.Errorf("upsert commitment: %w", err)
	}
	c.logger.Info("commitment synced",
		"actor_id", p.ActorID,
		"external_id", p.ExternalID,
		"start", p.StartTime,
	)
	return nil
}
