package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/schedkit/schedkit/internal/booking"
	"github.com/schedkit/schedkit/internal/hours"
	"github.com/schedkit/schedkit/internal/model"
	"github.com/schedkit/schedkit/libs/db"
)

// PostgresStore implements booking.Store plus link lookup on a pgx pool.
type PostgresStore struct {
	pool *db.Pool
}

func NewPostgresStore(pool *db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Actor(ctx context.Context, id string) (model.Actor, error) {
	var a model.Actor
	err := s.pool.QueryRow(ctx, `
		SELECT id, timezone, ics_feed_url
		FROM actors
		WHERE id = $1
	`, id).Scan(&a.ID, &a.Timezone, &a.ICSFeedURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Actor{}, fmt.Errorf("actor %s: %w", id, booking.ErrNotFound)
		}
		return model.Actor{}, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT weekday, enabled, start_minute, end_minute
		FROM actor_working_hours
		WHERE actor_id = $1
		ORDER BY weekday
	`, id)
	if err != nil {
		return model.Actor{}, err
	}
	defer rows.Close()

	var entries [7]hours.DayEntry
	for rows.Next() {
		var weekday, startMin, endMin int
		var enabled bool
		if err := rows.Scan(&weekday, &enabled, &startMin, &endMin); err != nil {
			return model.Actor{}, err
		}
		if weekday < 0 || weekday > 6 {
			continue
		}
		entries[weekday] = hours.DayEntry{
			Enabled: enabled,
			Start:   clockString(startMin),
			End:     clockString(endMin),
		}
	}
	if rows.Err() != nil {
		return model.Actor{}, rows.Err()
	}
	a.Hours, err = hours.New(entries)
	if err != nil {
		return model.Actor{}, fmt.Errorf("actor %s: %w", id, err)
	}

	blockRows, err := s.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM actor_blocks
		WHERE actor_id = $1
		ORDER BY start_time
	`, id)
	if err != nil {
		return model.Actor{}, err
	}
	defer blockRows.Close()
	for blockRows.Next() {
		var w model.Window
		if err := blockRows.Scan(&w.Start, &w.End); err != nil {
			return model.Actor{}, err
		}
		a.Blocks = append(a.Blocks, w)
	}
	if blockRows.Err() != nil {
		return model.Actor{}, blockRows.Err()
	}
	return a, nil
}

func (s *PostgresStore) Link(ctx context.Context, id string) (model.LinkConfig, error) {
	var l model.LinkConfig
	var strategy string
	var durationMins, bufBeforeMins, bufAfterMins, leadMins int
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, strategy, fixed_actor_id,
			duration_minutes, buffer_before_minutes, buffer_after_minutes,
			lead_time_minutes, max_per_day, display_timezone
		FROM links
		WHERE id = $1
	`, id).Scan(&l.ID, &l.OwnerID, &strategy, &l.FixedID,
		&durationMins, &bufBeforeMins, &bufAfterMins,
		&leadMins, &l.Spec.MaxPerDay, &l.Spec.Timezone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.LinkConfig{}, fmt.Errorf("link %s: %w", id, booking.ErrNotFound)
		}
		return model.LinkConfig{}, err
	}

	kind, err := model.ParseStrategyKind(strategy)
	if err != nil {
		return model.LinkConfig{}, fmt.Errorf("link %s: %w", id, err)
	}
	l.Pool.Strategy = kind
	l.Spec.Duration = time.Duration(durationMins) * time.Minute
	l.Spec.BufferBefore = time.Duration(bufBeforeMins) * time.Minute
	l.Spec.BufferAfter = time.Duration(bufAfterMins) * time.Minute
	l.Spec.LeadTime = time.Duration(leadMins) * time.Minute

	rows, err := s.pool.Query(ctx, `
		SELECT actor_id
		FROM link_pool_members
		WHERE link_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return model.LinkConfig{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var actorID string
		if err := rows.Scan(&actorID); err != nil {
			return model.LinkConfig{}, err
		}
		l.Pool.ActorIDs = append(l.Pool.ActorIDs, actorID)
	}
	if rows.Err() != nil {
		return model.LinkConfig{}, rows.Err()
	}

	if err := l.Validate(); err != nil {
		return model.LinkConfig{}, err
	}
	return l, nil
}

// Commitments unions the commitments table with confirmed bookings so a
// committed booking is busy for the very next query.
func (s *PostgresStore) Commitments(ctx context.Context, actorID string, from, to time.Time) ([]model.Commitment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT start_time, end_time, source FROM commitments
		WHERE actor_id = $1 AND start_time < $3 AND end_time > $2
		UNION ALL
		SELECT start_time, end_time, 'booking' FROM bookings
		WHERE actor_id = $1 AND status = 'confirmed' AND start_time < $3 AND end_time > $2
		ORDER BY start_time
	`, actorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Commitment
	for rows.Next() {
		c := model.Commitment{ActorID: actorID}
		if err := rows.Scan(&c.Window.Start, &c.Window.End, &c.Source); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (s *PostgresStore) ConfirmedCountOn(ctx context.Context, actorID string, dayStart, dayEnd time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM bookings
		WHERE actor_id = $1 AND status = 'confirmed' AND start_time >= $2 AND start_time < $3
	`, actorID, dayStart, dayEnd).Scan(&n)
	return n, err
}

func (s *PostgresStore) ConfirmedCount(ctx context.Context, linkID, actorID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM bookings
		WHERE link_id = $1 AND actor_id = $2 AND status = 'confirmed'
	`, linkID, actorID).Scan(&n)
	return n, err
}

func (s *PostgresStore) CreateBooking(ctx context.Context, b model.Booking) (model.Booking, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bookings
			(id, link_id, actor_id, requester_name, requester_email, start_time, end_time, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, b.ID, b.LinkID, b.ActorID, b.Requester.Name, b.Requester.Email,
		b.Window.Start, b.Window.End, string(b.Status), b.CreatedAt)
	if err != nil {
		if isExclusionViolation(err) {
			return model.Booking{}, fmt.Errorf("%w: %v", booking.ErrWindowTaken, err)
		}
		return model.Booking{}, err
	}
	return b, nil
}

func (s *PostgresStore) Booking(ctx context.Context, id string) (model.Booking, error) {
	var b model.Booking
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, link_id, actor_id, requester_name, requester_email,
			start_time, end_time, status, cancelled_at, created_at
		FROM bookings
		WHERE id = $1
	`, id).Scan(&b.ID, &b.LinkID, &b.ActorID, &b.Requester.Name, &b.Requester.Email,
		&b.Window.Start, &b.Window.End, &status, &b.CancelledAt, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Booking{}, fmt.Errorf("booking %s: %w", id, booking.ErrNotFound)
		}
		return model.Booking{}, err
	}
	b.Status = model.BookingStatus(status)
	return b, nil
}

func (s *PostgresStore) UpdateBookingStatus(ctx context.Context, id string, status model.BookingStatus, at time.Time) (model.Booking, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE bookings
		SET status = $2, cancelled_at = $3
		WHERE id = $1
	`, id, string(status), at)
	if err != nil {
		return model.Booking{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.Booking{}, fmt.Errorf("booking %s: %w", id, booking.ErrNotFound)
	}
	return s.Booking(ctx, id)
}

func (s *PostgresStore) ListBookings(ctx context.Context, linkID string, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, link_id, actor_id, requester_name, requester_email,
			start_time, end_time, status, cancelled_at, created_at
		FROM bookings
		WHERE link_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, linkID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		var b model.Booking
		var status string
		if err := rows.Scan(&b.ID, &b.LinkID, &b.ActorID, &b.Requester.Name, &b.Requester.Email,
			&b.Window.Start, &b.Window.End, &status, &b.CancelledAt, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Status = model.BookingStatus(status)
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ListActorBookings returns an actor's bookings ordered by start time,
// feeding their ICS export.
func (s *PostgresStore) ListActorBookings(ctx context.Context, actorID string, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, link_id, actor_id, requester_name, requester_email,
			start_time, end_time, status, cancelled_at, created_at
		FROM bookings
		WHERE actor_id = $1
		ORDER BY start_time
		LIMIT $2
	`, actorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		var b model.Booking
		var status string
		if err := rows.Scan(&b.ID, &b.LinkID, &b.ActorID, &b.Requester.Name, &b.Requester.Email,
			&b.Window.Start, &b.Window.End, &status, &b.CancelledAt, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Status = model.BookingStatus(status)
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// UpsertCommitment records an externally sourced busy interval, keyed by the
// provider's event ID so re-delivered sync events overwrite instead of
// duplicating.
func (s *PostgresStore) UpsertCommitment(ctx context.Context, c model.Commitment, externalID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO commitments (actor_id, start_time, end_time, source, external_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (actor_id, external_id) WHERE external_id <> ''
		DO UPDATE SET start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			source = EXCLUDED.source
	`, c.ActorID, c.Window.Start, c.Window.End, c.Source, externalID)
	return err
}

type IdempotencyRecord struct {
	BookingID       string
	StatusCode      int
	ResponsePayload []byte
}

// ClaimIdempotencyKey registers the key if new and returns any finalized
// prior response. finalized is true when a previous request with this key
// completed; the handler replays its stored response.
func (s *PostgresStore) ClaimIdempotencyKey(ctx context.Context, linkID, key string) (IdempotencyRecord, bool, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (link_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (link_id, idempotency_key) DO NOTHING
	`, linkID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	var rec IdempotencyRecord
	err = s.pool.QueryRow(ctx, `
		SELECT COALESCE(booking_id, ''), COALESCE(status_code, 0), COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE link_id = $1 AND idempotency_key = $2
	`, linkID, key).Scan(&rec.BookingID, &rec.StatusCode, (*textBytes)(&rec.ResponsePayload))
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, rec.StatusCode > 0, nil
}

func (s *PostgresStore) FinalizeIdempotencyKey(ctx context.Context, linkID, key, bookingID string, statusCode int, response []byte) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET booking_id = $3, status_code = $4, response_payload = $5, updated_at = now()
		WHERE link_id = $1 AND idempotency_key = $2
	`, linkID, key, bookingID, statusCode, response)
	return err
}

func clockString(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

// textBytes scans a text column into a byte slice, mapping empty to nil.
type textBytes []byte

func (t *textBytes) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = nil
	case string:
		if v == "" {
			*t = nil
		} else {
			*t = []byte(v)
		}
	case []byte:
		if len(v) == 0 {
			*t = nil
		} else {
			*t = append([]byte(nil), v...)
		}
	}
	return nil
}
