package storage

import (
	"context"

	"github.com/schedkit/schedkit/libs/db"
)

// The exclusion constraint on bookings is the storage backstop for the
// engine's core invariant: no two confirmed bookings may occupy overlapping
// windows for the same actor. Buffered adjacency is enforced above it by the
// committer's locked re-check.
const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS btree_gist;

CREATE TABLE IF NOT EXISTS actors (
	id TEXT PRIMARY KEY,
	timezone TEXT NOT NULL DEFAULT 'UTC',
	ics_feed_url TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS actor_working_hours (
	actor_id TEXT NOT NULL REFERENCES actors(id) ON DELETE CASCADE,
	weekday SMALLINT NOT NULL CHECK (weekday BETWEEN 0 AND 6),
	enabled BOOLEAN NOT NULL DEFAULT false,
	start_minute INT NOT NULL DEFAULT 0,
	end_minute INT NOT NULL DEFAULT 0,
	PRIMARY KEY (actor_id, weekday)
);

CREATE TABLE IF NOT EXISTS actor_blocks (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	actor_id TEXT NOT NULL REFERENCES actors(id) ON DELETE CASCADE,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ NOT NULL,
	CHECK (end_time > start_time)
);

CREATE TABLE IF NOT EXISTS links (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL REFERENCES actors(id),
	strategy TEXT NOT NULL,
	fixed_actor_id TEXT NOT NULL DEFAULT '',
	duration_minutes INT NOT NULL,
	buffer_before_minutes INT NOT NULL DEFAULT 0,
	buffer_after_minutes INT NOT NULL DEFAULT 0,
	lead_time_minutes INT NOT NULL DEFAULT 0,
	max_per_day INT NOT NULL DEFAULT 0,
	display_timezone TEXT NOT NULL DEFAULT 'UTC',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS link_pool_members (
	link_id TEXT NOT NULL REFERENCES links(id) ON DELETE CASCADE,
	actor_id TEXT NOT NULL REFERENCES actors(id),
	position INT NOT NULL,
	PRIMARY KEY (link_id, actor_id)
);

CREATE TABLE IF NOT EXISTS commitments (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	actor_id TEXT NOT NULL REFERENCES actors(id) ON DELETE CASCADE,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ NOT NULL,
	source TEXT NOT NULL DEFAULT 'calendar',
	external_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (end_time > start_time)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_commitments_external
	ON commitments(actor_id, external_id) WHERE external_id <> '';
CREATE INDEX IF NOT EXISTS idx_commitments_actor_range
	ON commitments(actor_id, start_time, end_time);

CREATE TABLE IF NOT EXISTS bookings (
	id UUID PRIMARY KEY,
	link_id TEXT NOT NULL REFERENCES links(id),
	actor_id TEXT NOT NULL REFERENCES actors(id),
	requester_name TEXT NOT NULL DEFAULT '',
	requester_email TEXT NOT NULL DEFAULT '',
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL DEFAULT 'confirmed',
	cancelled_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (end_time > start_time),
	EXCLUDE USING gist (
		actor_id WITH =,
		tstzrange(start_time, end_time) WITH &&
	) WHERE (status = 'confirmed')
);

CREATE INDEX IF NOT EXISTS idx_bookings_link ON bookings(link_id, start_time DESC);
CREATE INDEX IF NOT EXISTS idx_bookings_actor_day ON bookings(actor_id, start_time) WHERE status = 'confirmed';

CREATE TABLE IF NOT EXISTS outbox_events (
	id BIGSERIAL PRIMARY KEY,
	event_id UUID NOT NULL DEFAULT gen_random_uuid(),
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload JSONB NOT NULL,
	traceparent TEXT NOT NULL DEFAULT '',
	tracestate TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_outbox_unpublished ON outbox_events(id) WHERE published_at IS NULL;

CREATE TABLE IF NOT EXISTS inbox_events (
	event_id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	received_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS booking_idempotency_keys (
	link_id TEXT NOT NULL,
	idempotency_key TEXT NOT NULL,
	booking_id TEXT NOT NULL DEFAULT '',
	status_code INT NOT NULL DEFAULT 0,
	response_payload JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (link_id, idempotency_key)
);
`

// Migrate applies the schema. Statements are idempotent so repeated startup
// runs are safe.
func Migrate(ctx context.Context, pool *db.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}
