package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is the engine's full DDL. Applied idempotently at startup; a real
// migration tool can take over once the schema starts evolving.
//
// The partial unique index on admin_requests enforces at-most-one-pending
// request per user at the ledger layer, closing the concurrent-filing race.
const schema = `
CREATE TABLE IF NOT EXISTS identities (
	id              UUID PRIMARY KEY,
	email           TEXT NOT NULL UNIQUE,
	password_hash   TEXT NOT NULL,
	email_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS role_records (
	id             UUID PRIMARY KEY,
	email          TEXT NOT NULL,
	first_name     TEXT,
	last_name      TEXT,
	is_admin       BOOLEAN NOT NULL DEFAULT FALSE,
	is_site_master BOOLEAN NOT NULL DEFAULT FALSE,
	group_id       UUID,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS admin_requests (
	id           UUID PRIMARY KEY,
	user_id      UUID NOT NULL,
	reason       TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	requested_at TIMESTAMPTZ NOT NULL,
	responded_at TIMESTAMPTZ,
	responded_by UUID
);

CREATE UNIQUE INDEX IF NOT EXISTS admin_requests_one_pending
	ON admin_requests (user_id) WHERE status = 'pending';

CREATE INDEX IF NOT EXISTS admin_requests_by_user
	ON admin_requests (user_id, requested_at DESC);

CREATE TABLE IF NOT EXISTS group_join_requests (
	id           UUID PRIMARY KEY,
	user_id      UUID NOT NULL,
	group_id     UUID NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	requested_at TIMESTAMPTZ NOT NULL,
	responded_at TIMESTAMPTZ,
	responded_by UUID
);

CREATE UNIQUE INDEX IF NOT EXISTS group_join_requests_one_pending
	ON group_join_requests (user_id) WHERE status = 'pending';

CREATE INDEX IF NOT EXISTS group_join_requests_by_user
	ON group_join_requests (user_id, requested_at DESC);

CREATE TABLE IF NOT EXISTS audit_events (
	id          UUID PRIMARY KEY,
	action      TEXT NOT NULL,
	user_id     UUID NOT NULL,
	actor_id    UUID,
	reason      TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS audit_events_by_user
	ON audit_events (user_id, occurred_at);
`

// Migrate applies the schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
