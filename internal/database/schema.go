package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kindredhq/backend/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id             UUID PRIMARY KEY,
	email          TEXT UNIQUE NOT NULL,
	password_hash  TEXT NOT NULL,
	display_name   TEXT NOT NULL,
	role           TEXT NOT NULL DEFAULT 'participant',
	balance_cents  BIGINT NOT NULL DEFAULT 0,
	is_system      BOOLEAN NOT NULL DEFAULT FALSE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS participants (
	account_id   UUID PRIMARY KEY REFERENCES accounts(id),
	admitted_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transactions (
	id                 BIGSERIAL PRIMARY KEY,
	tx_type            TEXT NOT NULL,
	task_family        TEXT,
	task_id            BIGINT,
	debit_account_id   UUID NOT NULL REFERENCES accounts(id),
	credit_account_id  UUID NOT NULL REFERENCES accounts(id),
	amount_cents       BIGINT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS transactions_task_idx ON transactions (task_family, task_id);

CREATE TABLE IF NOT EXISTS exchange_tasks (
	id                 BIGSERIAL PRIMARY KEY,
	creator            UUID NOT NULL REFERENCES accounts(id),
	partner            UUID REFERENCES accounts(id),
	city               TEXT NOT NULL,
	delivery_info      TEXT NOT NULL,
	wish_list          TEXT[] NOT NULL,
	stake_cents        BIGINT NOT NULL DEFAULT 0,
	status             TEXT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	pending_expiry     TIMESTAMPTZ NOT NULL,
	delivery_deadline  TIMESTAMPTZ,
	confirm_deadline   TIMESTAMPTZ,
	creator_delivered  BOOLEAN NOT NULL DEFAULT FALSE,
	partner_delivered  BOOLEAN NOT NULL DEFAULT FALSE,
	creator_confirmed  BOOLEAN NOT NULL DEFAULT FALSE,
	partner_confirmed  BOOLEAN NOT NULL DEFAULT FALSE,
	tracking_refs      TEXT[]
);
CREATE INDEX IF NOT EXISTS exchange_tasks_open_idx ON exchange_tasks (city, status);

CREATE TABLE IF NOT EXISTS help_tasks (
	id           BIGSERIAL PRIMARY KEY,
	requester    UUID NOT NULL REFERENCES accounts(id),
	helper       UUID REFERENCES accounts(id),
	task_type    TEXT NOT NULL,
	details      TEXT NOT NULL,
	stake_cents  BIGINT NOT NULL DEFAULT 0,
	status       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	expiry       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS help_tasks_open_idx ON help_tasks (status);

CREATE TABLE IF NOT EXISTS task_events (
	id          UUID PRIMARY KEY,
	family      TEXT NOT NULL,
	task_id     BIGINT NOT NULL,
	event_type  TEXT NOT NULL,
	actor       UUID NOT NULL,
	payload     JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS task_events_task_idx ON task_events (family, task_id, created_at);
`

// Migrate applies the schema and seeds the system accounts (escrow custody,
// platform fees, mint source). Idempotent; runs at every boot.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return err
	}
	system := []struct {
		id   any
		name string
	}{
		{models.EscrowAccountID, "escrow"},
		{models.PlatformAccountID, "platform"},
		{models.MintAccountID, "mint"},
	}
	for _, acc := range system {
		if _, err := pool.Exec(ctx, `
			INSERT INTO accounts (id, email, password_hash, display_name, role, is_system)
			VALUES ($1, $2, '', $3, 'participant', TRUE)
			ON CONFLICT (id) DO NOTHING
		`, acc.id, acc.name+"@system.local", acc.name); err != nil {
			return err
		}
	}
	return nil
}
