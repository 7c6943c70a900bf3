// Package migrations contains dispatchd's audit-store migration
// definitions, one file per schema change, following plantd's
// logger/db/migrations naming and per-migration-struct convention.
package migrations

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CreateMsgTables creates the three tables C10 (msg uploader) writes to:
// msg (one row per Request/Response persisted), file (one row per
// uploaded File's metadata), and msg2file (the link table keyed by
// msg_uuid, file_uuid, and flow), grounded on
// osom_api/context/db/mixins/{msg,file,msg2file}.py (SPEC_FULL.md §3.1).
type CreateMsgTables struct {
	Pool *pgxpool.Pool
}

// Up creates the tables if they do not already exist.
func (m *CreateMsgTables) Up(ctx context.Context) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS msg (
  msg_uuid   TEXT PRIMARY KEY,
  provider   TEXT NOT NULL,
  channel_id TEXT NOT NULL,
  content    TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS file (
  file_uuid    TEXT PRIMARY KEY,
  provider     TEXT NOT NULL,
  native_id    TEXT NOT NULL,
  name         TEXT NOT NULL,
  content_type TEXT NOT NULL,
  storage      TEXT NOT NULL,
  width        INTEGER NOT NULL DEFAULT 0,
  height       INTEGER NOT NULL DEFAULT 0,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS msg2file (
  msg_uuid  TEXT NOT NULL REFERENCES msg(msg_uuid),
  file_uuid TEXT NOT NULL REFERENCES file(file_uuid),
  flow      TEXT NOT NULL,
  PRIMARY KEY (msg_uuid, file_uuid, flow)
);
`
	_, err := m.Pool.Exec(ctx, stmt)
	return err
}

// Down drops the tables in dependency order.
func (m *CreateMsgTables) Down(ctx context.Context) error {
	const stmt = `
DROP TABLE IF EXISTS msg2file;
DROP TABLE IF EXISTS file;
DROP TABLE IF EXISTS msg;
`
	_, err := m.Pool.Exec(ctx, stmt)
	return err
}
