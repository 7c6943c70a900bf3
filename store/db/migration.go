// Package db is dispatchd's audit-persistence layer (C10's database half):
// a pgx connection pool plus the migration-interface convention kept from
// plantd's logger/db package, retargeted from database/sql at a
// TimescaleDB metrics table to pgx/v5 at the msg/file/msg2file schema
// spec.md §4.10 and SPEC_FULL.md §3.1 describe.
package db

import "context"

// Migration defines one reversible schema change, the same shape as
// plantd's logger/db.Migration, generalized to pgx's context-first
// execution style.
type Migration interface {
	Up(ctx context.Context) error
	Down(ctx context.Context) error
}
