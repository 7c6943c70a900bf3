package db

import (
	"context"

	"github.com/geoffjay/dispatchd/core/config"
	"github.com/geoffjay/dispatchd/core/msg"
	"github.com/geoffjay/dispatchd/store/db/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Flow records which side of a request/response exchange a linked file
// belongs to, grounded on osom_api/context/db/mixins/msg2file.py's Flow
// enum (spec.md §4.10).
type Flow string

// The two flows msg2file rows may carry.
const (
	FlowRequest  Flow = "request"
	FlowResponse Flow = "response"
)

// Store is dispatchd's audit-persistence handle: a pgx connection pool
// plus the msg/file/msg2file writers C10 (store/upload) calls. It is one
// of the two handles a node's base context (C9) owns for its process
// lifetime, alongside the blob store.
type Store struct {
	cfg  config.DBConfig
	pool *pgxpool.Pool
}

// New builds a Store bound to cfg. Open must be called before use.
func New(cfg config.DBConfig) *Store {
	return &Store{cfg: cfg}
}

// Open connects the pool and applies pending migrations.
func (s *Store) Open(ctx context.Context) error {
	pool, err := pgxpool.New(ctx, s.cfg.URL)
	if err != nil {
		return err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return err
	}
	s.pool = pool

	migration := &migrations.CreateMsgTables{Pool: pool}
	if err := migration.Up(ctx); err != nil {
		pool.Close()
		return err
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close(ctx context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// InsertMsg records one persisted Request/Response's identity, the first
// step of C10's "insert file metadata" contract applied to the message
// itself rather than its attachments.
func (s *Store) InsertMsg(ctx context.Context, msgUUID, provider, channelID, content string) error {
	const stmt = `
INSERT INTO msg (msg_uuid, provider, channel_id, content)
VALUES ($1, $2, $3, $4)
ON CONFLICT (msg_uuid) DO NOTHING`
	_, err := s.pool.Exec(ctx, stmt, msgUUID, provider, channelID, content)
	return err
}

// InsertFile records one uploaded File's metadata, called after its bytes
// have already reached the blob store (spec.md §4.10 step 2).
func (s *Store) InsertFile(ctx context.Context, f msg.File) error {
	const stmt = `
INSERT INTO file (file_uuid, provider, native_id, name, content_type, storage, width, height)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (file_uuid) DO NOTHING`
	_, err := s.pool.Exec(ctx, stmt,
		f.UUID, f.Provider, f.NativeID, f.Name, f.MimeType, string(f.Storage), f.Width, f.Height)
	return err
}

// InsertLink binds a msgUUID to a fileUUID for a given flow (spec.md
// §4.10 step 3).
func (s *Store) InsertLink(ctx context.Context, msgUUID, fileUUID string, flow Flow) error {
	const stmt = `
INSERT INTO msg2file (msg_uuid, file_uuid, flow)
VALUES ($1, $2, $3)
ON CONFLICT (msg_uuid, file_uuid, flow) DO NOTHING`
	_, err := s.pool.Exec(ctx, stmt, msgUUID, fileUUID, string(flow))
	return err
}
