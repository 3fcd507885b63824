package storage

import (
	"context"
	"embed"
	"errors"

	"github.com/himsog/himsog/libs/db"
	"github.com/himsog/himsog/services/scheduling-service/internal/lifecycle"
	"github.com/himsog/himsog/services/scheduling-service/internal/outbox"
	"github.com/jackc/pgx/v5"
)

//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations holding the SQL files.
const MigrationsDir = "migrations"

// Store implements lifecycle.Store on PostgreSQL.
type Store struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

var _ lifecycle.Store = (*Store)(nil)

func NewStore(pool *db.Pool, outboxRepo *outbox.Repository) *Store {
	return &Store{pool: pool, outbox: outboxRepo}
}

func (s *Store) ReadOnly(ctx context.Context, fn func(context.Context, lifecycle.Queries) error) error {
	return s.run(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, fn)
}

func (s *Store) ReadWrite(ctx context.Context, fn func(context.Context, lifecycle.Queries) error) error {
	return s.run(ctx, pgx.TxOptions{}, fn)
}

func (s *Store) run(ctx context.Context, opts pgx.TxOptions, fn func(context.Context, lifecycle.Queries) error) error {
	err := s.pool.InTx(ctx, opts, func(tx pgx.Tx) error {
		return fn(ctx, &queries{tx: tx, outbox: s.outbox})
	})
	if IsConflict(err) && !errors.Is(err, lifecycle.ErrOverlap) {
		return errors.Join(lifecycle.ErrOverlap, err)
	}
	return err
}

type queries struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

var _ lifecycle.Queries = (*queries)(nil)

func (q *queries) InsertEvent(ctx context.Context, evt outbox.Event) error {
	return q.outbox.Insert(ctx, q.tx, evt)
}
