package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gorusys/indigo-proof-of-yield/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_blobs (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store provides a shared Postgres-backed cache store.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ storage.Store       = (*Store)(nil)
	_ storage.BatchPutter = (*Store)(nil)
)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	s := &Store{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the blob table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create cache schema: %w", err)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if s.pool == nil {
		return storage.ErrClosed
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cache_blobs (key, value, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO NOTHING
	`, key, value)
	if err != nil {
		return fmt.Errorf("insert blob %s: %w", key, err)
	}
	return nil
}

// PutBatch inserts several blobs in one round trip, in order; existing keys are
// left untouched.
func (s *Store) PutBatch(ctx context.Context, blobs []storage.Blob) error {
	if len(blobs) == 0 {
		return nil
	}
	if s.pool == nil {
		return storage.ErrClosed
	}
	batch := &pgx.Batch{}
	for _, blob := range blobs {
		batch.Queue(`
			INSERT INTO cache_blobs (key, value, created_at)
			VALUES ($1, $2, now())
			ON CONFLICT (key) DO NOTHING
		`, blob.Key, blob.Value)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for _, blob := range blobs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert blob %s: %w", blob.Key, err)
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.pool == nil {
		return nil, false, storage.ErrClosed
	}
	var value []byte
	row := s.pool.QueryRow(ctx, `SELECT value FROM cache_blobs WHERE key=$1`, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("select blob %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	return nil
}
