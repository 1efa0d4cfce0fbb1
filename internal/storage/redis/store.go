package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/gorusys/indigo-proof-of-yield/internal/storage"
)

const defaultPrefix = "indigo-poy:"

// Store keeps cache blobs in Redis using SETNX so existing keys are never replaced.
type Store struct {
	client *goredis.Client
	prefix string
	owned  bool
}

var (
	_ storage.Store       = (*Store)(nil)
	_ storage.BatchPutter = (*Store)(nil)
)

// NewStore connects to the Redis instance at url and pings it.
func NewStore(ctx context.Context, url, prefix string) (*Store, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	s := NewStoreWithClient(client, prefix)
	s.owned = true
	return s, nil
}

// NewStoreWithClient wraps an existing client. Close leaves the client open.
func NewStoreWithClient(client *goredis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if s.client == nil {
		return storage.ErrClosed
	}
	if err := s.client.SetNX(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("setnx %s: %w", key, err)
	}
	return nil
}

// PutBatch sends the SETNX commands in one MULTI/EXEC round trip.
func (s *Store) PutBatch(ctx context.Context, blobs []storage.Blob) error {
	if len(blobs) == 0 {
		return nil
	}
	if s.client == nil {
		return storage.ErrClosed
	}
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, blob := range blobs {
			pipe.SetNX(ctx, s.prefix+blob.Key, blob.Value, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("setnx batch: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.client == nil {
		return nil, false, storage.ErrClosed
	}
	value, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	client := s.client
	s.client = nil
	if s.owned {
		return client.Close()
	}
	return nil
}
