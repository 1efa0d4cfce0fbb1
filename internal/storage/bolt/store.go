package bolt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/gorusys/indigo-proof-of-yield/internal/storage"
)

// DefaultFile is the database file name used inside a cache directory.
const DefaultFile = "cache.db"

var bucket = []byte("blobs")

// Store is the embedded single-file cache backend.
type Store struct {
	mu sync.RWMutex
	db *bbolt.DB
}

var (
	_ storage.Store       = (*Store)(nil)
	_ storage.BatchPutter = (*Store)(nil)
)

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Put(_ context.Context, key string, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return storage.ErrClosed
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b.Get([]byte(key)) != nil {
			return nil
		}
		return b.Put([]byte(key), value)
	})
}

// PutBatch writes blobs in one transaction.
func (s *Store) PutBatch(_ context.Context, blobs []storage.Blob) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return storage.ErrClosed
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		for _, blob := range blobs {
			if b.Get([]byte(blob.Key)) != nil {
				continue
			}
			if err := b.Put([]byte(blob.Key), blob.Value); err != nil {
				return fmt.Errorf("put %s: %w", blob.Key, err)
			}
		}
		return nil
	})
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, false, storage.ErrClosed
	}
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(key))
		if v != nil {
			out = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return out, out != nil, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
