package storage

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("storage closed")

// Store is an append-only key/value blob store. Put never overwrites: inserting an
// existing key is a no-op.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Close() error
}

// Blob is one key/value pair of a batched write.
type Blob struct {
	Key   string
	Value []byte
}

// BatchPutter is implemented by stores that can write several blobs in one
// round trip. Blobs are applied in slice order.
type BatchPutter interface {
	PutBatch(ctx context.Context, blobs []Blob) error
}

// PutAll writes blobs in order, in one batch when the store supports it.
func PutAll(ctx context.Context, s Store, blobs ...Blob) error {
	if b, ok := s.(BatchPutter); ok {
		return b.PutBatch(ctx, blobs)
	}
	for _, blob := range blobs {
		if err := s.Put(ctx, blob.Key, blob.Value); err != nil {
			return err
		}
	}
	return nil
}

// MemoryStore keeps blobs in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.data[key]; ok {
		return nil
	}
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	value, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
