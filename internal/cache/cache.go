// Package cache is the content-addressed ingestion cache. Every remote response is
// stored once under the SHA-256 of its canonical request and body, and indexed by
// the SHA-256 of the canonical request alone.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/gorusys/indigo-proof-of-yield/internal/canonical"
	"github.com/gorusys/indigo-proof-of-yield/internal/model"
	"github.com/gorusys/indigo-proof-of-yield/internal/storage"
	"github.com/gorusys/indigo-proof-of-yield/internal/telemetry"
)

var (
	ErrCacheMiss           = errors.New("cache miss in offline mode")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrCorruptEntry        = errors.New("corrupt cache entry")
)

const (
	indexPrefix   = "q/"
	contentPrefix = "c/"
)

// Fetcher retrieves the raw response body for a query from the remote service.
type Fetcher interface {
	Fetch(ctx context.Context, q model.Query) ([]byte, error)
}

type Options struct {
	Offline      bool
	MaxRetries   int
	RetryBackoff time.Duration
	FetchTimeout time.Duration
	Metrics      *telemetry.Metrics
	Now          func() time.Time
}

type Stats struct {
	Hits    int64
	Misses  int64
	Fetches int64
}

// Cache is an explicit handle over a blob store. It is safe for concurrent use.
type Cache struct {
	store   storage.Store
	fetcher Fetcher
	opts    Options
	logger  *zap.Logger
	group   singleflight.Group

	hits    atomic.Int64
	misses  atomic.Int64
	fetches atomic.Int64

	mu      sync.Mutex
	touched map[string]model.RawRecord
	closed  bool
}

// Open returns a cache handle. fetcher may be nil, in which case every miss fails
// with ErrCacheMiss.
func Open(store storage.Store, fetcher Fetcher, opts Options, logger *zap.Logger) (*Cache, error) {
	if store == nil {
		return nil, fmt.Errorf("cache store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if fetcher == nil {
		opts.Offline = true
	}
	return &Cache{
		store:   store,
		fetcher: fetcher,
		opts:    opts,
		logger:  logger,
		touched: make(map[string]model.RawRecord),
	}, nil
}

// QueryKey returns the canonical request bytes and their SHA-256 hex digest.
func QueryKey(q model.Query) (string, []byte, error) {
	data, err := canonical.Marshal(q)
	if err != nil {
		return "", nil, fmt.Errorf("canonicalize query: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), data, nil
}

// ContentHash is the SHA-256 over the canonical request, a newline and the response body.
func ContentHash(canonicalQuery, body []byte) string {
	h := sha256.New()
	h.Write(canonicalQuery)
	h.Write([]byte{'\n'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// GetOrFetch returns the record for q from the store, fetching and storing it on a miss.
func (c *Cache) GetOrFetch(ctx context.Context, q model.Query) (model.RawRecord, error) {
	if c.isClosed() {
		return model.RawRecord{}, storage.ErrClosed
	}
	key, canonicalQuery, err := QueryKey(q)
	if err != nil {
		return model.RawRecord{}, err
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		return c.load(ctx, q, key, canonicalQuery)
	})
	if err != nil {
		return model.RawRecord{}, err
	}
	rec := v.(model.RawRecord)
	if shared {
		c.logger.Debug("shared in-flight query", zap.String("query_key", key))
	}
	c.remember(rec)
	return rec, nil
}

func (c *Cache) load(ctx context.Context, q model.Query, key string, canonicalQuery []byte) (model.RawRecord, error) {
	hash, ok, err := c.store.Get(ctx, indexPrefix+key)
	if err != nil {
		return model.RawRecord{}, fmt.Errorf("read index %s: %w", key, err)
	}
	if ok {
		rec, found, err := c.Lookup(ctx, string(hash))
		if err != nil {
			return model.RawRecord{}, err
		}
		if found {
			c.hits.Add(1)
			c.opts.Metrics.CacheHit()
			c.logger.Debug("cache hit", zap.String("endpoint", q.Endpoint), zap.String("query_key", key))
			return rec, nil
		}
		c.logger.Warn("index entry without content", zap.String("query_key", key), zap.String("hash", string(hash)))
	}

	c.misses.Add(1)
	c.opts.Metrics.CacheMiss()
	if c.opts.Offline {
		return model.RawRecord{}, fmt.Errorf("%w: %s query %s", ErrCacheMiss, q.Endpoint, key)
	}

	body, err := c.fetch(ctx, q, key)
	if err != nil {
		return model.RawRecord{}, err
	}

	entry := model.CacheEntry{
		Hash:      ContentHash(canonicalQuery, body),
		Endpoint:  q.Endpoint,
		Query:     string(canonicalQuery),
		Body:      string(body),
		FetchedAt: c.opts.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return model.RawRecord{}, fmt.Errorf("encode cache entry: %w", err)
	}
	// The entry goes first so an index key never points at missing content.
	if err := storage.PutAll(ctx, c.store,
		storage.Blob{Key: contentPrefix + entry.Hash, Value: data},
		storage.Blob{Key: indexPrefix + key, Value: []byte(entry.Hash)},
	); err != nil {
		return model.RawRecord{}, fmt.Errorf("store entry %s for %s: %w", entry.Hash, key, err)
	}

	// A concurrent writer in another process may have indexed a different body first.
	stored, ok, err := c.store.Get(ctx, indexPrefix+key)
	if err == nil && ok && string(stored) != entry.Hash {
		if rec, found, lerr := c.Lookup(ctx, string(stored)); lerr == nil && found {
			return rec, nil
		}
	}

	c.fetches.Add(1)
	c.opts.Metrics.CacheFetch()
	c.logger.Debug("cached response",
		zap.String("endpoint", q.Endpoint),
		zap.String("query_key", key),
		zap.String("hash", entry.Hash),
		zap.Int("bytes", len(body)),
	)
	return entry.Record(), nil
}

func (c *Cache) fetch(ctx context.Context, q model.Query, key string) ([]byte, error) {
	var body []byte
	attempt := 0
	err := withRetry(ctx, c.opts.MaxRetries, c.opts.RetryBackoff, func(ctx context.Context) error {
		attempt++
		attemptCtx := ctx
		if c.opts.FetchTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, c.opts.FetchTimeout)
			defer cancel()
		}

		data, err := c.fetcher.Fetch(attemptCtx, q)
		if err == nil {
			err = validateBody(data)
		}
		if err != nil {
			c.logger.Warn("fetch failed",
				zap.String("endpoint", q.Endpoint),
				zap.String("query_key", key),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		body = data
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrUpstreamUnavailable, q.Endpoint, attempt, err)
	}
	return body, nil
}

func validateBody(body []byte) error {
	if !utf8.Valid(body) {
		return fmt.Errorf("response is not valid UTF-8")
	}
	if !json.Valid(body) {
		return fmt.Errorf("response is not valid JSON")
	}
	return nil
}

// Lookup reads a record by content hash without touching the network. The stored
// bytes are re-hashed; a mismatch yields ErrCorruptEntry.
func (c *Cache) Lookup(ctx context.Context, hash string) (model.RawRecord, bool, error) {
	data, ok, err := c.store.Get(ctx, contentPrefix+hash)
	if err != nil {
		return model.RawRecord{}, false, fmt.Errorf("read entry %s: %w", hash, err)
	}
	if !ok {
		return model.RawRecord{}, false, nil
	}
	var entry model.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return model.RawRecord{}, false, fmt.Errorf("%w: %s: %v", ErrCorruptEntry, hash, err)
	}
	if entry.Hash != hash || ContentHash([]byte(entry.Query), []byte(entry.Body)) != hash {
		return model.RawRecord{}, false, fmt.Errorf("%w: %s: content hash mismatch", ErrCorruptEntry, hash)
	}
	return entry.Record(), true, nil
}

// Replay loads the given content hashes and marks them as consulted.
func (c *Cache) Replay(ctx context.Context, hashes []string) ([]model.RawRecord, error) {
	out := make([]model.RawRecord, 0, len(hashes))
	for _, hash := range hashes {
		rec, ok, err := c.Lookup(ctx, hash)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: record %s", ErrCacheMiss, hash)
		}
		c.remember(rec)
		out = append(out, rec)
	}
	model.SortRecords(out)
	return out, nil
}

func (c *Cache) remember(rec model.RawRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touched[rec.Hash] = rec
}

// Records returns every record consulted through this handle, sorted by hash.
func (c *Cache) Records() []model.RawRecord {
	c.mu.Lock()
	out := make([]model.RawRecord, 0, len(c.touched))
	for _, rec := range c.touched {
		out = append(out, rec)
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out
}

func (c *Cache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Fetches: c.fetches.Load(),
	}
}

func (c *Cache) Offline() bool {
	return c.opts.Offline
}

func (c *Cache) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close closes the underlying store.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.store.Close()
}
