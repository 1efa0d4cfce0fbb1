package main

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/gorusys/indigo-proof-of-yield/internal/cache"
	"github.com/gorusys/indigo-proof-of-yield/internal/chain"
	"github.com/gorusys/indigo-proof-of-yield/internal/config"
	"github.com/gorusys/indigo-proof-of-yield/internal/ingest"
	"github.com/gorusys/indigo-proof-of-yield/internal/model"
	"github.com/gorusys/indigo-proof-of-yield/internal/pipeline"
	"github.com/gorusys/indigo-proof-of-yield/internal/storage"
	"github.com/gorusys/indigo-proof-of-yield/internal/storage/bolt"
	"github.com/gorusys/indigo-proof-of-yield/internal/storage/postgres"
	"github.com/gorusys/indigo-proof-of-yield/internal/storage/redis"
	"github.com/gorusys/indigo-proof-of-yield/internal/telemetry"
)

// session wires the cache, the remote client and telemetry for one command.
type session struct {
	cfg     config.Config
	cache   *cache.Cache
	client  *chain.Client
	metrics *telemetry.Metrics
	logger  *zap.Logger
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.CacheBackend {
	case config.BackendBolt:
		return bolt.Open(filepath.Join(cfg.CacheDir, "cache.db"))
	case config.BackendPostgres:
		return postgres.NewStore(ctx, cfg.PGDSN)
	case config.BackendRedis:
		return redis.NewStore(ctx, cfg.RedisURL, cfg.RedisPrefix)
	case config.BackendMemory:
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

func openSession(ctx context.Context, cfg config.Config, logger *zap.Logger) (*session, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s cache: %w", cfg.CacheBackend, err)
	}
	metrics := telemetry.New()

	var fetcher cache.Fetcher
	var client *chain.Client
	if !cfg.Offline {
		client, err = chain.NewClient(chain.Config{
			Endpoint:       cfg.Endpoint,
			Token:          cfg.Token,
			RequestsPerSec: cfg.RateLimit,
			Burst:          cfg.RateBurst,
			HTTPTimeout:    cfg.HTTPTimeout,
			UserAgent:      "indigo-poy/" + pipeline.ToolVersion,
		}, metrics, logger.Named("chain"))
		if err != nil {
			store.Close()
			return nil, err
		}
		fetcher = client
	}

	c, err := cache.Open(store, fetcher, cache.Options{
		Offline:      cfg.Offline,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		FetchTimeout: cfg.FetchTimeout,
		Metrics:      metrics,
	}, logger.Named("cache"))
	if err != nil {
		store.Close()
		return nil, err
	}

	logger.Info("cache opened",
		zap.String("backend", cfg.CacheBackend),
		zap.Bool("offline", c.Offline()),
	)
	return &session{cfg: cfg, cache: c, client: client, metrics: metrics, logger: logger}, nil
}

func (s *session) requests() int64 {
	if s.client == nil {
		return 0
	}
	return s.client.Requests()
}

// ingest pulls the scope's records through the cache.
func (s *session) ingest(ctx context.Context, scope model.Scope) (ingest.Result, error) {
	res, err := ingest.NewRunner(ingest.RunConfig{
		Scope:       scope,
		Network:     model.Network(s.cfg.Protocol.Network),
		Workers:     s.cfg.Workers,
		PageLimit:   s.cfg.PageLimit,
		TxBatchSize: s.cfg.TxBatchSize,
	}, s.cache, s.metrics, s.logger.Named("ingest")).Run(ctx)
	if err != nil {
		return ingest.Result{}, describeMiss(err)
	}
	return res, nil
}

func (s *session) writeMetrics() error {
	if s.cfg.MetricsFile == "" {
		return nil
	}
	if err := s.metrics.WriteFile(s.cfg.MetricsFile); err != nil {
		return fmt.Errorf("write metrics file: %w", err)
	}
	s.logger.Info("metrics written", zap.String("path", s.cfg.MetricsFile))
	return nil
}

// Close closes the cache and its store.
func (s *session) Close() error {
	return s.cache.Close()
}
