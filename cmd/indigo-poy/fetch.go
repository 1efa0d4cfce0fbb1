package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gorusys/indigo-proof-of-yield/internal/config"
)

// loadCommand reads the config and builds the logger shared by every command.
func loadCommand(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func runFetch(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadCommand(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.ValidateScope(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	scope := cfg.Scope()
	logger.Info("fetch start",
		zap.Strings("addresses", scope.Addresses),
		zap.String("stake_address", scope.StakeAddress),
		zap.String("from", cfg.From),
		zap.String("to", cfg.To),
		zap.Int("workers", cfg.Workers),
		zap.String("cache_backend", cfg.CacheBackend),
	)

	started := time.Now()
	res, err := sess.ingest(ctx, scope)
	if err != nil {
		return err
	}

	stats := sess.cache.Stats()
	logger.Info("fetch complete",
		zap.Int("records", len(res.Records)),
		zap.Int("txs", len(res.TxHashes)),
		zap.Int("datums", len(res.Datums)),
		zap.Int64("cache_hits", stats.Hits),
		zap.Int64("cache_misses", stats.Misses),
		zap.Int64("requests", sess.requests()),
		zap.Duration("elapsed", time.Since(started)),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "records\t%d\ntxs\t%d\nrequests\t%d\n", len(res.Records), len(res.TxHashes), sess.requests())
	return sess.writeMetrics()
}
