package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gorusys/indigo-proof-of-yield/internal/cache"
	"github.com/gorusys/indigo-proof-of-yield/internal/model"
)

// Exit codes.
const (
	exitOK       = 0
	exitFailure  = 1
	exitMismatch = 2
)

var errMismatch = errors.New("digest mismatch")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "indigo-poy",
		Short:        "Proof of yield for Indigo Protocol (stability pools, redemption orders, staking)",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the scope's ledger records into the cache",
		RunE:  runFetch,
	}
	addScopeFlags(fetchCmd.Flags())
	addCacheFlags(fetchCmd.Flags())
	addRemoteFlags(fetchCmd.Flags())
	fetchCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(fetchCmd)

	computeCmd := &cobra.Command{
		Use:   "compute",
		Short: "Reconstruct events and metrics and write the evidence bundle",
		RunE:  runCompute,
	}
	addScopeFlags(computeCmd.Flags())
	addCacheFlags(computeCmd.Flags())
	addRemoteFlags(computeCmd.Flags())
	addOutputFlags(computeCmd.Flags())
	computeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(computeCmd)

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Write the evidence bundle and a static HTML report",
		RunE:  runReport,
	}
	addScopeFlags(reportCmd.Flags())
	addCacheFlags(reportCmd.Flags())
	addRemoteFlags(reportCmd.Flags())
	addOutputFlags(reportCmd.Flags())
	reportCmd.Flags().String("out", "", "HTML output path (default <reports-dir>/<name>.html)")
	reportCmd.Flags().Bool("demo", false, "render a deterministic demo report from canned records")
	reportCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(reportCmd)

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a bundle against its digest file",
		RunE:  runVerify,
	}
	verifyCmd.Flags().String("bundle", "", "bundle file path")
	verifyCmd.Flags().String("digest", "", "digest file path (default next to the bundle)")
	verifyCmd.Flags().Bool("replay", false, "also recompute the payload from cached records")
	addCacheFlags(verifyCmd.Flags())
	verifyCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(verifyCmd)

	return root
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errMismatch):
		return exitMismatch
	default:
		return exitFailure
	}
}

func addScopeFlags(fs *pflag.FlagSet) {
	fs.StringSlice("address", nil, "payment addresses in scope (comma-separated)")
	fs.String("stake-address", "", "stake address in scope")
	fs.String("from", "", "window start: slot number, @unix seconds or RFC3339")
	fs.String("to", "", "window end: slot number, @unix seconds or RFC3339")
	fs.String("protocol-file", "", "protocol identifier file (yaml or json)")
}

func addCacheFlags(fs *pflag.FlagSet) {
	fs.String("cache-backend", "bolt", "cache backend (bolt, postgres, redis, memory)")
	fs.String("cache-dir", "./data/cache", "directory of the bolt cache")
	fs.String("pg-dsn", "", "Postgres DSN for the postgres backend")
	fs.String("redis-url", "", "Redis URL for the redis backend")
	fs.Bool("offline", false, "serve every query from the cache; a miss fails the run")
}

func addRemoteFlags(fs *pflag.FlagSet) {
	fs.String("endpoint", "https://api.koios.rest/api/v1", "indexer API base URL")
	fs.Float64("rate-limit", 5, "maximum indexer requests per second")
	fs.Int("workers", 4, "concurrent detail fetches")
	fs.Int("max-retries", 3, "maximum retry attempts per query")
	fs.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	fs.Duration("fetch-timeout", 30*time.Second, "per-attempt fetch timeout")
}

func addOutputFlags(fs *pflag.FlagSet) {
	fs.String("reports-dir", "./reports", "directory for bundles and reports")
	fs.String("name", "", "artifact file stem (default derived from the scope)")
	fs.String("events-out", "", "optional JSONL export of the reconstructed events")
	fs.String("metrics-file", "", "optional Prometheus textfile with run metrics")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

// describeMiss turns an offline cache miss into an actionable message.
func describeMiss(err error) error {
	if errors.Is(err, cache.ErrCacheMiss) {
		return fmt.Errorf("%w (run fetch without --offline first)", err)
	}
	return err
}

func artifactName(name string, scope model.Scope) string {
	if name != "" {
		return name
	}
	return scope.Label()
}
