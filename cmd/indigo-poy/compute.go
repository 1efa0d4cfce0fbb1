package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gorusys/indigo-proof-of-yield/internal/evidence"
	"github.com/gorusys/indigo-proof-of-yield/internal/model"
	"github.com/gorusys/indigo-proof-of-yield/internal/pipeline"
	"github.com/gorusys/indigo-proof-of-yield/internal/storage"
)

// computed is the outcome of one scope run written to disk.
type computed struct {
	bundle model.Bundle
	paths  evidence.Paths
	digest evidence.Digest
}

func runCompute(cmd *cobra.Command, _ []string) error {
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

	out, err := computeScope(ctx, sess)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.digest.Hex())
	return sess.writeMetrics()
}

// computeScope ingests the scope, derives the payload and writes the bundle pair.
func computeScope(ctx context.Context, sess *session) (computed, error) {
	cfg := sess.cfg
	scope := cfg.Scope()

	res, err := sess.ingest(ctx, scope)
	if err != nil {
		return computed{}, err
	}

	p := pipeline.New(pipeline.Config{Scope: scope, Protocol: cfg.Protocol}, sess.metrics, sess.logger.Named("pipeline"))
	payload, stats := p.Compute(res.Records)

	bundle := pipeline.NewBundle(payload, pipeline.NewProvenance(pipeline.ProvenanceInput{
		Records:  stats.Records,
		Requests: sess.requests(),
		Offline:  sess.cache.Offline(),
	}))

	name := artifactName(cfg.Name, scope)
	paths, digest, err := evidence.WritePair(cfg.ReportsDir, name, bundle)
	if err != nil {
		return computed{}, fmt.Errorf("write bundle: %w", err)
	}

	if cfg.EventsOut != "" {
		if err := storage.NewJsonlEventSink(cfg.EventsOut).WriteEvents(payload.Events); err != nil {
			return computed{}, fmt.Errorf("write events: %w", err)
		}
	}

	sess.logger.Info("compute complete",
		zap.String("bundle", paths.Bundle),
		zap.String("digest_file", paths.Digest),
		zap.String("digest", digest.Hex()),
		zap.Int("events", len(payload.Events)),
		zap.Int("records", stats.Records),
		zap.Int("record_warnings", len(stats.RecordWarnings)),
		zap.Int64("requests", sess.requests()),
		zap.String("run_id", bundle.Provenance.RunID),
	)
	return computed{bundle: bundle, paths: paths, digest: digest}, nil
}
