package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gorusys/indigo-proof-of-yield/internal/config"
	"github.com/gorusys/indigo-proof-of-yield/internal/evidence"
	"github.com/gorusys/indigo-proof-of-yield/internal/report"
)

func runReport(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadCommand(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	demo, _ := cmd.Flags().GetBool("demo")
	outPath, _ := cmd.Flags().GetString("out")
	if demo {
		return runDemoReport(ctx, cmd, cfg, outPath, logger)
	}

	if err := cfg.ValidateScope(); err != nil {
		return err
	}
	sess, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	out, err := computeScope(ctx, sess)
	if err != nil {
		return err
	}
	if outPath == "" {
		outPath = filepath.Join(cfg.ReportsDir, artifactName(cfg.Name, cfg.Scope())+".html")
	}
	if err := report.WriteFile(outPath, out.bundle, out.digest); err != nil {
		return err
	}
	logger.Info("report complete",
		zap.String("html", outPath),
		zap.String("bundle", out.paths.Bundle),
		zap.String("digest", out.digest.Hex()),
	)
	fmt.Fprintln(cmd.OutOrStdout(), outPath)
	return sess.writeMetrics()
}

func runDemoReport(ctx context.Context, cmd *cobra.Command, cfg config.Config, outPath string, logger *zap.Logger) error {
	bundle, err := report.DemoBundle(ctx, logger)
	if err != nil {
		return err
	}
	paths, digest, err := evidence.WritePair(cfg.ReportsDir, report.DemoName, bundle)
	if err != nil {
		return fmt.Errorf("write demo bundle: %w", err)
	}
	if outPath == "" {
		outPath = filepath.Join(cfg.ReportsDir, report.DemoName+".html")
	}
	if err := report.WriteFile(outPath, bundle, digest); err != nil {
		return err
	}
	logger.Info("demo report complete",
		zap.String("html", outPath),
		zap.String("bundle", paths.Bundle),
		zap.String("digest", digest.Hex()),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Demo report written to %s\n", outPath)
	return nil
}
