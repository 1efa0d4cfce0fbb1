package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gorusys/indigo-proof-of-yield/internal/evidence"
	"github.com/gorusys/indigo-proof-of-yield/internal/pipeline"
)

func runVerify(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadCommand(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	bundlePath, _ := cmd.Flags().GetString("bundle")
	digestPath, _ := cmd.Flags().GetString("digest")
	replay, _ := cmd.Flags().GetBool("replay")
	if bundlePath == "" {
		return fmt.Errorf("--bundle is required")
	}
	if digestPath == "" {
		digestPath = digestPathFor(bundlePath)
	}

	res, err := evidence.Verify(bundlePath, digestPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !res.OK() {
		logger.Warn("verification failed",
			zap.String("bundle", bundlePath),
			zap.String("expected", res.Expected),
			zap.String("actual", res.Actual),
			zap.String("reason", res.Reason),
		)
		fmt.Fprintf(out, "MISMATCH\tcomputed=%s\texpected=%s\n", res.Actual, res.Expected)
		return errMismatch
	}
	if !res.Canonical {
		logger.Info("bundle payload is not in canonical form", zap.String("bundle", bundlePath))
	}

	if replay {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg.Offline = true
		sess, err := openSession(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer sess.Close()

		recomputed, err := replayDigest(ctx, sess, bundlePath)
		if err != nil {
			return err
		}
		if recomputed.Hex() != res.Actual {
			logger.Warn("replay differs from bundle",
				zap.String("bundle_digest", res.Actual),
				zap.String("replay_digest", recomputed.Hex()),
			)
			fmt.Fprintf(out, "MISMATCH\treplayed=%s\tbundle=%s\n", recomputed.Hex(), res.Actual)
			return errMismatch
		}
		logger.Info("replay matches bundle", zap.String("digest", res.Actual))
	}

	fmt.Fprintf(out, "OK\t%s\n", res.Actual)
	return nil
}

// replayDigest recomputes the payload of a bundle from the cached records it cites.
func replayDigest(ctx context.Context, sess *session, bundlePath string) (evidence.Digest, error) {
	bundle, _, err := evidence.ReadBundle(bundlePath)
	if err != nil {
		return evidence.Digest{}, err
	}
	records, err := sess.cache.Replay(ctx, bundle.Payload.Sources.RecordHashes)
	if err != nil {
		return evidence.Digest{}, describeMiss(err)
	}
	p := pipeline.New(pipeline.Config{
		Scope:    bundle.Payload.Scope,
		Protocol: bundle.Payload.Parameters.Protocol,
	}, sess.metrics, sess.logger.Named("pipeline"))
	_, digest, err := p.Digest(records)
	return digest, err
}

func digestPathFor(bundlePath string) string {
	dir, base := filepath.Split(bundlePath)
	switch {
	case strings.HasSuffix(base, evidence.BundleSuffix):
		base = strings.TrimSuffix(base, evidence.BundleSuffix)
	default:
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return filepath.Join(dir, base+evidence.DigestSuffix)
}
