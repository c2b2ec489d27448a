// Command trainer is the offline batch job that builds courtcast artifacts.
//
// A run:
//  1. Loads per-player game logs from a CSV export or an HTTP/JSON feed
//  2. Builds lagged features and audits every target for leakage
//  3. Trains one gradient-boosted model per target, plus the ensemble for
//     the primary target, on a time-ordered split
//  4. Persists the artifacts to the file or Redis store the predictor reads
//  5. Writes a JSON summary and optionally pushes metrics to a Pushgateway
//
// A target that fails (too little data, invalid values, leakage) is skipped
// and reported; the others are still persisted. The exit status is 1 when
// nothing trained, and with -strict when any target failed.
//
// Usage:
//
//	trainer -input=gamelogs.csv -artifact-dir=/var/lib/courtcast
//
//	trainer -source=http \
//	  -source-opt url=https://stats.example.com/gamelogs \
//	  -source-opt recordsPath=resultSets.0.rowSet \
//	  -source-opt headersPath=resultSets.0.headers \
//	  -store=redis -redis-addr=redis:6379
//
// Environment variables:
//
//	SOURCE          - Game-log source: csv or http (default: csv)
//	SOURCE_*        - Source options, e.g. SOURCE_PATH, SOURCE_RECORDS_PATH
//	STORE           - Artifact store: file or redis (default: file)
//	ARTIFACT_DIR    - Artifact directory (default: ./artifacts)
//	CONFIG_FILE     - Tuning configuration file
//	PUSHGATEWAY_URL - Pushgateway to push run metrics to
//	LOG_LEVEL       - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT      - Logging format: text, json (default: text)
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HatiCode/courtcast/cmd/trainer/config"
	"github.com/HatiCode/courtcast/cmd/trainer/metrics"
	tuning "github.com/HatiCode/courtcast/pkg/config"
	"github.com/HatiCode/courtcast/pkg/logging"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("starting courtcast trainer",
		"version", version,
		"source", cfg.Source,
		"store", cfg.Store.Backend,
		"dry_run", cfg.DryRun,
	)

	tc, err := tuning.Load(cfg.ConfigFile)
	if err != nil {
		logger.Error("failed to load tuning configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	m := metrics.New()
	summary, runErr := run(ctx, cfg, tc, logger, m)

	if err := writeSummary(cfg.Summary, summary); err != nil {
		logger.Error("failed to write summary", "error", err)
	}

	failed := runErr != nil || (cfg.Strict && len(summary.Failures) > 0)
	if !failed && len(summary.Failures) == 0 {
		m.MarkSuccess(time.Now())
	}

	if cfg.Pushgateway != "" {
		pushCtx, cancelPush := context.WithTimeout(context.Background(), 10*time.Second)
		if err := m.Push(pushCtx, cfg.Pushgateway, cfg.Job); err != nil {
			logger.Error("failed to push metrics", "error", err)
		}
		cancelPush()
	}

	if runErr != nil {
		logger.Error("training run failed", "error", runErr)
		os.Exit(1)
	}
	if len(summary.Failures) > 0 {
		logger.Warn("some targets failed", "failures", len(summary.Failures), "error", summary.Err())
		if cfg.Strict {
			os.Exit(1)
		}
	}
	logger.Info("training run complete", "run_id", summary.RunID, "targets", len(summary.Models))
}
