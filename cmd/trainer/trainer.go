package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/HatiCode/courtcast/cmd/trainer/config"
	"github.com/HatiCode/courtcast/pkg/adapters"
	"github.com/HatiCode/courtcast/pkg/artifacts"
	tuning "github.com/HatiCode/courtcast/pkg/config"
	"github.com/HatiCode/courtcast/pkg/features"
	"github.com/HatiCode/courtcast/pkg/httpx"
	"github.com/HatiCode/courtcast/pkg/training"
	"github.com/HatiCode/courtcast/pkg/validate"
)

// ErrNothingTrained is returned when no target produced a model.
var ErrNothingTrained = errors.New("no target trained")

// Summary is the JSON report written at the end of a run.
type Summary struct {
	*training.Result
	Source    string         `json:"source"`
	Skipped   map[string]int `json:"skipped,omitempty"`
	Persisted bool           `json:"persisted"`
	Store     string         `json:"store,omitempty"`
}

// loadRecorder is the part of the metrics the pipeline reports load stats to.
type loadRecorder interface {
	training.Recorder
	ObserveLoad(records int, skipped map[string]int)
}

// run loads game logs, trains every target and persists the artifacts that
// trained. Targets that fail are reported in the summary; run itself only
// fails when loading fails, the run is canceled, or nothing trained.
func run(ctx context.Context, cfg *config.Config, tc *tuning.Config, logger *slog.Logger, rec loadRecorder) (*Summary, error) {
	src, err := newSource(cfg, logger)
	if err != nil {
		return nil, err
	}

	batch, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load game logs from %s: %w", src.Name(), err)
	}
	if rec != nil {
		rec.ObserveLoad(len(batch.Records), batch.SkipCounts())
	}

	builder, err := features.NewBuilder(tc.Features, logger)
	if err != nil {
		return nil, fmt.Errorf("feature builder: %w", err)
	}
	var tr training.Recorder
	if rec != nil {
		tr = rec
	}
	trainer, err := training.New(tc.Training, builder, validate.New(tc.Validation, logger), logger, tr)
	if err != nil {
		return nil, fmt.Errorf("trainer: %w", err)
	}

	res, err := trainer.Train(ctx, batch.Records)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Result:  res,
		Source:  src.Name(),
		Skipped: batch.SkipCounts(),
	}
	if len(res.Models) == 0 {
		return summary, fmt.Errorf("%w: %w", ErrNothingTrained, res.Err())
	}

	set, err := res.Set()
	if err != nil {
		return summary, fmt.Errorf("pack artifacts: %w", err)
	}
	if cfg.DryRun {
		logger.Info("dry run, artifacts not persisted", "targets", set.Targets())
		return summary, nil
	}

	store, err := artifacts.Open(cfg.Store)
	if err != nil {
		return summary, fmt.Errorf("open artifact store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	if err := set.Save(ctx, store); err != nil {
		return summary, fmt.Errorf("persist artifacts: %w", err)
	}
	summary.Persisted = true
	summary.Store = cfg.Store.Backend
	logger.Info("artifacts persisted", "store", cfg.Store.Backend, "targets", set.Targets(), "run_id", res.RunID)
	return summary, nil
}

// newSource builds the configured game-log source. HTTP sources get a client
// honouring the TLS settings.
func newSource(cfg *config.Config, logger *slog.Logger) (adapters.Source, error) {
	src, err := adapters.New(cfg.Source, cfg.SourceConfig, logger)
	if err != nil {
		return nil, err
	}
	if hs, ok := src.(*adapters.HTTPSource); ok {
		client, err := httpx.NewClient(cfg.TLS, cfg.SourceTimeout)
		if err != nil {
			return nil, fmt.Errorf("http source client: %w", err)
		}
		hs.HTTPClient = client
	}
	return src, nil
}

// writeSummary writes s as indented JSON to path, "-" meaning stdout.
func writeSummary(path string, s *Summary) error {
	if path == "" || s == nil {
		return nil
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	data = append(data, '\n')
	if path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
