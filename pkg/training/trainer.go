// Package training fits per-target regressors from game logs and, for the
// primary target, the blended ensemble.
//
// A run builds one feature frame, then trains every target independently:
// target sanity check, time-ordered split, leakage audit over the training
// sample, fit, held-out evaluation. A failing target is recorded and skipped;
// it never aborts the other targets. Artifacts are returned to the caller and
// only persisted once the run completes.
package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/HatiCode/courtcast/pkg/artifacts"
	"github.com/HatiCode/courtcast/pkg/ensemble"
	"github.com/HatiCode/courtcast/pkg/features"
	"github.com/HatiCode/courtcast/pkg/gamelog"
	"github.com/HatiCode/courtcast/pkg/models"
	"github.com/HatiCode/courtcast/pkg/validate"
)

// Failure reasons reported to the Recorder and in the run summary.
const (
	ReasonLeakage      = "leakage"
	ReasonInsufficient = "insufficient_data"
	ReasonInvalid      = "invalid_target"
	ReasonCanceled     = "canceled"
	ReasonError        = "error"
)

// Recorder receives training telemetry. A nil Recorder is allowed.
type Recorder interface {
	ObserveTarget(target string, ev models.Evaluation, trainRows int, elapsed time.Duration)
	ObserveEnsemble(target string, ev models.Evaluation, improvement float64)
	TargetFailed(target, reason string)
}

// Failure describes a target that produced no artifact.
type Failure struct {
	Target string `json:"target"`
	Reason string `json:"reason"`
	Error  string `json:"error"`

	err error
}

// Unwrap returns the underlying error.
func (f Failure) Unwrap() error { return f.err }

// TargetSummary is the per-target part of the run summary.
type TargetSummary struct {
	Target        string            `json:"target"`
	Features      int               `json:"features"`
	TrainRows     int               `json:"trainRows"`
	TestRows      int               `json:"testRows"`
	Chronological bool              `json:"chronological"`
	Warnings      int               `json:"warnings"`
	Metrics       models.Evaluation `json:"metrics"`
	DurationMS    int64             `json:"durationMs"`
	Ensemble      *EnsembleSummary  `json:"ensemble,omitempty"`
}

// EnsembleSummary reports the blended model against its components.
type EnsembleSummary struct {
	Metrics    models.Evaluation            `json:"metrics"`
	Components map[string]models.Evaluation `json:"components"`

	// Improvement is the general model's MAE minus the ensemble's MAE, so a
	// positive value means the blend helps.
	Improvement float64 `json:"improvement"`

	// ArchetypeRows counts the training rows of each archetype model that was
	// fitted.
	ArchetypeRows map[string]int `json:"archetypeRows,omitempty"`
}

// Result is the outcome of one training run.
type Result struct {
	RunID      string                   `json:"runId"`
	Version    string                   `json:"version"`
	StartedAt  time.Time                `json:"startedAt"`
	FinishedAt time.Time                `json:"finishedAt"`
	Records    int                      `json:"records"`
	Rows       int                      `json:"rows"`
	Targets    map[string]TargetSummary `json:"targets"`
	Failures   []Failure                `json:"failures,omitempty"`

	Models    map[string]*artifacts.ModelArtifact    `json:"-"`
	Ensembles map[string]*artifacts.EnsembleArtifact `json:"-"`
}

// Err joins the per-target failures, or returns nil when every target trained.
func (r *Result) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("%s: %w", f.Target, f.err))
	}
	return errors.Join(errs...)
}

// Set packs the trained artifacts for persistence or serving.
func (r *Result) Set() (*artifacts.Set, error) {
	ms := make([]*artifacts.ModelArtifact, 0, len(r.Models))
	for _, a := range r.Models {
		ms = append(ms, a)
	}
	es := make([]*artifacts.EnsembleArtifact, 0, len(r.Ensembles))
	for _, e := range r.Ensembles {
		es = append(es, e)
	}
	return artifacts.NewSet(ms, es)
}

// Trainer runs training jobs. It holds no per-run state and may be reused.
type Trainer struct {
	opts      Options
	builder   *features.Builder
	validator *validate.Validator
	logger    *slog.Logger
	recorder  Recorder
}

// New creates a Trainer. A nil logger falls back to slog.Default.
func New(opts Options, builder *features.Builder, validator *validate.Validator, logger *slog.Logger, recorder Recorder) (*Trainer, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("training options: %w", err)
	}
	if builder == nil {
		return nil, errors.New("feature builder is required")
	}
	if validator == nil {
		return nil, errors.New("validator is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{
		opts:      opts,
		builder:   builder,
		validator: validator,
		logger:    logger,
		recorder:  recorder,
	}, nil
}

// Train fits every configured target from records.
//
// The returned error is only non-nil when the run as a whole could not
// proceed (bad input ordering, cancellation). Per-target failures are listed
// in Result.Failures and joined by Result.Err.
func (t *Trainer) Train(ctx context.Context, records []gamelog.GameRecord) (*Result, error) {
	started := time.Now()

	frame, err := t.builder.Build(records)
	if err != nil {
		return nil, fmt.Errorf("build features: %w", err)
	}

	res := &Result{
		RunID:     uuid.NewString(),
		Version:   t.opts.Version,
		StartedAt: started.UTC(),
		Records:   len(records),
		Rows:      frame.Len(),
		Targets:   make(map[string]TargetSummary, len(t.opts.Targets)),
		Models:    make(map[string]*artifacts.ModelArtifact, len(t.opts.Targets)),
		Ensembles: make(map[string]*artifacts.EnsembleArtifact, 1),
	}

	t.logger.Info("training run started",
		"run_id", res.RunID,
		"records", len(records),
		"rows", frame.Len(),
		"targets", t.opts.Targets,
	)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.opts.Parallelism)

	for _, target := range t.opts.Targets {
		g.Go(func() error {
			out, err := t.trainTarget(gctx, frame, target, res.RunID, res.StartedAt)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				f := Failure{Target: target, Reason: Reason(err), Error: err.Error(), err: err}
				res.Failures = append(res.Failures, f)
				t.logger.Error("target training failed", "target", target, "reason", f.Reason, "error", err)
				if t.recorder != nil {
					t.recorder.TargetFailed(target, f.Reason)
				}
				return nil
			}
			res.Models[target] = out.model
			if out.ensemble != nil {
				res.Ensembles[target] = out.ensemble
			}
			res.Targets[target] = out.summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("training run %s: %w", res.RunID, err)
	}

	sort.Slice(res.Failures, func(i, j int) bool {
		return res.Failures[i].Target < res.Failures[j].Target
	})
	res.FinishedAt = time.Now().UTC()

	t.logger.Info("training run finished",
		"run_id", res.RunID,
		"trained", len(res.Models),
		"failed", len(res.Failures),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return res, nil
}

// Reason classifies a training failure.
func Reason(err error) string {
	switch {
	case errors.Is(err, validate.ErrLeakage):
		return ReasonLeakage
	case errors.Is(err, validate.ErrInsufficientData):
		return ReasonInsufficient
	case errors.Is(err, validate.ErrInvalidTarget):
		return ReasonInvalid
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCanceled
	}
	return ReasonError
}

type targetOutput struct {
	model    *artifacts.ModelArtifact
	ensemble *artifacts.EnsembleArtifact
	summary  TargetSummary
}

func (t *Trainer) trainTarget(ctx context.Context, frame *features.Frame, target, runID string, trainedAt time.Time) (*targetOutput, error) {
	start := time.Now()

	checks := t.validator.Target(target, frame.Labels(target))
	if err := checks.Err(); err != nil {
		return nil, err
	}

	names := t.builder.FeatureSet(target)
	labelled := frame.Labelled(target)
	trainRows, testRows, chrono := Split(labelled.Rows, t.opts.TrainFraction, t.opts.Seed)
	if len(trainRows) == 0 || len(testRows) == 0 {
		return nil, fmt.Errorf("%w: %s split into %d train and %d test rows",
			validate.ErrInsufficientData, target, len(trainRows), len(testRows))
	}
	train := &features.Frame{Rows: trainRows}
	test := &features.Frame{Rows: testRows}
	if !chrono {
		t.logger.Warn("rows are not all dated, falling back to a shuffled split", "target", target)
	}

	audit := t.validator.Features(target, names, train.Matrix(names), train.Labels(target))
	if err := audit.Err(); err != nil {
		return nil, err
	}
	checks.Merge(audit)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	model, err := t.fit(models.KindGradientBoosting, t.opts.Model, target, names, train, test, runID, trainedAt)
	if err != nil {
		return nil, err
	}

	out := &targetOutput{
		model: model,
		summary: TargetSummary{
			Target:        target,
			Features:      len(names),
			TrainRows:     train.Len(),
			TestRows:      test.Len(),
			Chronological: chrono,
			Warnings:      len(checks.Warnings()),
			Metrics:       model.Metrics,
		},
	}

	if t.opts.Ensemble.Enabled && target == t.builder.Options().Primary {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, sum, err := t.trainEnsemble(target, names, train, test, runID, trainedAt)
		if err != nil {
			return nil, fmt.Errorf("ensemble: %w", err)
		}
		out.ensemble = e
		out.summary.Ensemble = sum
		if t.recorder != nil {
			t.recorder.ObserveEnsemble(target, sum.Metrics, sum.Improvement)
		}
	}

	elapsed := time.Since(start)
	out.summary.DurationMS = elapsed.Milliseconds()

	t.logger.Info("target trained",
		"target", target,
		"features", len(names),
		"train_rows", train.Len(),
		"test_rows", test.Len(),
		"mae", model.Metrics.MAE,
		"r2", model.Metrics.R2,
		"duration_ms", elapsed.Milliseconds(),
	)
	if t.recorder != nil {
		t.recorder.ObserveTarget(target, model.Metrics, train.Len(), elapsed)
	}
	return out, nil
}

// fit trains one regressor and evaluates it on test.
func (t *Trainer) fit(kind string, p models.Params, target string, names []string, train, test *features.Frame, runID string, trainedAt time.Time) (*artifacts.ModelArtifact, error) {
	r, err := models.New(kind, p)
	if err != nil {
		return nil, err
	}
	if err := r.Fit(train.Matrix(names), train.Labels(target)); err != nil {
		return nil, fmt.Errorf("fit %s %s: %w", target, kind, err)
	}

	a, err := artifacts.NewModel(target, names, t.opts.Version, trainedAt, r)
	if err != nil {
		return nil, err
	}
	a.RunID = runID
	a.TrainRows = train.Len()
	a.TestRows = test.Len()

	if test.Len() > 0 {
		pred := models.PredictAll(a, test.Matrix(names))
		actual := test.Labels(target)
		a.Metrics = models.Evaluate(pred, actual)
		t.sanity(target, kind, pred, actual)
	}
	return a, nil
}

// trainEnsemble fits the ensemble components and evaluates the blend row by
// row on the held-out set, picking each row's archetype from its own
// baseline.
func (t *Trainer) trainEnsemble(target string, names []string, train, test *features.Frame, runID string, trainedAt time.Time) (*artifacts.EnsembleArtifact, *EnsembleSummary, error) {
	eo := t.opts.Ensemble
	baselineFeature := features.SeasonAvgName(target)

	e := &artifacts.EnsembleArtifact{
		ID:              uuid.NewString(),
		RunID:           runID,
		Target:          target,
		Features:        append([]string(nil), names...),
		Version:         t.opts.Version,
		TrainedAt:       trainedAt.UTC(),
		Weights:         eo.Weights,
		HighThreshold:   eo.HighThreshold,
		LowThreshold:    eo.LowThreshold,
		Fallback:        eo.Fallback,
		BaselineFeature: baselineFeature,
	}
	comb := e.Combiner()

	var err error
	if e.General, err = t.fit(models.KindGradientBoosting, eo.General, target, names, train, test, runID, trainedAt); err != nil {
		return nil, nil, err
	}
	if e.Alternate, err = t.fit(models.KindRandomForest, eo.Alternate, target, names, train, test, runID, trainedAt); err != nil {
		return nil, nil, err
	}

	sum := &EnsembleSummary{
		Components: map[string]models.Evaluation{
			ensemble.General:   e.General.Metrics,
			ensemble.Alternate: e.Alternate.Metrics,
		},
		ArchetypeRows: make(map[string]int, 2),
	}

	trainParts := partition(train, baselineFeature, comb)
	testParts := partition(test, baselineFeature, comb)
	for _, arch := range []struct {
		name   string
		params models.Params
		slot   **artifacts.ModelArtifact
	}{
		{ensemble.Star, eo.Star, &e.Star},
		{ensemble.Role, eo.Role, &e.Role},
	} {
		part := trainParts[arch.name]
		if part.Len() <= eo.MinArchetypeRows {
			t.logger.Debug("archetype partition too small, skipping",
				"target", target, "archetype", arch.name, "rows", part.Len(), "min", eo.MinArchetypeRows)
			continue
		}
		a, err := t.fit(models.KindGradientBoosting, arch.params, target, names, part, testParts[arch.name], runID, trainedAt)
		if err != nil {
			return nil, nil, err
		}
		*arch.slot = a
		sum.ArchetypeRows[arch.name] = part.Len()
		if a.TestRows > 0 {
			sum.Components[arch.name] = a.Metrics
		}
	}

	comps := e.Components()
	X := test.Matrix(names)
	pred := make([]float64, len(X))
	for i, x := range X {
		pred[i] = comb.Combine(x, baseline(test.Rows[i], baselineFeature), comps).Value
	}
	actual := test.Labels(target)
	e.Metrics = models.Evaluate(pred, actual)
	e.ComponentMetrics = sum.Components
	t.sanity(target, "ensemble", pred, actual)

	sum.Metrics = e.Metrics
	sum.Improvement = e.General.Metrics.MAE - e.Metrics.MAE

	if err := e.Validate(); err != nil {
		return nil, nil, err
	}

	t.logger.Info("ensemble trained",
		"target", target,
		"mae", e.Metrics.MAE,
		"r2", e.Metrics.R2,
		"general_mae", e.General.Metrics.MAE,
		"alternate_mae", e.Alternate.Metrics.MAE,
		"improvement", sum.Improvement,
		"star", e.Star != nil,
		"role", e.Role != nil,
	)
	return e, sum, nil
}

// partition splits rows by archetype. Rows without a baseline or between the
// thresholds belong to no partition.
func partition(f *features.Frame, baselineFeature string, comb ensemble.Combiner) map[string]*features.Frame {
	parts := map[string]*features.Frame{
		ensemble.Star: {},
		ensemble.Role: {},
	}
	for _, r := range f.Rows {
		if p, ok := parts[comb.Archetype(baseline(r, baselineFeature))]; ok {
			p.Rows = append(p.Rows, r)
		}
	}
	return parts
}

func baseline(r features.Row, name string) float64 {
	if v, ok := r.Value(name); ok {
		return v
	}
	return math.NaN()
}

// sanity logs held-out predictions against the actual distribution. A model
// whose mean drifts far from the actual mean or that predicts negative counts
// usually points at a feature problem rather than a tuning one.
func (t *Trainer) sanity(target, component string, pred, actual []float64) {
	p, a := models.Summarize(pred), models.Summarize(actual)
	negative := 0
	for _, v := range pred {
		if v < 0 {
			negative++
		}
	}

	t.logger.Debug("held-out prediction check",
		"target", target,
		"component", component,
		"pred_mean", p.Mean,
		"pred_std", p.Std,
		"actual_mean", a.Mean,
		"actual_std", a.Std,
	)
	if negative > 0 {
		t.logger.Warn("model predicts negative values on held-out rows",
			"target", target, "component", component, "count", negative)
	}
}
