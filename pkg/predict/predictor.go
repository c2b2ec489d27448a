// Package predict turns a loaded artifact set and one player's game log into
// bounded next-game predictions.
//
// For each target the predictor prefers an ensemble artifact and falls back to
// the single per-target model. Raw outputs are clipped into a
// position-dependent plausible range, and an approximate interval is derived
// from the artifact's held-out MAE. A target with no artifact is omitted from
// the result; a missing feature column is filled with 0.
//
// Predictions are pure functions of the artifact set and the request, so
// results may be cached by callers.
package predict

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/HatiCode/courtcast/pkg/artifacts"
	"github.com/HatiCode/courtcast/pkg/ensemble"
	"github.com/HatiCode/courtcast/pkg/features"
	"github.com/HatiCode/courtcast/pkg/gamelog"
)

// Prediction sources.
const (
	SourceEnsemble = "ensemble"
	SourceModel    = "model"
)

// Recorder receives prediction telemetry. A nil Recorder is allowed.
type Recorder interface {
	ObservePrediction(target, source string, elapsed time.Duration)
	ObserveClip(target, position string)
	ObserveMissingFeatures(target string, n int)
	ObserveFallback(target string)
}

// Request is one player's history plus the context of the game to forecast.
type Request struct {
	PlayerID string
	History  []gamelog.GameRecord
	Upcoming features.Upcoming
}

// Prediction is the bounded output for one target.
type Prediction struct {
	Target    string  `json:"target"`
	Predicted float64 `json:"predicted"`
	Lower     float64 `json:"lower"`
	Upper     float64 `json:"upper"`

	Interval Interval `json:"interval"`
	Raw      float64  `json:"raw"`
	Clipped  bool     `json:"clipped"`
	Range    Range    `json:"range"`

	Source          string                  `json:"source"`
	Version         string                  `json:"version"`
	MissingFeatures int                     `json:"missingFeatures,omitempty"`
	Components      []ensemble.Contribution `json:"components,omitempty"`
}

// Result holds the predictions for every target that has an artifact.
type Result struct {
	PlayerID    string                `json:"playerId"`
	Position    string                `json:"position,omitempty"`
	Predictions map[string]Prediction `json:"predictions"`
	Omitted     []string              `json:"omitted,omitempty"`
}

// Predictor serves predictions from an immutable artifact set. It is safe for
// concurrent use.
type Predictor struct {
	set      *artifacts.Set
	builder  *features.Builder
	opts     Options
	targets  []string
	logger   *slog.Logger
	recorder Recorder
}

// New creates a Predictor for targets. A nil logger falls back to
// slog.Default.
func New(set *artifacts.Set, builder *features.Builder, opts Options, targets []string, logger *slog.Logger, recorder Recorder) (*Predictor, error) {
	if set == nil {
		return nil, errors.New("artifact set is required")
	}
	if builder == nil {
		return nil, errors.New("feature builder is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("prediction options: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if len(targets) == 0 {
		targets = gamelog.Targets
	}
	return &Predictor{
		set:      set,
		builder:  builder,
		opts:     opts,
		targets:  append([]string(nil), targets...),
		logger:   logger,
		recorder: recorder,
	}, nil
}

// Set returns the artifact set the predictor serves from.
func (p *Predictor) Set() *artifacts.Set {
	return p.set
}

// Predict forecasts every target for the request's upcoming game.
func (p *Predictor) Predict(req Request) (*Result, error) {
	row, err := p.builder.Next(req.History, req.Upcoming)
	if err != nil {
		return nil, fmt.Errorf("build features for %s: %w", req.PlayerID, err)
	}

	res := &Result{
		PlayerID:    req.PlayerID,
		Position:    row.Position,
		Predictions: make(map[string]Prediction, len(p.targets)),
	}
	if res.PlayerID == "" {
		res.PlayerID = row.PlayerID
	}

	for _, target := range p.targets {
		pred, ok := p.PredictRow(row, target)
		if !ok {
			res.Omitted = append(res.Omitted, target)
			continue
		}
		res.Predictions[target] = pred
	}
	return res, nil
}

// PredictRow predicts one target from a prepared feature row. It reports false
// when no artifact exists for target.
func (p *Predictor) PredictRow(row features.Row, target string) (Prediction, bool) {
	start := time.Now()

	pred := Prediction{Target: target}
	var mae float64

	if e, ok := p.set.Ensemble(target); ok {
		x, missing := row.Vector(e.Features)
		baseline := math.NaN()
		if v, ok := row.Value(e.BaselineFeature); ok {
			baseline = v
		}
		b := e.Combiner().Combine(x, baseline, e.Components())
		if b.UsedFallback {
			p.logger.Warn("no ensemble component available, using fallback estimate",
				"target", target, "fallback", b.Value)
			if p.recorder != nil {
				p.recorder.ObserveFallback(target)
			}
		}
		pred.Raw = b.Value
		pred.Components = b.Contributions
		pred.Source = SourceEnsemble
		pred.Version = e.Version
		pred.MissingFeatures = len(missing)
		mae = e.Metrics.MAE
	} else if a, ok := p.set.Model(target); ok {
		x, missing := row.Vector(a.Features)
		pred.Raw = a.Predict(x)
		pred.Source = SourceModel
		pred.Version = a.Version
		pred.MissingFeatures = len(missing)
		mae = a.Metrics.MAE
	} else {
		return Prediction{}, false
	}

	if pred.MissingFeatures > 0 {
		p.logger.Debug("features missing, filled with 0",
			"target", target, "player", row.PlayerID, "missing", pred.MissingFeatures)
		if p.recorder != nil {
			p.recorder.ObserveMissingFeatures(target, pred.MissingFeatures)
		}
	}

	p.bound(&pred, row.Position, mae)

	if pred.Clipped {
		p.logger.Warn("prediction clipped to position range",
			"target", target,
			"player", row.PlayerID,
			"position", row.Position,
			"raw", pred.Raw,
			"clipped", pred.Predicted,
		)
		if p.recorder != nil {
			p.recorder.ObserveClip(target, row.Position)
		}
	}
	if p.recorder != nil {
		p.recorder.ObservePrediction(target, pred.Source, time.Since(start))
	}
	return pred, true
}

// bound clips the raw value into the position range and fills the interval.
// Clipped is only set when the clip moved the value by more than ClipTolerance.
func (p *Predictor) bound(pred *Prediction, position string, mae float64) {
	r := p.opts.Range(position, pred.Target)
	raw := pred.Raw
	if math.IsNaN(raw) {
		raw = r.Min
	}

	pred.Range = r
	pred.Predicted = r.Clamp(raw)
	pred.Clipped = math.Abs(pred.Predicted-pred.Raw) > p.opts.ClipTolerance
	pred.Interval = p.opts.interval(pred.Predicted, mae, r)
	pred.Lower = pred.Interval.Lower
	pred.Upper = pred.Interval.Upper
}
