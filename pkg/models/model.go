// Package models provides the tabular regressors used by courtcast.
//
// Two algorithm families are implemented on top of a shared CART regression
// tree builder:
//   - GradientBoosting: additive ensemble of shallow trees fit to residuals,
//     with row and column subsampling per tree and L2-regularised leaves.
//   - RandomForest: bootstrap-aggregated deep trees with per-split feature
//     sampling.
//
// Having two families lets the ensemble layer combine models whose errors are
// less correlated than two boosted models trained with different seeds.
//
// Every regressor is deterministic for a fixed Params.Seed, and Predict never
// mutates model state, so a fitted model can serve concurrent callers.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Algorithm family identifiers stored in artifacts.
const (
	KindGradientBoosting = "gradient_boosting"
	KindRandomForest     = "random_forest"
)

var (
	// ErrEmptyTrainingSet is returned by Fit when there are no rows.
	ErrEmptyTrainingSet = errors.New("models: empty training set")

	// ErrShapeMismatch is returned by Fit when X and y disagree in length
	// or rows have different widths.
	ErrShapeMismatch = errors.New("models: shape mismatch")
)

// Regressor is a single-output regression model over dense feature vectors.
type Regressor interface {
	// Kind returns the algorithm family identifier.
	Kind() string

	// Fit trains the model in place. X is row-major, one row per sample.
	Fit(X [][]float64, y []float64) error

	// Predict returns the model output for one feature vector.
	Predict(x []float64) float64
}

// Params configures tree construction for both algorithm families.
//
// For GradientBoosting, Subsample is the fraction of rows drawn without
// replacement per tree and ColSample the fraction of columns per tree. For
// RandomForest, Subsample is the bootstrap size as a fraction of the training
// rows and ColSample the fraction of columns considered at each split.
type Params struct {
	Trees          int     `json:"trees" koanf:"trees"`
	MaxDepth       int     `json:"maxDepth" koanf:"max_depth"`
	LearningRate   float64 `json:"learningRate" koanf:"learning_rate"`
	MinChildWeight float64 `json:"minChildWeight" koanf:"min_child_weight"`
	Subsample      float64 `json:"subsample" koanf:"subsample"`
	ColSample      float64 `json:"colSample" koanf:"colsample"`
	Lambda         float64 `json:"lambda" koanf:"lambda"`
	Seed           uint64  `json:"seed" koanf:"seed"`

	// MaxBins enables histogram split search with at most MaxBins buckets
	// per feature. 0 selects exact greedy search over every distinct value.
	MaxBins int `json:"maxBins,omitempty" koanf:"max_bins"`
}

// Validate checks that the parameters describe a trainable model.
func (p Params) Validate() error {
	if p.Trees <= 0 {
		return fmt.Errorf("trees must be > 0, got %d", p.Trees)
	}
	if p.MaxDepth <= 0 {
		return fmt.Errorf("max depth must be > 0, got %d", p.MaxDepth)
	}
	if p.Subsample <= 0 || p.Subsample > 1 {
		return fmt.Errorf("subsample must be in (0, 1], got %v", p.Subsample)
	}
	if p.ColSample <= 0 || p.ColSample > 1 {
		return fmt.Errorf("colsample must be in (0, 1], got %v", p.ColSample)
	}
	if p.Lambda < 0 {
		return fmt.Errorf("lambda must be >= 0, got %v", p.Lambda)
	}
	if p.MinChildWeight < 0 {
		return fmt.Errorf("min child weight must be >= 0, got %v", p.MinChildWeight)
	}
	if p.MaxBins != 0 && (p.MaxBins < 2 || p.MaxBins > math.MaxUint16) {
		return fmt.Errorf("max bins must be 0 or in [2, %d], got %d", math.MaxUint16, p.MaxBins)
	}
	return nil
}

// New returns an untrained regressor of the given family.
func New(kind string, p Params) (Regressor, error) {
	switch kind {
	case KindGradientBoosting:
		return NewGradientBoosting(p), nil
	case KindRandomForest:
		return NewRandomForest(p), nil
	default:
		return nil, fmt.Errorf("models: unknown kind %q", kind)
	}
}

// Envelope is the serialisable form of a fitted Regressor. Exactly one of the
// family fields is set, matching Kind.
type Envelope struct {
	Kind             string            `json:"kind"`
	GradientBoosting *GradientBoosting `json:"gradientBoosting,omitempty"`
	RandomForest     *RandomForest     `json:"randomForest,omitempty"`
}

// Wrap packs a fitted regressor for persistence.
func Wrap(r Regressor) (*Envelope, error) {
	switch m := r.(type) {
	case *GradientBoosting:
		return &Envelope{Kind: KindGradientBoosting, GradientBoosting: m}, nil
	case *RandomForest:
		return &Envelope{Kind: KindRandomForest, RandomForest: m}, nil
	default:
		return nil, fmt.Errorf("models: cannot wrap %T", r)
	}
}

// Regressor unpacks the envelope. It fails if Kind and the populated field
// disagree, which indicates a corrupted or hand-edited artifact.
func (e *Envelope) Regressor() (Regressor, error) {
	if e == nil {
		return nil, errors.New("models: nil envelope")
	}
	switch e.Kind {
	case KindGradientBoosting:
		if e.GradientBoosting == nil {
			return nil, fmt.Errorf("models: envelope kind %q has no model body", e.Kind)
		}
		return e.GradientBoosting, nil
	case KindRandomForest:
		if e.RandomForest == nil {
			return nil, fmt.Errorf("models: envelope kind %q has no model body", e.Kind)
		}
		return e.RandomForest, nil
	default:
		return nil, fmt.Errorf("models: unknown kind %q", e.Kind)
	}
}

// Predict evaluates the wrapped model. A malformed envelope predicts 0.
func (e *Envelope) Predict(x []float64) float64 {
	r, err := e.Regressor()
	if err != nil {
		return 0
	}
	return r.Predict(x)
}

// Width returns the number of features the wrapped model was fitted on, or 0
// for a malformed envelope.
func (e *Envelope) Width() int {
	r, err := e.Regressor()
	if err != nil {
		return 0
	}
	switch m := r.(type) {
	case *GradientBoosting:
		return m.NumFeatures
	case *RandomForest:
		return m.NumFeatures
	}
	return 0
}

// MarshalEnvelope is a convenience for tests and tools that need the raw bytes.
func MarshalEnvelope(r Regressor) ([]byte, error) {
	env, err := Wrap(r)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func checkShape(X [][]float64, y []float64) (int, error) {
	if len(X) == 0 {
		return 0, ErrEmptyTrainingSet
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("%w: %d rows, %d targets", ErrShapeMismatch, len(X), len(y))
	}
	width := len(X[0])
	if width == 0 {
		return 0, fmt.Errorf("%w: zero-width rows", ErrShapeMismatch)
	}
	for i, row := range X {
		if len(row) != width {
			return 0, fmt.Errorf("%w: row %d has %d columns, want %d", ErrShapeMismatch, i, len(row), width)
		}
	}
	return width, nil
}
