package training

import (
	"errors"
	"fmt"

	"github.com/HatiCode/courtcast/pkg/ensemble"
	"github.com/HatiCode/courtcast/pkg/gamelog"
	"github.com/HatiCode/courtcast/pkg/models"
)

// EnsembleOptions configures the blended model trained for the primary target.
type EnsembleOptions struct {
	Enabled bool             `json:"enabled" koanf:"enabled"`
	Weights ensemble.Weights `json:"weights" koanf:"weights"`

	// HighThreshold and LowThreshold split players by season-to-date average
	// of the primary target into stars (above high) and role players (below
	// low). Both are heuristics and worth recalibrating per season.
	HighThreshold float64 `json:"highThreshold" koanf:"high_threshold"`
	LowThreshold  float64 `json:"lowThreshold" koanf:"low_threshold"`

	// MinArchetypeRows is the partition size an archetype model needs; smaller
	// partitions are skipped.
	MinArchetypeRows int `json:"minArchetypeRows" koanf:"min_archetype_rows"`

	// Fallback is served when no component is available for a row.
	Fallback float64 `json:"fallback" koanf:"fallback"`

	General   models.Params `json:"general" koanf:"general"`
	Alternate models.Params `json:"alternate" koanf:"alternate"`
	Star      models.Params `json:"star" koanf:"star"`
	Role      models.Params `json:"role" koanf:"role"`
}

// Options configures a training run.
type Options struct {
	Targets []string `json:"targets" koanf:"targets"`
	Version string   `json:"version" koanf:"version"`

	// TrainFraction is the share of labelled rows used for fitting. The rest
	// is held out for evaluation.
	TrainFraction float64 `json:"trainFraction" koanf:"train_fraction"`

	// Seed drives the shuffled split used when rows are undated.
	Seed uint64 `json:"seed" koanf:"seed"`

	// Parallelism bounds how many targets train at once.
	Parallelism int `json:"parallelism" koanf:"parallelism"`

	Model    models.Params   `json:"model" koanf:"model"`
	Ensemble EnsembleOptions `json:"ensemble" koanf:"ensemble"`
}

// DefaultOptions returns the stock training configuration.
func DefaultOptions() Options {
	return Options{
		Targets:       append([]string(nil), gamelog.Targets...),
		Version:       "1.0.0",
		TrainFraction: 0.8,
		Seed:          42,
		Parallelism:   len(gamelog.Targets),
		Model: models.Params{
			Trees: 200, MaxDepth: 6, LearningRate: 0.05, MinChildWeight: 3,
			Subsample: 0.8, ColSample: 0.8, Lambda: 1, Seed: 42, MaxBins: 64,
		},
		Ensemble: EnsembleOptions{
			Enabled:          true,
			Weights:          ensemble.DefaultWeights(),
			HighThreshold:    25,
			LowThreshold:     15,
			MinArchetypeRows: 100,
			Fallback:         15,
			General: models.Params{
				Trees: 300, MaxDepth: 8, LearningRate: 0.03, MinChildWeight: 3,
				Subsample: 0.8, ColSample: 0.8, Lambda: 1, Seed: 42, MaxBins: 64,
			},
			Alternate: models.Params{
				Trees: 200, MaxDepth: 10, MinChildWeight: 2,
				Subsample: 1, ColSample: 0.5, Seed: 42, MaxBins: 64,
			},
			Star: models.Params{
				Trees: 150, MaxDepth: 6, LearningRate: 0.05, MinChildWeight: 3,
				Subsample: 0.8, ColSample: 0.8, Lambda: 1, Seed: 42, MaxBins: 64,
			},
			Role: models.Params{
				Trees: 100, MaxDepth: 5, LearningRate: 0.05, MinChildWeight: 3,
				Subsample: 0.8, ColSample: 0.8, Lambda: 1, Seed: 42, MaxBins: 64,
			},
		},
	}
}

// Validate checks the options describe a runnable training job.
func (o Options) Validate() error {
	if len(o.Targets) == 0 {
		return errors.New("at least one target is required")
	}
	seen := make(map[string]bool, len(o.Targets))
	for _, t := range o.Targets {
		if !gamelog.IsTarget(t) {
			return fmt.Errorf("unknown target %q", t)
		}
		if seen[t] {
			return fmt.Errorf("duplicate target %q", t)
		}
		seen[t] = true
	}
	if o.Version == "" {
		return errors.New("version is required")
	}
	if o.TrainFraction <= 0 || o.TrainFraction >= 1 {
		return fmt.Errorf("train fraction must be in (0, 1), got %v", o.TrainFraction)
	}
	if o.Parallelism < 1 {
		return fmt.Errorf("parallelism must be >= 1, got %d", o.Parallelism)
	}
	if err := o.Model.Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	if o.Ensemble.Enabled {
		if err := o.Ensemble.Validate(); err != nil {
			return fmt.Errorf("ensemble: %w", err)
		}
	}
	return nil
}

// Validate checks the ensemble options.
func (o EnsembleOptions) Validate() error {
	if err := o.Weights.Validate(); err != nil {
		return err
	}
	if o.LowThreshold > o.HighThreshold {
		return fmt.Errorf("low threshold %v above high threshold %v", o.LowThreshold, o.HighThreshold)
	}
	if o.MinArchetypeRows < 1 {
		return fmt.Errorf("min archetype rows must be >= 1, got %d", o.MinArchetypeRows)
	}
	if o.Fallback < 0 {
		return fmt.Errorf("fallback must be >= 0, got %v", o.Fallback)
	}
	for name, p := range map[string]models.Params{
		ensemble.General:   o.General,
		ensemble.Alternate: o.Alternate,
		ensemble.Star:      o.Star,
		ensemble.Role:      o.Role,
	} {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
