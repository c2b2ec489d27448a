// Package config holds the tuning configuration shared by the trainer and the
// predictor: feature windows, leakage thresholds, model hyperparameters,
// ensemble weights and position bounds.
//
// Every field has an explicit default in Default. Load layers a YAML file and
// COURTCAST_ environment variables on top of those defaults.
package config

import (
	"fmt"

	"github.com/HatiCode/courtcast/pkg/features"
	"github.com/HatiCode/courtcast/pkg/predict"
	"github.com/HatiCode/courtcast/pkg/training"
	"github.com/HatiCode/courtcast/pkg/validate"
)

// Config is the complete tuning configuration.
type Config struct {
	Features   features.Options `json:"features" koanf:"features"`
	Validation validate.Options `json:"validation" koanf:"validation"`
	Training   training.Options `json:"training" koanf:"training"`
	Prediction predict.Options  `json:"prediction" koanf:"prediction"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Features:   features.DefaultOptions(),
		Validation: validate.DefaultOptions(),
		Training:   training.DefaultOptions(),
		Prediction: predict.DefaultOptions(),
	}
}

// Validate checks every section. Errors wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	sections := []struct {
		name  string
		check func() error
	}{
		{"features", c.Features.Validate},
		{"validation", c.Validation.Validate},
		{"training", c.Training.Validate},
		{"prediction", c.Prediction.Validate},
	}
	for _, s := range sections {
		if err := s.check(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, s.name, err)
		}
	}
	return nil
}
