package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every configuration environment variable.
const EnvPrefix = "COURTCAST_"

// PathEnv names the variable consulted for the config file when Load is given
// no path.
const PathEnv = EnvPrefix + "CONFIG"

// Load builds a Config by layering, lowest precedence first:
//  1. defaults (Default)
//  2. the YAML file at path, or at $COURTCAST_CONFIG when path is empty
//  3. environment variables prefixed COURTCAST_
//
// Nested keys are separated by a double underscore in variable names, so
// COURTCAST_TRAINING__TRAIN_FRACTION sets training.train_fraction. List
// values are comma separated and replace the default list.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrLoadConfig, path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		if s == PathEnv {
			return ""
		}
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: environment: %v", ErrLoadConfig, err)
	}

	cfg := *Default()

	// Decoding into a populated slice overwrites elements in place and keeps
	// the tail, so lists that are set at all start empty.
	for key, reset := range map[string]func(){
		"features.windows":      func() { cfg.Features.Windows = nil },
		"features.ema_spans":    func() { cfg.Features.EMASpans = nil },
		"validation.qualifiers": func() { cfg.Validation.Qualifiers = nil },
		"training.targets":      func() { cfg.Training.Targets = nil },
	} {
		if k.Exists(key) {
			reset()
		}
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrLoadConfig, err)
	}

	bounds, err := cfg.Prediction.Bounds.Normalize()
	if err != nil {
		return nil, fmt.Errorf("%w: prediction: %v", ErrInvalidConfig, err)
	}
	cfg.Prediction.Bounds = bounds

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
