// Package ensemble blends several regressors for the primary target into one
// estimate.
//
// Three component slots exist: a general model (A), an alternate-family
// general model (B) and an archetype model chosen by the player's season
// baseline (star above the high threshold, role player below the low one).
// Missing components drop out and the remaining weights are renormalised to
// sum to 1. With nothing available the combiner returns Fallback.
package ensemble

import (
	"errors"
	"fmt"
	"math"
)

// Component names as reported in Breakdown.
const (
	General   = "general"
	Alternate = "alternate"
	Star      = "star"
	Role      = "role"
)

// Predictor is anything that maps a feature vector to a value.
type Predictor interface {
	Predict(x []float64) float64
}

// Weights are the fixed blend weights for the three slots.
type Weights struct {
	General   float64 `json:"general" koanf:"general"`
	Alternate float64 `json:"alternate" koanf:"alternate"`
	Archetype float64 `json:"archetype" koanf:"archetype"`
}

// DefaultWeights returns the 0.4 / 0.4 / 0.2 split.
func DefaultWeights() Weights {
	return Weights{General: 0.4, Alternate: 0.4, Archetype: 0.2}
}

// Validate rejects negative weights and an all-zero set.
func (w Weights) Validate() error {
	if w.General < 0 || w.Alternate < 0 || w.Archetype < 0 {
		return fmt.Errorf("ensemble weights must be >= 0, got %+v", w)
	}
	if w.General+w.Alternate+w.Archetype <= 0 {
		return errors.New("ensemble weights must not all be zero")
	}
	return nil
}

// Components holds whichever sub-models are available. Nil fields are absent.
type Components struct {
	General   Predictor
	Alternate Predictor
	Star      Predictor
	Role      Predictor
}

// Combiner applies Weights to the available Components.
type Combiner struct {
	Weights       Weights
	HighThreshold float64
	LowThreshold  float64
	Fallback      float64
}

// Contribution is one component's share in a combined prediction.
type Contribution struct {
	Component string  `json:"component"`
	Value     float64 `json:"value"`
	Weight    float64 `json:"weight"`
}

// Breakdown describes how a combined value was produced. Weights in
// Contributions are the effective (renormalised) weights.
type Breakdown struct {
	Value         float64        `json:"value"`
	Contributions []Contribution `json:"contributions"`
	UsedFallback  bool           `json:"usedFallback"`
}

// Archetype picks the archetype slot for a season baseline. It returns "" when
// the baseline is unknown (NaN) or sits between the thresholds.
func (c Combiner) Archetype(baseline float64) string {
	switch {
	case math.IsNaN(baseline):
		return ""
	case baseline > c.HighThreshold:
		return Star
	case baseline < c.LowThreshold:
		return Role
	}
	return ""
}

// Combine blends the components for x. baseline is the player's season-to-date
// average of the primary target, or NaN when unknown. The result is floored at
// zero.
func (c Combiner) Combine(x []float64, baseline float64, comps Components) Breakdown {
	type part struct {
		name   string
		model  Predictor
		weight float64
	}

	parts := []part{
		{General, comps.General, c.Weights.General},
		{Alternate, comps.Alternate, c.Weights.Alternate},
	}
	switch c.Archetype(baseline) {
	case Star:
		parts = append(parts, part{Star, comps.Star, c.Weights.Archetype})
	case Role:
		parts = append(parts, part{Role, comps.Role, c.Weights.Archetype})
	}

	var (
		contributions []Contribution
		total         float64
	)
	for _, p := range parts {
		if p.model == nil || p.weight <= 0 {
			continue
		}
		contributions = append(contributions, Contribution{
			Component: p.name,
			Value:     p.model.Predict(x),
			Weight:    p.weight,
		})
		total += p.weight
	}

	if len(contributions) == 0 {
		return Breakdown{Value: math.Max(0, c.Fallback), UsedFallback: true}
	}

	value := 0.0
	for i := range contributions {
		contributions[i].Weight /= total
		value += contributions[i].Weight * contributions[i].Value
	}

	return Breakdown{Value: math.Max(0, value), Contributions: contributions}
}
