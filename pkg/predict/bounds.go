package predict

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/HatiCode/courtcast/pkg/gamelog"
)

// Range is a closed interval of plausible single-game values.
type Range struct {
	Min float64 `json:"min" koanf:"min"`
	Max float64 `json:"max" koanf:"max"`
}

// Clamp limits v to the range.
func (r Range) Clamp(v float64) float64 {
	return math.Max(r.Min, math.Min(v, r.Max))
}

// Bounds maps a position code to per-target ranges.
type Bounds map[string]map[string]Range

// DefaultBounds is the hand-tuned position table. Guards get low rebound
// ceilings, bigs get low assist ceilings.
func DefaultBounds() Bounds {
	box := func(pts, reb, ast float64) map[string]Range {
		return map[string]Range{
			gamelog.Points:   {Min: 0, Max: pts},
			gamelog.Rebounds: {Min: 0, Max: reb},
			gamelog.Assists:  {Min: 0, Max: ast},
		}
	}
	return Bounds{
		gamelog.PointGuard:    box(50, 10, 18),
		gamelog.ShootingGuard: box(55, 12, 15),
		gamelog.SmallForward:  box(50, 15, 12),
		gamelog.PowerForward:  box(45, 20, 10),
		gamelog.Center:        box(45, 25, 12),
		gamelog.Guard:         box(55, 12, 18),
		gamelog.Forward:       box(50, 18, 12),
	}
}

// Normalize re-keys the table by position code so entries written as "pg" or
// "Point Guard" resolve. Entries for the same code are merged, with aliases
// overriding the entry keyed by the code itself.
func (b Bounds) Normalize() (Bounds, error) {
	keys := make([]string, 0, len(b))
	for pos := range b {
		if gamelog.NormalizePosition(pos) == "" {
			return nil, fmt.Errorf("unknown position %q in bounds", pos)
		}
		keys = append(keys, pos)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci := gamelog.NormalizePosition(keys[i]) == keys[i]
		cj := gamelog.NormalizePosition(keys[j]) == keys[j]
		if ci != cj {
			return ci
		}
		return keys[i] < keys[j]
	})

	out := make(Bounds, len(b))
	for _, pos := range keys {
		code := gamelog.NormalizePosition(pos)
		if out[code] == nil {
			out[code] = make(map[string]Range, len(b[pos]))
		}
		for t, r := range b[pos] {
			out[code][t] = r
		}
	}
	return out, nil
}

// DefaultRanges apply when the position is unknown or missing from Bounds.
func DefaultRanges() map[string]Range {
	return map[string]Range{
		gamelog.Points:   {Min: 0, Max: 60},
		gamelog.Rebounds: {Min: 0, Max: 25},
		gamelog.Assists:  {Min: 0, Max: 20},
	}
}

// Options configures bounding and the error-based interval.
type Options struct {
	Bounds   Bounds           `json:"bounds" koanf:"bounds"`
	Fallback map[string]Range `json:"fallback" koanf:"fallback"`

	// MAEMultiplier converts a held-out MAE into an approximate std.
	MAEMultiplier float64 `json:"maeMultiplier" koanf:"mae_multiplier"`
	// Z is the half-width of the interval in std units.
	Z float64 `json:"z" koanf:"z"`
	// DefaultStd is used when an artifact has no recorded MAE.
	DefaultStd float64 `json:"defaultStd" koanf:"default_std"`
	// ClipTolerance is the smallest clip that gets logged and counted.
	ClipTolerance float64 `json:"clipTolerance" koanf:"clip_tolerance"`
}

// DefaultOptions returns the stock bounding configuration.
func DefaultOptions() Options {
	return Options{
		Bounds:        DefaultBounds(),
		Fallback:      DefaultRanges(),
		MAEMultiplier: 1.25,
		Z:             1.96,
		DefaultStd:    3.0,
		ClipTolerance: 0.5,
	}
}

// Validate checks every range is non-negative and ordered, and that a fallback
// exists for each target.
func (o Options) Validate() error {
	check := func(where, target string, r Range) error {
		if r.Min < 0 || r.Max < r.Min || math.IsNaN(r.Min) || math.IsNaN(r.Max) {
			return fmt.Errorf("%s %s range [%v, %v] must satisfy 0 <= min <= max", where, target, r.Min, r.Max)
		}
		return nil
	}
	for pos, byTarget := range o.Bounds {
		if gamelog.NormalizePosition(pos) != pos {
			return fmt.Errorf("unknown position code %q in bounds", pos)
		}
		for t, r := range byTarget {
			if err := check(pos, t, r); err != nil {
				return err
			}
		}
	}
	for _, t := range gamelog.Targets {
		r, ok := o.Fallback[t]
		if !ok {
			return fmt.Errorf("missing fallback range for %s", t)
		}
		if err := check("fallback", t, r); err != nil {
			return err
		}
	}
	if o.MAEMultiplier <= 0 || o.Z <= 0 || o.DefaultStd <= 0 {
		return errors.New("mae multiplier, z and default std must be > 0")
	}
	if o.ClipTolerance < 0 {
		return fmt.Errorf("clip tolerance must be >= 0, got %v", o.ClipTolerance)
	}
	return nil
}

// Range returns the plausible range for target at position. position may be a
// code or a long name; unknown positions use the fallback range.
func (o Options) Range(position, target string) Range {
	if byTarget, ok := o.Bounds[gamelog.NormalizePosition(position)]; ok {
		if r, ok := byTarget[target]; ok {
			return r
		}
	}
	if r, ok := o.Fallback[target]; ok {
		return r
	}
	return Range{Min: 0, Max: math.Inf(1)}
}

// Interval is a rough error band around a point estimate. It is derived from
// held-out MAE, not from a predictive distribution, so Calibrated is always
// false.
type Interval struct {
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	Std        float64 `json:"std"`
	Calibrated bool    `json:"calibrated"`
}

// interval computes predicted +/- Z*std clipped to r, with std = MAE*multiplier.
func (o Options) interval(predicted, mae float64, r Range) Interval {
	std := o.DefaultStd
	if mae > 0 && !math.IsNaN(mae) && !math.IsInf(mae, 0) {
		std = mae * o.MAEMultiplier
	}
	half := o.Z * std
	return Interval{
		Lower: math.Max(r.Min, predicted-half),
		Upper: math.Min(r.Max, predicted+half),
		Std:   std,
	}
}
