package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// trailing returns the non-missing values among the last n entries strictly
// before index i. Index i itself is never read.
func trailing(series []float64, i, n int) []float64 {
	start := max(0, i-n)
	out := make([]float64, 0, i-start)
	for _, v := range series[start:i] {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func mean(vals []float64, minGames int) float64 {
	if len(vals) == 0 || len(vals) < minGames {
		return math.NaN()
	}
	return stat.Mean(vals, nil)
}

// stddev is the sample standard deviation; it needs at least two values.
func stddev(vals []float64, minGames int) float64 {
	if len(vals) < max(2, minGames) {
		return math.NaN()
	}
	return stat.StdDev(vals, nil)
}

func maximum(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	return floats.Max(vals)
}

func minimum(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	return floats.Min(vals)
}

func count(vals []float64, keep func(float64) bool) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	n := 0
	for _, v := range vals {
		if keep(v) {
			n++
		}
	}
	return float64(n)
}

// ema is the exponentially weighted mean of the games before i with
// alpha = 2/(span+1) and weights normalised over the games seen. Missing games
// keep their slot in the decay.
func ema(series []float64, i, span int) float64 {
	alpha := 2 / (float64(span) + 1)
	decay := 1 - alpha

	var num, den float64
	w := 1.0
	for j := i - 1; j >= 0 && w > 1e-12; j-- {
		if v := series[j]; !math.IsNaN(v) {
			num += w * v
			den += w
		}
		w *= decay
	}
	if den == 0 {
		return math.NaN()
	}
	return num / den
}

// lastValue returns the most recent non-missing value before i.
func lastValue(series []float64, i int) float64 {
	for j := i - 1; j >= 0; j-- {
		if !math.IsNaN(series[j]) {
			return series[j]
		}
	}
	return math.NaN()
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
