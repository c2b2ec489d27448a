package models

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Evaluation holds held-out error metrics for one model.
type Evaluation struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2"`
}

// Evaluate compares predictions with actual values. R2 is reported as 0 when
// the actual values have no variance, since the ratio is undefined there.
func Evaluate(predicted, actual []float64) Evaluation {
	n := len(actual)
	if n == 0 || len(predicted) != n {
		return Evaluation{}
	}

	ev := Evaluation{
		MAE:  floats.Distance(predicted, actual, 1) / float64(n),
		RMSE: floats.Distance(predicted, actual, 2) / math.Sqrt(float64(n)),
	}

	if _, std := stat.MeanStdDev(actual, nil); n > 1 && std > 0 {
		ev.R2 = stat.RSquaredFrom(predicted, actual, nil)
	}
	return ev
}

// Summary is the mean and standard deviation of a sample, used when logging
// predicted-versus-actual sanity comparisons.
type Summary struct {
	Mean float64
	Std  float64
}

// Summarize computes a Summary. A single value has zero spread.
func Summarize(values []float64) Summary {
	switch len(values) {
	case 0:
		return Summary{}
	case 1:
		return Summary{Mean: values[0]}
	}
	mean, std := stat.MeanStdDev(values, nil)
	return Summary{Mean: mean, Std: std}
}

// PredictAll applies r to every row of X.
func PredictAll(r interface{ Predict([]float64) float64 }, X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		out[i] = r.Predict(x)
	}
	return out
}
