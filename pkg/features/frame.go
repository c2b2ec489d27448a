package features

import (
	"math"
	"time"
)

// Row is the feature vector for one player-game. Values holds every defined
// feature; a feature that could not be computed (not enough history) is
// absent. Labels holds the same-game value of each target and is only set on
// training rows.
type Row struct {
	PlayerID string             `json:"playerId"`
	Position string             `json:"position,omitempty"`
	Date     time.Time          `json:"date"`
	Values   map[string]float64 `json:"values"`
	Labels   map[string]float64 `json:"labels,omitempty"`
}

// Value returns the named feature and whether it is defined.
func (r Row) Value(name string) (float64, bool) {
	v, ok := r.Values[name]
	return v, ok
}

// Label returns the same-game value of target, or NaN when unknown.
func (r Row) Label(target string) float64 {
	if v, ok := r.Labels[target]; ok {
		return v
	}
	return math.NaN()
}

// Vector lays the row out in the order given by names. Undefined features are
// filled with 0 and reported in missing.
func (r Row) Vector(names []string) (vec []float64, missing []string) {
	vec = make([]float64, len(names))
	for i, name := range names {
		v, ok := r.Values[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		vec[i] = v
	}
	return vec, missing
}

// Frame is a feature table, one Row per player-game.
type Frame struct {
	Rows []Row
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Rows)
}

// Labelled returns the rows that have a valid (non-missing) label for target.
func (f *Frame) Labelled(target string) *Frame {
	out := &Frame{Rows: make([]Row, 0, len(f.Rows))}
	for _, r := range f.Rows {
		if !math.IsNaN(r.Label(target)) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Matrix returns the rows laid out by names, with undefined features as 0.
func (f *Frame) Matrix(names []string) [][]float64 {
	X := make([][]float64, len(f.Rows))
	for i, r := range f.Rows {
		X[i], _ = r.Vector(names)
	}
	return X
}

// Labels returns the target column. Missing labels are NaN.
func (f *Frame) Labels(target string) []float64 {
	y := make([]float64, len(f.Rows))
	for i, r := range f.Rows {
		y[i] = r.Label(target)
	}
	return y
}

// Column returns one feature across all rows, with undefined values as 0 to
// match what the models are trained on.
func (f *Frame) Column(name string) []float64 {
	col := make([]float64, len(f.Rows))
	for i, r := range f.Rows {
		col[i] = r.Values[name]
	}
	return col
}
