package models

import "math"

// GradientBoosting is a squared-error gradient-boosted tree ensemble.
//
// Training starts from the mean target and adds LearningRate-scaled trees,
// each fit to the current residuals on a fresh row and column sample. Leaf
// values are shrunk by Lambda (sum / (count + Lambda)).
type GradientBoosting struct {
	Params      Params  `json:"params"`
	Base        float64 `json:"base"`
	NumFeatures int     `json:"numFeatures"`
	Trees       []Tree  `json:"trees"`
}

// NewGradientBoosting creates an untrained boosted ensemble.
func NewGradientBoosting(p Params) *GradientBoosting {
	return &GradientBoosting{Params: p}
}

// Kind returns the algorithm family identifier.
func (m *GradientBoosting) Kind() string {
	return KindGradientBoosting
}

// Fit trains the ensemble from scratch, discarding any previous trees.
func (m *GradientBoosting) Fit(X [][]float64, y []float64) error {
	width, err := checkShape(X, y)
	if err != nil {
		return err
	}
	if err := m.Params.Validate(); err != nil {
		return err
	}

	rng := newRNG(m.Params.Seed)
	n := len(X)

	base := 0.0
	for _, v := range y {
		base += v
	}
	base /= float64(n)

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = base
	}
	residual := make([]float64, n)

	cfg := treeConfig{
		maxDepth: m.Params.MaxDepth,
		minLeaf:  int(math.Max(1, math.Round(m.Params.MinChildWeight))),
		lambda:   m.Params.Lambda,
	}
	if m.Params.MaxBins > 0 {
		cfg.bins = newBinning(X, m.Params.MaxBins)
	}

	sampleSize := int(math.Round(float64(n) * m.Params.Subsample))
	if sampleSize < 1 {
		sampleSize = 1
	}

	trees := make([]Tree, 0, m.Params.Trees)
	for t := 0; t < m.Params.Trees; t++ {
		for i := range residual {
			residual[i] = y[i] - pred[i]
		}

		rows := rng.Perm(n)[:sampleSize]
		cols := sampleColumns(width, m.Params.ColSample, rng)
		tree := growTree(X, residual, rows, cols, cfg, rng)

		for i := range pred {
			pred[i] += m.Params.LearningRate * tree.Predict(X[i])
		}
		trees = append(trees, tree)
	}

	m.Base = base
	m.NumFeatures = width
	m.Trees = trees
	return nil
}

// Predict returns Base plus the shrunken sum of tree outputs.
func (m *GradientBoosting) Predict(x []float64) float64 {
	out := m.Base
	for _, t := range m.Trees {
		out += m.Params.LearningRate * t.Predict(x)
	}
	return out
}
