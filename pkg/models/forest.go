package models

import "math"

// RandomForest averages deep regression trees grown on bootstrap samples.
// LearningRate and Lambda are ignored; leaves hold plain means.
type RandomForest struct {
	Params      Params `json:"params"`
	NumFeatures int    `json:"numFeatures"`
	Trees       []Tree `json:"trees"`
}

// NewRandomForest creates an untrained forest.
func NewRandomForest(p Params) *RandomForest {
	return &RandomForest{Params: p}
}

// Kind returns the algorithm family identifier.
func (m *RandomForest) Kind() string {
	return KindRandomForest
}

// Fit grows Params.Trees trees, each on a bootstrap sample drawn with
// replacement.
func (m *RandomForest) Fit(X [][]float64, y []float64) error {
	width, err := checkShape(X, y)
	if err != nil {
		return err
	}
	if err := m.Params.Validate(); err != nil {
		return err
	}

	rng := newRNG(m.Params.Seed)
	n := len(X)

	splitFeatures := int(math.Round(float64(width) * m.Params.ColSample))
	if splitFeatures < 1 {
		splitFeatures = 1
	}
	cfg := treeConfig{
		maxDepth:      m.Params.MaxDepth,
		minLeaf:       int(math.Max(1, math.Round(m.Params.MinChildWeight))),
		splitFeatures: splitFeatures,
	}
	if m.Params.MaxBins > 0 {
		cfg.bins = newBinning(X, m.Params.MaxBins)
	}

	all := make([]int, width)
	for i := range all {
		all[i] = i
	}

	sampleSize := int(math.Round(float64(n) * m.Params.Subsample))
	if sampleSize < 1 {
		sampleSize = 1
	}

	trees := make([]Tree, 0, m.Params.Trees)
	for t := 0; t < m.Params.Trees; t++ {
		rows := make([]int, sampleSize)
		for i := range rows {
			rows[i] = rng.IntN(n)
		}
		trees = append(trees, growTree(X, y, rows, all, cfg, rng))
	}

	m.NumFeatures = width
	m.Trees = trees
	return nil
}

// Predict returns the mean of the tree outputs, or 0 for an untrained forest.
func (m *RandomForest) Predict(x []float64) float64 {
	if len(m.Trees) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range m.Trees {
		sum += t.Predict(x)
	}
	return sum / float64(len(m.Trees))
}
