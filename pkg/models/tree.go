package models

import (
	"math"
	"math/rand/v2"
	"sort"
)

// Node is one vertex of a regression tree, stored in a flat slice. Internal
// nodes route x[Feature] <= Threshold to Left, everything else to Right.
type Node struct {
	Feature   int     `json:"f,omitempty"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v,omitempty"`
	Leaf      bool    `json:"leaf,omitempty"`
}

// Tree is a fitted CART regression tree. Nodes[0] is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict walks the tree for x. Features beyond len(x) read as 0.
func (t Tree) Predict(x []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		v := 0.0
		if n.Feature < len(x) {
			v = x[n.Feature]
		}
		if v <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

type treeConfig struct {
	maxDepth int
	minLeaf  int
	lambda   float64

	// splitFeatures is the number of candidate features drawn at every split;
	// 0 means try every feature in the tree's column set.
	splitFeatures int

	// bins switches split search to histogram mode when set.
	bins *binning
}

type treeBuilder struct {
	X       [][]float64
	y       []float64
	columns []int
	cfg     treeConfig
	rng     *rand.Rand
	nodes   []Node
	scratch []int
}

// growTree fits one tree on the given rows of (X, y) using only columns.
func growTree(X [][]float64, y []float64, rows, columns []int, cfg treeConfig, rng *rand.Rand) Tree {
	if cfg.minLeaf < 1 {
		cfg.minLeaf = 1
	}
	b := &treeBuilder{
		X:       X,
		y:       y,
		columns: columns,
		cfg:     cfg,
		rng:     rng,
		scratch: make([]int, len(rows)),
	}
	b.grow(rows, 0)
	return Tree{Nodes: b.nodes}
}

func (b *treeBuilder) grow(rows []int, depth int) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{})

	sum := 0.0
	for _, r := range rows {
		sum += b.y[r]
	}
	n := float64(len(rows))
	leaf := Node{Leaf: true, Value: sum / (n + b.cfg.lambda)}

	if depth >= b.cfg.maxDepth || len(rows) < 2*b.cfg.minLeaf {
		b.nodes[idx] = leaf
		return idx
	}

	feature, threshold, ok := b.bestSplit(rows, sum)
	if !ok {
		b.nodes[idx] = leaf
		return idx
	}

	left := make([]int, 0, len(rows))
	right := make([]int, 0, len(rows))
	for _, r := range rows {
		if b.X[r][feature] <= threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[idx] = Node{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return idx
}

// bestSplit scans candidate columns for the split with the largest reduction
// in regularised squared error.
func (b *treeBuilder) bestSplit(rows []int, total float64) (int, float64, bool) {
	candidates := b.columns
	if k := b.cfg.splitFeatures; k > 0 && k < len(candidates) {
		perm := b.rng.Perm(len(candidates))[:k]
		picked := make([]int, k)
		for i, p := range perm {
			picked[i] = candidates[p]
		}
		candidates = picked
	}

	if b.cfg.bins != nil {
		return b.bestHistogramSplit(rows, total, candidates)
	}

	lambda := b.cfg.lambda
	n := len(rows)
	parent := total * total / (float64(n) + lambda)

	bestGain := 1e-12
	bestFeature := -1
	bestThreshold := 0.0

	sorted := b.scratch[:n]
	for _, f := range candidates {
		copy(sorted, rows)
		sort.Slice(sorted, func(i, j int) bool {
			return b.X[sorted[i]][f] < b.X[sorted[j]][f]
		})

		leftSum := 0.0
		for k := 1; k < n; k++ {
			leftSum += b.y[sorted[k-1]]
			if k < b.cfg.minLeaf || n-k < b.cfg.minLeaf {
				continue
			}
			lo, hi := b.X[sorted[k-1]][f], b.X[sorted[k]][f]
			if lo == hi {
				continue
			}
			rightSum := total - leftSum
			gain := leftSum*leftSum/(float64(k)+lambda) +
				rightSum*rightSum/(float64(n-k)+lambda) - parent
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
			}
		}
	}

	if bestFeature < 0 || math.IsNaN(bestThreshold) {
		return 0, 0, false
	}
	return bestFeature, bestThreshold, true
}

// bestHistogramSplit is bestSplit over pre-binned features: one pass per
// column to fill a histogram, then a scan over bin boundaries.
func (b *treeBuilder) bestHistogramSplit(rows []int, total float64, candidates []int) (int, float64, bool) {
	lambda := b.cfg.lambda
	n := len(rows)
	parent := total * total / (float64(n) + lambda)
	bins := b.cfg.bins

	bestGain := 1e-12
	bestFeature := -1
	bestThreshold := 0.0

	for _, f := range candidates {
		cuts := bins.cuts[f]
		if len(cuts) == 0 {
			continue
		}
		sums := make([]float64, len(cuts)+1)
		counts := make([]int, len(cuts)+1)
		for _, r := range rows {
			code := bins.codes[r][f]
			sums[code] += b.y[r]
			counts[code]++
		}

		leftSum, leftN := 0.0, 0
		for k := 0; k < len(cuts); k++ {
			leftSum += sums[k]
			leftN += counts[k]
			if counts[k] == 0 || leftN < b.cfg.minLeaf || n-leftN < b.cfg.minLeaf {
				continue
			}
			rightSum := total - leftSum
			gain := leftSum*leftSum/(float64(leftN)+lambda) +
				rightSum*rightSum/(float64(n-leftN)+lambda) - parent
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = cuts[k]
			}
		}
	}

	if bestFeature < 0 {
		return 0, 0, false
	}
	return bestFeature, bestThreshold, true
}

// binning quantises every column into at most maxBins buckets. A value v in
// column f falls in bucket k when cuts[f][k-1] < v <= cuts[f][k].
type binning struct {
	cuts  [][]float64
	codes [][]uint16
}

func newBinning(X [][]float64, maxBins int) *binning {
	width := len(X[0])
	b := &binning{
		cuts:  make([][]float64, width),
		codes: make([][]uint16, len(X)),
	}

	col := make([]float64, len(X))
	for f := 0; f < width; f++ {
		for i, row := range X {
			col[i] = row[f]
		}
		b.cuts[f] = cutPoints(col, maxBins)
	}

	for i, row := range X {
		codes := make([]uint16, width)
		for f, v := range row {
			codes[f] = uint16(sort.SearchFloat64s(b.cuts[f], v))
		}
		b.codes[i] = codes
	}
	return b
}

// cutPoints returns up to maxBins-1 thresholds placed midway between distinct
// values, spread evenly over the distinct values of col.
func cutPoints(col []float64, maxBins int) []float64 {
	uniq := append([]float64(nil), col...)
	sort.Float64s(uniq)
	k := 0
	for i := range uniq {
		if i == 0 || uniq[i] != uniq[k-1] {
			uniq[k] = uniq[i]
			k++
		}
	}
	uniq = uniq[:k]
	if len(uniq) < 2 {
		return nil
	}

	if len(uniq) <= maxBins {
		cuts := make([]float64, len(uniq)-1)
		for i := 1; i < len(uniq); i++ {
			cuts[i-1] = uniq[i-1] + (uniq[i]-uniq[i-1])/2
		}
		return cuts
	}

	cuts := make([]float64, 0, maxBins-1)
	for j := 1; j < maxBins; j++ {
		i := j * len(uniq) / maxBins
		c := uniq[i-1] + (uniq[i]-uniq[i-1])/2
		if len(cuts) == 0 || c > cuts[len(cuts)-1] {
			cuts = append(cuts, c)
		}
	}
	return cuts
}

// sampleColumns draws max(1, round(width*frac)) distinct column indices.
func sampleColumns(width int, frac float64, rng *rand.Rand) []int {
	k := int(math.Round(float64(width) * frac))
	if k < 1 {
		k = 1
	}
	if k >= width {
		all := make([]int, width)
		for i := range all {
			all[i] = i
		}
		return all
	}
	cols := rng.Perm(width)[:k]
	sort.Ints(cols)
	return cols
}

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
