package training

import (
	"math/rand/v2"
	"sort"

	"github.com/HatiCode/courtcast/pkg/features"
)

// Split partitions rows into train and test sets.
//
// When every row is dated the split is chronological: rows are ordered by date
// (ties broken by player) and the earliest fraction becomes the training set,
// so no test game precedes a training game. Otherwise rows are shuffled with
// seed and split at the same fraction. The input slice is not modified.
func Split(rows []features.Row, fraction float64, seed uint64) (train, test []features.Row, chronological bool) {
	ordered := make([]features.Row, len(rows))
	copy(ordered, rows)

	chronological = len(rows) > 0
	for _, r := range rows {
		if r.Date.IsZero() {
			chronological = false
			break
		}
	}

	if chronological {
		sort.SliceStable(ordered, func(i, j int) bool {
			if !ordered[i].Date.Equal(ordered[j].Date) {
				return ordered[i].Date.Before(ordered[j].Date)
			}
			return ordered[i].PlayerID < ordered[j].PlayerID
		})
	} else {
		rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		rng.Shuffle(len(ordered), func(i, j int) {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		})
	}

	cut := int(float64(len(ordered)) * fraction)
	return ordered[:cut], ordered[cut:], chronological
}
