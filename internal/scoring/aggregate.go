package scoring

import (
	"fmt"
	"sort"
)

// MaxScore is the upper bound of every engine score.
const MaxScore = 100.0

// Aggregate sums the weight of every triggered factor and clamps to
// [0, MaxScore]. Weights are summed in ascending order so any permutation of
// the same factor set produces a bit-identical score.
func Aggregate(factors []Factor) float64 {
	weights := make([]float64, 0, len(factors))
	for _, f := range factors {
		if f.Weight < 0 {
			panic(fmt.Sprintf("scoring: factor %q has negative weight %f", f.Name, f.Weight))
		}
		if f.Triggered {
			weights = append(weights, f.Weight)
		}
	}
	sort.Float64s(weights)

	var total float64
	for _, w := range weights {
		total += w
	}
	return clamp(total, 0, MaxScore)
}
