package optimizer

import (
	"math/rand"
	"sort"
)

// SimplexGrid enumerates every weight vector of dimension n whose entries lie
// on a lattice of the given step and sum to 1. The step is snapped to an
// integer number of units so the vectors sum to 1 exactly.
func SimplexGrid(n int, step float64) [][]float64 {
	if n <= 0 {
		return nil
	}
	units := int(1.0/step + 0.5)
	if units < 1 {
		units = 1
	}
	var out [][]float64
	current := make([]int, n)
	var walk func(pos, remaining int)
	walk = func(pos, remaining int) {
		if pos == n-1 {
			current[pos] = remaining
			weights := make([]float64, n)
			for i, u := range current {
				weights[i] = float64(u) / float64(units)
			}
			out = append(out, weights)
			return
		}
		for u := 0; u <= remaining; u++ {
			current[pos] = u
			walk(pos+1, remaining-u)
		}
	}
	walk(0, units)
	return out
}

// RandomSimplexSamples draws count weight vectors uniformly from the
// n-simplex using sorted-uniform spacings. The caller owns the rng so runs
// stay reproducible.
func RandomSimplexSamples(n, count int, rng *rand.Rand) [][]float64 {
	if n <= 0 || count <= 0 {
		return nil
	}
	out := make([][]float64, 0, count)
	cuts := make([]float64, n-1)
	for i := 0; i < count; i++ {
		for j := range cuts {
			cuts[j] = rng.Float64()
		}
		sort.Float64s(cuts)
		weights := make([]float64, n)
		prev := 0.0
		for j, c := range cuts {
			weights[j] = c - prev
			prev = c
		}
		weights[n-1] = 1 - prev
		out = append(out, weights)
	}
	return out
}

// candidateWeights builds the candidate set for an optimization run: exact
// lattice enumeration for small signal counts, seeded random sampling
// otherwise, filtered by the per-signal weight bounds. The returned slice may
// be empty when the bounds admit no lattice point.
func candidateWeights(n int, opts Options) [][]float64 {
	var all [][]float64
	if n <= maxExactSignals {
		all = SimplexGrid(n, opts.GridStep)
	} else {
		rng := rand.New(rand.NewSource(opts.Seed))
		all = RandomSimplexSamples(n, opts.RandomSamples, rng)
	}
	filtered := all[:0]
	for _, w := range all {
		if opts.Constraints.AllowsVector(w) {
			filtered = append(filtered, w)
		}
	}
	return filtered
}
