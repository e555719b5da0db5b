package optimizer

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagwert/risktool/internal/allocation"
	"github.com/kagwert/risktool/internal/backtest"
	"github.com/kagwert/risktool/internal/objective"
)

func assertSimplexVectors(t *testing.T, vectors [][]float64, n int) {
	t.Helper()
	for i, w := range vectors {
		require.Len(t, w, n, "vector %d", i)
		sum := 0.0
		for _, v := range w {
			assert.GreaterOrEqual(t, v, 0.0, "vector %d", i)
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "vector %d must sum to 1", i)
	}
}

func TestSimplexGridEnumeration(t *testing.T) {
	grid := SimplexGrid(2, 0.1)
	assert.Len(t, grid, 11)
	assertSimplexVectors(t, grid, 2)

	// n=3 with step 0.5 has C(4,2) = 6 lattice points.
	grid = SimplexGrid(3, 0.5)
	assert.Len(t, grid, 6)
	assertSimplexVectors(t, grid, 3)

	assert.Nil(t, SimplexGrid(0, 0.1))
}

func TestSimplexGridSingleSignal(t *testing.T) {
	grid := SimplexGrid(1, 0.1)
	require.Len(t, grid, 1)
	assert.Equal(t, []float64{1}, grid[0])
}

func TestRandomSimplexSamples(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	samples := RandomSimplexSamples(4, 50, rng)
	require.Len(t, samples, 50)
	assertSimplexVectors(t, samples, 4)

	// Same seed reproduces the same draw.
	again := RandomSimplexSamples(4, 50, rand.New(rand.NewSource(42)))
	assert.Equal(t, samples, again)

	assert.Nil(t, RandomSimplexSamples(0, 10, rng))
	assert.Nil(t, RandomSimplexSamples(3, 0, rng))
}

func TestCandidateWeightsFiltersBounds(t *testing.T) {
	opts := Options{
		GridStep:    0.1,
		Constraints: objective.Constraints{SigWtMax: 0.6},
	}

	candidates := candidateWeights(2, opts)
	// Only (0.4,0.6), (0.5,0.5) and (0.6,0.4) survive the cap.
	assert.Len(t, candidates, 3)
	for _, w := range candidates {
		for _, v := range w {
			assert.LessOrEqual(t, v, 0.6)
		}
	}
}

func TestCandidateWeightsRandomFallback(t *testing.T) {
	opts := Options{GridStep: 0.1, RandomSamples: 100, Seed: 7}

	candidates := candidateWeights(maxExactSignals+1, opts)
	assert.Len(t, candidates, 100)
	assertSimplexVectors(t, candidates, maxExactSignals+1)

	// The run seed pins the sample.
	again := candidateWeights(maxExactSignals+1, opts)
	assert.Equal(t, candidates, again)
}

func TestCandidateWeightsCanBeEmpty(t *testing.T) {
	opts := Options{
		GridStep:    0.1,
		Constraints: objective.Constraints{SigWtMin: 0.41, SigWtMax: 0.44},
	}
	assert.Empty(t, candidateWeights(2, opts))
}

func TestFoldBoundsPartition(t *testing.T) {
	folds := foldBounds(400, 5)
	require.Len(t, folds, 5)
	assert.Equal(t, [2]int{67, 133}, folds[0])
	assert.Equal(t, [2]int{333, 400}, folds[4])

	for i, f := range folds {
		assert.Less(t, f[0], f[1], "fold %d", i)
		assert.LessOrEqual(t, f[1], 400, "fold %d", i)
		if i > 0 {
			assert.Equal(t, folds[i-1][1], f[0], "folds must be contiguous")
		}
	}
}

func TestFoldBoundsShortSeries(t *testing.T) {
	for _, T := range []int{2, 3, 7, 11} {
		folds := foldBounds(T, 5)
		prev := 0
		for i, f := range folds {
			assert.Less(t, f[0], f[1], "T=%d fold %d", T, i)
			assert.GreaterOrEqual(t, f[0], prev, "T=%d fold %d overlaps", T, i)
			assert.LessOrEqual(t, f[1], T, "T=%d fold %d", T, i)
			prev = f[1]
		}
	}
}

func TestEvalCacheRoundTrip(t *testing.T) {
	cache := newEvalCache()
	weights := []float64{0.3, 0.7}
	params := allocation.DefaultParams()

	key := cache.key(weights, "step", params, 0, 210)
	_, ok := cache.get(key)
	assert.False(t, ok)

	cache.put(key, 1.25)
	score, ok := cache.get(key)
	require.True(t, ok)
	assert.Equal(t, 1.25, score)

	// The segment bounds are part of the identity.
	otherKey := cache.key(weights, "step", params, 0, 211)
	assert.NotEqual(t, key, otherKey)
	_, ok = cache.get(otherKey)
	assert.False(t, ok)
}

func TestConstrainedSimulationTightensEquityBounds(t *testing.T) {
	sim := backtest.Config{EqMin: 0, EqMax: 1}

	got := constrainedSimulation(sim, objective.Constraints{EqMin: 0.4, EqMax: 0.6})
	assert.Equal(t, 0.4, got.EqMin)
	assert.Equal(t, 0.6, got.EqMax)

	// Zero constraint values leave the simulation bounds alone.
	assert.Equal(t, sim, constrainedSimulation(sim, objective.Constraints{}))

	// Constraints never widen already tighter simulation bounds.
	narrow := backtest.Config{EqMin: 0.3, EqMax: 0.5}
	got = constrainedSimulation(narrow, objective.Constraints{EqMin: 0.1, EqMax: 0.9})
	assert.Equal(t, 0.3, got.EqMin)
	assert.Equal(t, 0.5, got.EqMax)

	// An unset simulation EqMax still picks up the constraint bound.
	got = constrainedSimulation(backtest.Config{}, objective.Constraints{EqMax: 0.6})
	assert.Equal(t, 0.6, got.EqMax)
}

func TestNewEvaluatorAppliesConstraintBounds(t *testing.T) {
	signals, _ := syntheticData(50)
	opts := Options{Constraints: objective.Constraints{EqMin: 0.4, EqMax: 0.6}}

	eval := newEvaluator(testLogger(), opts, signals)
	assert.Equal(t, 0.4, eval.simulation.EqMin)
	assert.Equal(t, 0.6, eval.simulation.EqMax)
}
