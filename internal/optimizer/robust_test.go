package optimizer

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagwert/risktool/internal/allocation"
	"github.com/kagwert/risktool/internal/objective"
)

func TestRobustCrossValidation(t *testing.T) {
	signals, market := syntheticData(400)
	opts := Options{GridStep: 0.25, Folds: 5, Workers: 4, Seed: 1}

	result, err := NewRobust(testLogger()).Run(context.Background(), signals, market, opts)
	require.NoError(t, err)

	assert.Empty(t, result.Message)
	assert.Equal(t, allocation.MethodSigmoid, result.MappingMethod)
	assert.False(t, math.IsInf(result.Score, -1))
	assert.Equal(t, 333, result.SplitIndex)

	sum := 0.0
	for _, w := range result.Weights {
		assert.GreaterOrEqual(t, w, 0.0)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	require.Len(t, result.FoldMetrics, 5)
	for i, fold := range result.FoldMetrics {
		assert.Equal(t, i+1, fold.Fold)
		assert.Less(t, fold.Start, fold.End)
		assert.LessOrEqual(t, fold.End, 400)
		if i > 0 {
			assert.Equal(t, result.FoldMetrics[i-1].End, fold.Start)
		}
	}

	assert.Equal(t, 333, result.InSample.TradingDays)
	assert.Equal(t, 67, result.OutOfSample.TradingDays)
}

func TestRobustCrossValidationDeterministic(t *testing.T) {
	signals, market := syntheticData(300)
	opts := Options{GridStep: 0.25, Folds: 4, Workers: 4, Seed: 9}

	engine := NewRobust(testLogger())
	first, err := engine.Run(context.Background(), signals, market, opts)
	require.NoError(t, err)
	second, err := engine.Run(context.Background(), signals, market, opts)
	require.NoError(t, err)

	assert.Equal(t, first.Weights, second.Weights)
	assert.Equal(t, first.Score, second.Score)
}

func TestRobustWalkForward(t *testing.T) {
	signals, market := syntheticData(300)
	opts := Options{
		GridStep:      0.25,
		Workers:       4,
		WalkForward:   true,
		ReoptFreqDays: 100,
	}

	result, err := NewRobust(testLogger()).Run(context.Background(), signals, market, opts)
	require.NoError(t, err)

	assert.Empty(t, result.Message)
	assert.Equal(t, 100, result.SplitIndex)
	assert.Equal(t, 100, result.InSample.TradingDays)
	assert.Equal(t, 200, result.OutOfSample.TradingDays)
	assert.False(t, math.IsInf(result.Score, -1))

	sum := 0.0
	for _, w := range result.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestRobustShortSeriesFallsBackToNeutral(t *testing.T) {
	signals, market := syntheticData(50)

	result, err := NewRobust(testLogger()).Run(context.Background(), signals, market, Options{})
	require.NoError(t, err)
	assert.Contains(t, result.Message, "too short")
	assert.Equal(t, []float64{0.5, 0.5}, result.Weights)
}

func TestRobustWalkForwardWindowLongerThanSeries(t *testing.T) {
	signals, market := syntheticData(250)
	opts := Options{WalkForward: true, ReoptFreqDays: 300, GridStep: 0.25}

	result, err := NewRobust(testLogger()).Run(context.Background(), signals, market, opts)
	require.NoError(t, err)
	assert.Contains(t, result.Message, "re-optimization window")
}

func TestRobustBootstrapSummary(t *testing.T) {
	signals, market := syntheticData(200)
	opts := Options{
		GridStep:  0.5,
		Folds:     4,
		Workers:   4,
		Seed:      11,
		Bootstrap: true,
	}

	result, err := NewRobust(testLogger()).Run(context.Background(), signals, market, opts)
	require.NoError(t, err)
	require.NotNil(t, result.Bootstrap)

	bs := result.Bootstrap
	assert.Equal(t, NumBootstrapReplicates, bs.Replicates)
	assert.Equal(t, signals.Names, bs.Names)
	require.Len(t, bs.Mean, 2)
	for j := range bs.Mean {
		assert.GreaterOrEqual(t, bs.Mean[j], 0.0)
		assert.LessOrEqual(t, bs.Mean[j], 1.0)
		assert.LessOrEqual(t, bs.P5[j], bs.P95[j])
		assert.GreaterOrEqual(t, bs.Std[j], 0.0)
	}
}

func TestRobustBootstrapSkippedOnDegradedResult(t *testing.T) {
	signals, market := syntheticData(50)
	opts := Options{Bootstrap: true}

	result, err := NewRobust(testLogger()).Run(context.Background(), signals, market, opts)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Message)
	assert.Nil(t, result.Bootstrap)
}

func TestSummarizeBootstrap(t *testing.T) {
	names := []string{"a", "b"}
	selected := [][]float64{
		{0.6, 0.4},
		nil,
		{0.8, 0.2},
	}

	summary := summarizeBootstrap(names, selected)
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.Replicates)
	assert.InDelta(t, 0.7, summary.Mean[0], 1e-12)
	assert.InDelta(t, 0.3, summary.Mean[1], 1e-12)

	assert.Nil(t, summarizeBootstrap(names, [][]float64{nil, nil}))
}

func TestMeanFoldScoreUsesCache(t *testing.T) {
	signals, market := syntheticData(300)
	opts := Options{Folds: 3}.withDefaults()
	eval := newEvaluator(testLogger(), opts, signals)
	folds := foldBounds(300, 3)
	weights := []float64{0.5, 0.5}

	engine := NewRobust(testLogger())
	first, ok := engine.meanFoldScore(eval, weights, signals, market, folds, opts)
	require.True(t, ok)
	second, ok := engine.meanFoldScore(eval, weights, signals, market, folds, opts)
	require.True(t, ok)

	assert.Equal(t, first, second)
	assert.Positive(t, eval.cache.hits.Load())
}

func TestRobustFoldObjectivesMatchFoldSegments(t *testing.T) {
	signals, market := syntheticData(400)
	opts := Options{GridStep: 0.25, Folds: 5, Workers: 4, Objective: objective.DefaultSpec()}

	result, err := NewRobust(testLogger()).Run(context.Background(), signals, market, opts)
	require.NoError(t, err)
	require.Empty(t, result.Message)
	require.Len(t, result.FoldMetrics, 5)

	defaulted := opts.withDefaults()
	eval := newEvaluator(testLogger(), defaulted, signals)
	targets, err := eval.targetsFor(result.Weights, signals, defaulted.MappingMethod, defaulted.MappingParams)
	require.NoError(t, err)

	// Each record carries the winner's objective on that fold's own segment,
	// so the values cannot all collapse to one cross-fold mean.
	distinct := false
	for _, fold := range result.FoldMetrics {
		want, err := eval.score(result.Weights, targets[fold.Start:fold.End], market.Slice(fold.Start, fold.End))
		require.NoError(t, err)
		assert.InDelta(t, want, fold.Objective, 1e-12, "fold %d", fold.Fold)
		if fold.Objective != result.FoldMetrics[0].Objective {
			distinct = true
		}
	}
	assert.True(t, distinct)
}
