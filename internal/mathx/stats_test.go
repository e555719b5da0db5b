package mathx

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMedianAndMAD(t *testing.T) {
	values := []float64{1, 2, 3, 4, 100}

	assert.Equal(t, 3.0, Median(values))
	// Deviations from 3: {2,1,0,1,97} -> median 1.
	assert.Equal(t, 1.0, MAD(values))

	even := []float64{1, 2, 3, 4}
	assert.Equal(t, 2.5, Median(even))
}

func TestStdDevPopulation(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	// Classic population example with variance 4.
	assert.InDelta(t, 2.0, StdDev(values), 1e-12)

	assert.Equal(t, 0.0, StdDev([]float64{5}))
	assert.Equal(t, 0.0, StdDev(nil))
}

func TestRankMidpoint(t *testing.T) {
	values := []float64{1, 2, 2, 3}

	assert.InDelta(t, 0.5, Rank(values, 2), 1e-12)
	assert.InDelta(t, 0.875, Rank(values, 3), 1e-12)
	assert.InDelta(t, 0.125, Rank(values, 1), 1e-12)
	assert.Equal(t, 0.5, Rank(nil, 1))
}

func TestPercentileNearestRank(t *testing.T) {
	values := []float64{10, 20, 30, 40, 50}

	assert.Equal(t, 10.0, Percentile(values, 0))
	assert.Equal(t, 30.0, Percentile(values, 0.5))
	assert.Equal(t, 50.0, Percentile(values, 1))
}

func TestAnnualizedReturnGeometric(t *testing.T) {
	returns := []float64{0.01, -0.005, 0.02}
	wealth := 1.01 * 0.995 * 1.02
	expected := math.Pow(wealth, 252.0/3.0) - 1

	assert.InDelta(t, expected, AnnualizedReturn(returns), 1e-12)
	assert.Equal(t, 0.0, AnnualizedReturn(nil))
	assert.Equal(t, -1.0, AnnualizedReturn([]float64{-1.5}))
}

func TestMaxDrawdown(t *testing.T) {
	// Peak 1.1, trough 1.1*0.8 = 0.88 -> 20% drawdown.
	returns := []float64{0.1, -0.2, 0.05}
	assert.InDelta(t, 0.2, MaxDrawdown(returns), 1e-12)

	assert.Equal(t, 0.0, MaxDrawdown([]float64{0.01, 0.02}))
}

func TestRatioFloors(t *testing.T) {
	flat := []float64{0.001, 0.001, 0.001}

	// Zero volatility hits the floor instead of dividing by zero.
	assert.False(t, math.IsInf(Sharpe(flat), 0))
	assert.False(t, math.IsNaN(Sortino(flat)))
	assert.False(t, math.IsInf(Calmar(flat), 0))
}

func TestEWMAVol(t *testing.T) {
	returns := []float64{0.02, -0.01}
	variance := 0.94*((1-0.94)*0.02*0.02) + (1-0.94)*0.01*0.01

	assert.InDelta(t, math.Sqrt(variance), EWMAVol(returns, 0.94), 1e-15)
	assert.Equal(t, 0.0, EWMAVol(nil, 0.94))
}

func TestMeanAbsDiffSkipsNaN(t *testing.T) {
	values := []float64{0.5, math.NaN(), 0.7, 0.6}

	// Only the 0.7 -> 0.6 step is a valid consecutive pair.
	assert.InDelta(t, 0.1, MeanAbsDiff(values), 1e-12)
	assert.Equal(t, 0.0, MeanAbsDiff([]float64{1}))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-0.5, 0, 1))
	assert.Equal(t, 1.0, Clamp(1.5, 0, 1))
	assert.Equal(t, 0.3, Clamp(0.3, 0, 1))
}
