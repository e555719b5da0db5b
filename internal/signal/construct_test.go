package signal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagwert/risktool/internal/series"
)

func constantMarket(n int, riskRet, cashRet float64) *series.MarketSeries {
	market := &series.MarketSeries{
		RiskReturns: make([]float64, n),
		CashReturns: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		market.RiskReturns[i] = riskRet
		market.CashReturns[i] = cashRet
	}
	return market
}

func TestConstructUnknownNameFails(t *testing.T) {
	market := constantMarket(100, 0.001, 0.0001)

	_, err := Construct("sentiment", market)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown signal construction type")
}

func TestConstructMomentum(t *testing.T) {
	market := constantMarket(70, 0.01, 0)

	out, err := Construct(ConstructMomentum, market)
	require.NoError(t, err)
	require.Len(t, out, 70)

	for i := 0; i < 62; i++ {
		assert.True(t, math.IsNaN(out[i]), "index %d in warmup", i)
	}
	want := math.Pow(1.01, 63) - 1
	assert.InDelta(t, want, out[62], 1e-9)
	assert.InDelta(t, want, out[69], 1e-9)
}

func TestConstructCarry(t *testing.T) {
	market := constantMarket(30, 0.01, 0.001)

	out, err := Construct(ConstructCarry, market)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		assert.True(t, math.IsNaN(out[i]), "index %d in warmup", i)
	}
	assert.InDelta(t, 0.009, out[20], 1e-12)
}

func TestConstructVolTrend(t *testing.T) {
	market := constantMarket(80, 0.002, 0)
	// Alternate signs so realized volatility is nonzero.
	for i := range market.RiskReturns {
		if i%2 == 0 {
			market.RiskReturns[i] = -0.002
		}
	}

	out, err := Construct(ConstructVolTrend, market)
	require.NoError(t, err)

	for i := 0; i < 62; i++ {
		assert.True(t, math.IsNaN(out[i]), "index %d in warmup", i)
	}
	for i := 62; i < len(out); i++ {
		assert.False(t, math.IsNaN(out[i]), "index %d should be defined", i)
		assert.False(t, math.IsInf(out[i], 0), "index %d should be finite", i)
	}
}
