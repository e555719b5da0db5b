package signal

import (
	"fmt"
	"math"

	"github.com/kagwert/risktool/internal/mathx"
	"github.com/kagwert/risktool/internal/series"
)

// Construction type names accepted by Construct.
const (
	ConstructMomentum = "momentum"
	ConstructVolTrend = "vol_trend"
	ConstructCarry    = "carry"
)

// Construction windows. Momentum looks back one quarter, carry one month;
// vol_trend compares RiskMetrics EWMA vol against the quarterly realized
// figure.
const (
	momentumWindow = 63
	carryWindow    = 21
	volTrendWindow = 63
	ewmaDecay      = 0.94
)

// Construct builds one raw signal column from market data. It is used when
// no external signal file is supplied. Unknown construction type names are a
// fatal input error, unlike unknown normalization methods which degrade with
// a warning.
func Construct(name string, market *series.MarketSeries) ([]float64, error) {
	switch name {
	case ConstructMomentum:
		return momentumSignal(market), nil
	case ConstructVolTrend:
		return volTrendSignal(market), nil
	case ConstructCarry:
		return carrySignal(market), nil
	default:
		return nil, fmt.Errorf("unknown signal construction type %q", name)
	}
}

// momentumSignal is the trailing cumulative risk-asset return.
func momentumSignal(market *series.MarketSeries) []float64 {
	out := nanSlice(market.Len())
	for t := momentumWindow - 1; t < market.Len(); t++ {
		wealth := 1.0
		for i := t - momentumWindow + 1; i <= t; i++ {
			wealth *= 1 + market.RiskReturns[i]
		}
		out[t] = wealth - 1
	}
	return out
}

// volTrendSignal is the negated excess of EWMA volatility over trailing
// realized volatility: rising short-horizon vol pushes the signal negative.
func volTrendSignal(market *series.MarketSeries) []float64 {
	out := nanSlice(market.Len())
	for t := volTrendWindow - 1; t < market.Len(); t++ {
		window := market.RiskReturns[t-volTrendWindow+1 : t+1]
		realized := math.Max(mathx.StdDev(window), mathx.VolFloor)
		ewma := mathx.EWMAVol(market.RiskReturns[:t+1], ewmaDecay)
		out[t] = -(ewma/realized - 1)
	}
	return out
}

// carrySignal is the trailing mean daily spread of risk over cash returns.
func carrySignal(market *series.MarketSeries) []float64 {
	out := nanSlice(market.Len())
	for t := carryWindow - 1; t < market.Len(); t++ {
		sum := 0.0
		for i := t - carryWindow + 1; i <= t; i++ {
			sum += market.RiskReturns[i] - market.CashReturns[i]
		}
		out[t] = sum / carryWindow
	}
	return out
}
