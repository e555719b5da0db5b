package backtest

import (
	"time"

	"github.com/kagwert/risktool/internal/series"
)

// Benchmark holds one passive comparison series computed over the same date
// range as the simulation, free of drift and rebalance logic.
type Benchmark struct {
	Returns []float64 `json:"returns"`
	Wealth  []float64 `json:"wealth"`
}

// Result is the full output of one simulation run. It is created fresh per
// call and never mutated afterwards.
type Result struct {
	Dates           []time.Time `json:"dates,omitempty"`
	Returns         []float64   `json:"returns"`
	Wealth          []float64   `json:"wealth"`
	TargetWeights   []float64   `json:"target_weights"`
	RealizedWeights []float64   `json:"realized_weights"`
	Turnover        []float64   `json:"turnover"`
	Drawdown        []float64   `json:"drawdown"`

	// Constant 60/40 risk/cash mix and 100% risk asset.
	Benchmark6040 Benchmark `json:"benchmark_60_40"`
	BenchmarkRisk Benchmark `json:"benchmark_risk"`
}

func newResult(T int, market *series.MarketSeries) *Result {
	result := &Result{
		Returns:         make([]float64, T),
		Wealth:          make([]float64, T),
		TargetWeights:   make([]float64, T),
		RealizedWeights: make([]float64, T),
		Turnover:        make([]float64, T),
		Drawdown:        make([]float64, T),
		Benchmark6040:   constantMixBenchmark(market, 0.6),
		BenchmarkRisk:   constantMixBenchmark(market, 1.0),
	}
	if len(market.Dates) == T {
		result.Dates = market.Dates
	}
	return result
}

// constantMixBenchmark compounds a fixed-weight blend of the two assets.
func constantMixBenchmark(market *series.MarketSeries, riskWeight float64) Benchmark {
	T := market.Len()
	bench := Benchmark{
		Returns: make([]float64, T),
		Wealth:  make([]float64, T),
	}
	wealth := 1.0
	for t := 0; t < T; t++ {
		r := riskWeight*market.RiskReturns[t] + (1-riskWeight)*market.CashReturns[t]
		wealth *= 1 + r
		bench.Returns[t] = r
		bench.Wealth[t] = wealth
	}
	return bench
}

// FinalWealth returns the last cumulative wealth value, 1 for an empty run.
func (r *Result) FinalWealth() float64 {
	if len(r.Wealth) == 0 {
		return 1
	}
	return r.Wealth[len(r.Wealth)-1]
}

// TotalTurnover sums turnover across all rebalances.
func (r *Result) TotalTurnover() float64 {
	sum := 0.0
	for _, t := range r.Turnover {
		sum += t
	}
	return sum
}
