// Package backtest simulates a two-asset daily allocation against realistic
// frictions: weight drift between rebalances, periodic rebalancing with
// transaction costs, and a drawdown stop-loss with hysteresis.
package backtest

import (
	"fmt"
	"math"

	"github.com/kagwert/risktool/internal/allocation"
	"github.com/kagwert/risktool/internal/mathx"
	"github.com/kagwert/risktool/internal/metrics"
	"github.com/kagwert/risktool/internal/series"
)

// Config holds simulation parameters. Zero values fall back to the documented
// defaults via withDefaults.
type Config struct {
	// RebalanceFreqDays is the trading-day spacing between rebalances.
	// Default 21.
	RebalanceFreqDays int
	// TxCostRate is charged per unit of turnover at each rebalance. Zero
	// disables costs; the configured default is 0.001 (10 bps).
	TxCostRate float64
	// EqMin/EqMax bound the target equity weight. Defaults 0 and 1.
	EqMin float64
	EqMax float64
	// StopLossDD triggers the drawdown stop when the portfolio drawdown
	// reaches it; the stop releases only below half the threshold. 0
	// disables the stop.
	StopLossDD float64
}

func (c Config) withDefaults() Config {
	if c.RebalanceFreqDays <= 0 {
		c.RebalanceFreqDays = 21
	}
	if c.TxCostRate < 0 {
		c.TxCostRate = 0
	}
	if c.EqMax <= 0 {
		c.EqMax = 1
	}
	if c.EqMin < 0 {
		c.EqMin = 0
	}
	if c.EqMax > 1 {
		c.EqMax = 1
	}
	if c.EqMin > c.EqMax {
		c.EqMin = c.EqMax
	}
	return c
}

// simState is the per-day persistent state of the simulation loop. It has a
// single owner: Simulate.
type simState struct {
	held        float64
	daysSince   int
	wealth      float64
	runningMax  float64
	stopped     bool
}

// Simulate runs the allocation state machine over the full sample and returns
// a freshly allocated Result. Re-running with identical inputs yields
// bit-identical output.
func Simulate(targets []float64, market *series.MarketSeries, cfg Config) (*Result, error) {
	if err := market.Validate(); err != nil {
		return nil, fmt.Errorf("invalid market series: %w", err)
	}
	if len(targets) != market.Len() {
		return nil, fmt.Errorf("target weights length %d does not match market length %d", len(targets), market.Len())
	}
	cfg = cfg.withDefaults()
	metrics.RecordSimulation()

	T := market.Len()
	result := newResult(T, market)
	copy(result.TargetWeights, targets)

	state := simState{
		held:       clampTarget(targets[0], cfg),
		wealth:     1,
		runningMax: 1,
	}

	for t := 0; t < T; t++ {
		riskRet := market.RiskReturns[t]
		cashRet := market.CashReturns[t]

		// 1. Realize today's return with the currently held weight.
		w := state.held
		result.RealizedWeights[t] = w
		gross := w*riskRet + (1-w)*cashRet

		// 2. Drawdown as of today, pre-cost, drives the stop hysteresis.
		grossWealth := state.wealth * (1 + gross)
		peak := state.runningMax
		if grossWealth > peak {
			peak = grossWealth
		}
		drawdown := 0.0
		if peak > 0 {
			drawdown = 1 - grossWealth/peak
		}

		// 3. Drift the held weight by each asset's realized return.
		drifted := driftWeight(w, riskRet, cashRet)

		// 4. Stop hysteresis: release below half threshold, trip at the
		// full threshold.
		if cfg.StopLossDD > 0 {
			if state.stopped && drawdown < 0.5*cfg.StopLossDD {
				state.stopped = false
			} else if !state.stopped && drawdown >= cfg.StopLossDD {
				state.stopped = true
			}
		}

		// 5. Rebalance on day 1 and on schedule; otherwise carry the drift.
		net := gross
		turnover := 0.0
		if t == 0 || state.daysSince >= cfg.RebalanceFreqDays {
			target := clampTarget(targets[t], cfg)
			if state.stopped {
				target = cfg.EqMin
			}
			turnover = math.Abs(target - drifted)
			net = gross - turnover*cfg.TxCostRate
			state.held = target
			state.daysSince = 0
		} else {
			state.held = drifted
			if state.stopped {
				// Forced de-risk applies daily, not just on schedule.
				state.held = cfg.EqMin
			}
		}
		state.daysSince++

		state.wealth *= 1 + net
		if state.wealth > state.runningMax {
			state.runningMax = state.wealth
		}

		result.Returns[t] = net
		result.Wealth[t] = state.wealth
		result.Turnover[t] = turnover
		result.Drawdown[t] = 0
		if state.runningMax > 0 {
			result.Drawdown[t] = 1 - state.wealth/state.runningMax
		}
	}

	return result, nil
}

// driftWeight applies buy-and-hold re-weighting; a near-zero denominator
// leaves the weight unchanged.
func driftWeight(w, riskRet, cashRet float64) float64 {
	denom := w*(1+riskRet) + (1-w)*(1+cashRet)
	if math.Abs(denom) < 1e-12 {
		return w
	}
	return w * (1 + riskRet) / denom
}

// clampTarget bounds a target weight to [EqMin, EqMax]; a NaN target means
// the mapping layer had no information, so hold the neutral weight.
func clampTarget(target float64, cfg Config) float64 {
	if math.IsNaN(target) {
		target = allocation.Neutral
	}
	return mathx.Clamp(target, cfg.EqMin, cfg.EqMax)
}
