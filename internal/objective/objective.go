// Package objective scores backtest outcomes for the weight-search engines.
// The same blend, constraint penalties and regularization terms are shared by
// the composite and robust optimizers.
package objective

import (
	"math"

	"github.com/kagwert/risktool/internal/backtest"
	"github.com/kagwert/risktool/internal/mathx"
)

// Priority selects which constraint is enforced hard rather than penalized.
type Priority string

// Constraint priorities.
const (
	PriorityNone         Priority = "none"
	PriorityEquityBounds Priority = "equity_bounds"
	PriorityTurnover     Priority = "turnover"
	PriorityDrawdown     Priority = "drawdown"
)

// Rejected is the objective value of a hard-rejected candidate; it can never
// win a maximization.
var Rejected = math.Inf(-1)

// Constraints bounds candidate allocations. Zero values disable each bound.
type Constraints struct {
	EqMin       float64  `mapstructure:"eq_min"`
	EqMax       float64  `mapstructure:"eq_max"`
	SigWtMin    float64  `mapstructure:"sig_wt_min"`
	SigWtMax    float64  `mapstructure:"sig_wt_max"`
	MaxTurnover float64  `mapstructure:"max_turnover"`
	MaxDD       float64  `mapstructure:"max_dd"`
	Priority    Priority `mapstructure:"priority"`
}

// AllowsWeight reports whether a single signal weight satisfies the
// per-signal bounds.
func (c Constraints) AllowsWeight(w float64) bool {
	if c.SigWtMin > 0 && w < c.SigWtMin {
		return false
	}
	if c.SigWtMax > 0 && w > c.SigWtMax {
		return false
	}
	return true
}

// AllowsVector reports whether every entry of a signal-weight vector
// satisfies the per-signal bounds.
func (c Constraints) AllowsVector(weights []float64) bool {
	for _, w := range weights {
		if !c.AllowsWeight(w) {
			return false
		}
	}
	return true
}

// Spec is the linear objective blend with its optional extensions and
// regularization strengths.
type Spec struct {
	Alpha float64 `mapstructure:"alpha"`
	Beta  float64 `mapstructure:"beta"`
	Gamma float64 `mapstructure:"gamma"`

	UseSortino bool `mapstructure:"use_sortino"`
	UseCalmar  bool `mapstructure:"use_calmar"`
	MinVol     bool `mapstructure:"min_vol"`
	RiskParity bool `mapstructure:"risk_parity"`

	// Lambda penalizes distance from the equal-weight vector, Kappa
	// penalizes mean absolute daily weight change.
	Lambda float64 `mapstructure:"lambda"`
	Kappa  float64 `mapstructure:"kappa"`
}

// DefaultSpec returns the documented default blend: Sharpe-dominant with a
// return tilt and full drawdown penalty.
func DefaultSpec() Spec {
	return Spec{Alpha: 1.0, Beta: 0.5, Gamma: 1.0, Lambda: 0.1, Kappa: 0.05}
}

// Inputs carries everything a single scoring call needs beyond the metrics.
type Inputs struct {
	// SignalWeights and SignalVols feed the risk-parity extension; both may
	// be nil when RiskParity is off.
	SignalWeights []float64
	SignalVols    []float64
	// MeanAbsWeightChange is the mean absolute daily change of the target
	// weight series, consumed by the kappa penalty.
	MeanAbsWeightChange float64
}

// Score evaluates the full objective: base blend, optional additive
// extensions, constraint penalties and regularization. A hard-rejected
// candidate returns Rejected.
func (s Spec) Score(m backtest.Metrics, c Constraints, in Inputs) float64 {
	score := s.Alpha*m.SharpeRatio + s.Beta*m.AnnualizedReturn - s.Gamma*m.MaxDrawdown

	if s.UseSortino {
		score += m.SortinoRatio
	}
	if s.UseCalmar {
		score += m.CalmarRatio
	}
	if s.MinVol {
		score -= m.AnnualizedVol
	}
	if s.RiskParity && len(in.SignalWeights) > 0 {
		score -= 10 * riskContributionVariance(in.SignalWeights, in.SignalVols)
	}

	// Constraint penalties.
	if c.MaxTurnover > 0 && m.AvgTurnover > c.MaxTurnover {
		score -= 5 * (m.AvgTurnover - c.MaxTurnover)
	}
	if c.MaxDD > 0 && m.MaxDrawdown > c.MaxDD {
		if c.Priority == PriorityDrawdown {
			return Rejected
		}
		score -= 10 * (m.MaxDrawdown - c.MaxDD)
	}

	// Regularization.
	if s.Lambda > 0 && len(in.SignalWeights) > 0 {
		score -= s.Lambda * distanceFromEqualWeight(in.SignalWeights)
	}
	if s.Kappa > 0 {
		score -= s.Kappa * in.MeanAbsWeightChange
	}

	return score
}

// riskContributionVariance approximates each signal's risk contribution as
// weight×vol, normalizes contributions to sum 1 and returns their variance.
func riskContributionVariance(weights, vols []float64) float64 {
	if len(vols) != len(weights) {
		return 0
	}
	contributions := make([]float64, len(weights))
	total := 0.0
	for i := range weights {
		contributions[i] = weights[i] * vols[i]
		total += contributions[i]
	}
	if total <= 0 {
		return 0
	}
	for i := range contributions {
		contributions[i] /= total
	}
	return mathx.Variance(contributions)
}

// distanceFromEqualWeight returns ||w - 1/N||².
func distanceFromEqualWeight(weights []float64) float64 {
	if len(weights) == 0 {
		return 0
	}
	equal := 1.0 / float64(len(weights))
	sum := 0.0
	for _, w := range weights {
		d := w - equal
		sum += d * d
	}
	return sum
}
