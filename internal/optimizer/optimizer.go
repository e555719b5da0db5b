// Package optimizer searches signal-weight vectors and mapping parameters
// against the simulator and the shared objective. Two engines are provided:
// a composite grid search over the step mapping and a robust engine with
// cross-validation, walk-forward re-optimization and bootstrap diagnostics.
package optimizer

import (
	"fmt"
	"math"
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/kagwert/risktool/internal/allocation"
	"github.com/kagwert/risktool/internal/backtest"
	"github.com/kagwert/risktool/internal/mathx"
	"github.com/kagwert/risktool/internal/objective"
	"github.com/kagwert/risktool/internal/series"
)

// minTrainingRows is the smallest in-sample segment an optimization will run
// on; anything shorter returns the neutral fallback result.
const minTrainingRows = 30

// maxExactSignals caps exact simplex enumeration; above it the grid switches
// to seeded random sampling.
const maxExactSignals = 5

// Options configures both optimization engines. Zero values fall back to the
// documented defaults.
type Options struct {
	// InSamplePct is the chronological train fraction. Default 0.70.
	InSamplePct float64
	// GridStep is the simplex lattice spacing for exact enumeration.
	// Default 0.10.
	GridStep float64
	// RandomSamples is the candidate count when exact enumeration is
	// infeasible. Default 2000.
	RandomSamples int
	// Seed drives random-simplex sampling and the bootstrap resampler so
	// runs reproduce exactly.
	Seed int64
	// NumThresholds is the step-mapping threshold count. Default 3.
	NumThresholds int
	// Folds is the cross-validation fold count. Default 5.
	Folds int
	// ReoptFreqDays is the walk-forward re-optimization spacing. Default 252.
	ReoptFreqDays int
	// WalkForward selects rolling re-optimization instead of K-fold CV in
	// the robust engine.
	WalkForward bool
	// Bootstrap enables the weight-stability diagnostic in the robust
	// engine.
	Bootstrap bool

	// MappingMethod and MappingParams select the signal-to-weight mapping
	// for the robust engine. The composite engine always uses the step
	// mapping and searches its parameters itself.
	MappingMethod allocation.Method
	MappingParams allocation.Params

	Simulation  backtest.Config
	Objective   objective.Spec
	Constraints objective.Constraints

	// Workers bounds concurrent candidate evaluations. Default NumCPU.
	Workers int
}

func (o Options) withDefaults() Options {
	if o.InSamplePct <= 0 || o.InSamplePct >= 1 {
		o.InSamplePct = 0.70
	}
	if o.GridStep <= 0 || o.GridStep > 0.5 {
		o.GridStep = 0.10
	}
	if o.RandomSamples <= 0 {
		o.RandomSamples = 2000
	}
	if o.NumThresholds <= 0 {
		o.NumThresholds = 3
	}
	if o.Folds <= 0 {
		o.Folds = 5
	}
	if o.ReoptFreqDays <= 0 {
		o.ReoptFreqDays = 252
	}
	if o.MappingMethod == "" {
		o.MappingMethod = allocation.MethodSigmoid
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	return o
}

// FoldMetric reports the winner's realized performance on one CV test
// segment. Start and End are 0-based row bounds, End exclusive.
type FoldMetric struct {
	Fold             int     `json:"fold"`
	Start            int     `json:"start"`
	End              int     `json:"end"`
	Objective        float64 `json:"objective"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	AnnualizedReturn float64 `json:"annualized_return"`
	MaxDrawdown      float64 `json:"max_drawdown"`
}

// Result is the output of one optimization run.
type Result struct {
	RunID       string    `json:"run_id"`
	SignalNames []string  `json:"signal_names"`
	Weights     []float64 `json:"weights"`

	MappingMethod allocation.Method `json:"mapping_method"`
	MappingParams allocation.Params `json:"mapping_params"`

	Score       float64          `json:"score"`
	SplitIndex  int              `json:"split_index"`
	InSample    backtest.Metrics `json:"in_sample"`
	OutOfSample backtest.Metrics `json:"out_of_sample"`

	FoldMetrics []FoldMetric      `json:"fold_metrics,omitempty"`
	Bootstrap   *BootstrapSummary `json:"bootstrap,omitempty"`

	// Message is set on degraded paths, e.g. the neutral fallback when the
	// training window is too short.
	Message string `json:"message,omitempty"`
}

// evaluator bundles the pieces every candidate evaluation needs. It is
// read-only after construction and safe for concurrent use.
type evaluator struct {
	mapper     *allocation.Mapper
	simulation backtest.Config
	objective  objective.Spec
	constraint objective.Constraints
	signalVols []float64
	cache      *evalCache
}

func newEvaluator(logger *logrus.Logger, opts Options, signals *series.SignalMatrix) *evaluator {
	return &evaluator{
		mapper:     allocation.NewMapper(logger),
		simulation: constrainedSimulation(opts.Simulation, opts.Constraints),
		objective:  opts.Objective,
		constraint: opts.Constraints,
		signalVols: signalVolatilities(signals),
		cache:      newEvalCache(),
	}
}

// constrainedSimulation tightens the simulation equity bounds with the
// optimization constraint bounds, so every candidate backtest honors them.
// Zero constraint values leave the simulation bounds untouched.
func constrainedSimulation(sim backtest.Config, c objective.Constraints) backtest.Config {
	if c.EqMin > sim.EqMin {
		sim.EqMin = c.EqMin
	}
	if c.EqMax > 0 && (sim.EqMax <= 0 || c.EqMax < sim.EqMax) {
		sim.EqMax = c.EqMax
	}
	return sim
}

// targetsFor maps a weighted composite of the given signal rows onto a target
// weight series.
func (e *evaluator) targetsFor(weights []float64, signals *series.SignalMatrix, method allocation.Method, params allocation.Params) ([]float64, error) {
	composite, err := signals.Composite(weights)
	if err != nil {
		return nil, err
	}
	return e.mapper.MapToWeight(composite, method, params), nil
}

// score simulates a target series over a market segment and applies the full
// objective including regularization.
func (e *evaluator) score(weights, targets []float64, market *series.MarketSeries) (float64, error) {
	result, err := backtest.Simulate(targets, market, e.simulation)
	if err != nil {
		return 0, err
	}
	m := backtest.CalculateMetrics(result)
	in := objective.Inputs{
		SignalWeights:       weights,
		SignalVols:          e.signalVols,
		MeanAbsWeightChange: mathx.MeanAbsDiff(targets),
	}
	return e.objective.Score(m, e.constraint, in), nil
}

// signalVolatilities estimates each column's daily volatility over its finite
// entries, feeding the risk-parity objective term.
func signalVolatilities(signals *series.SignalMatrix) []float64 {
	vols := make([]float64, signals.NumSignals())
	for j, col := range signals.Columns {
		finite := make([]float64, 0, len(col))
		for _, v := range col {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				finite = append(finite, v)
			}
		}
		vols[j] = mathx.StdDev(finite)
	}
	return vols
}

// equalWeights is the fallback vector used by degraded paths.
func equalWeights(n int) []float64 {
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1.0 / float64(n)
	}
	return weights
}

// validateInputs applies the shared hard input checks of both engines.
func validateInputs(signals *series.SignalMatrix, market *series.MarketSeries) error {
	if err := market.Validate(); err != nil {
		return fmt.Errorf("invalid market series: %w", err)
	}
	if err := signals.AlignedWith(market); err != nil {
		return fmt.Errorf("invalid signal matrix: %w", err)
	}
	return nil
}

// finiteCount reports how many entries of the series are usable numbers.
func finiteCount(values []float64) int {
	count := 0
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			count++
		}
	}
	return count
}
