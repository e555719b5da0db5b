package optimizer

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kagwert/risktool/internal/allocation"
	"github.com/kagwert/risktool/internal/backtest"
	"github.com/kagwert/risktool/internal/mathx"
	"github.com/kagwert/risktool/internal/metrics"
	"github.com/kagwert/risktool/internal/series"
)

// thresholdSpreads are the percentile spreads used to build step-threshold
// candidate sets from the in-sample composite distribution.
var thresholdSpreads = []float64{0.6, 0.8, 1.0}

// levelSet is the discrete equity-level alphabet for step-mapping candidates.
var levelSet = []float64{0, 0.25, 0.5, 0.75, 1}

// Composite is the grid-search engine over the step mapping: simplex weight
// vectors crossed with threshold and level candidate sets, scored in-sample.
type Composite struct {
	logger *logrus.Logger
}

// NewComposite creates the composite engine. A nil logger falls back to the
// logrus standard logger.
func NewComposite(logger *logrus.Logger) *Composite {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Composite{logger: logger}
}

// candidateOutcome is one weight vector's best step parameterization.
type candidateOutcome struct {
	score  float64
	params allocation.Params
	ok     bool
}

// Run executes the full grid search and returns the winner re-scored over the
// whole sample. Degraded inputs produce a neutral fallback result with a
// message rather than an error.
func (c *Composite) Run(ctx context.Context, signals *series.SignalMatrix, market *series.MarketSeries, opts Options) (*Result, error) {
	started := time.Now()
	opts = opts.withDefaults()
	if err := validateInputs(signals, market); err != nil {
		return nil, err
	}

	T := market.Len()
	n := signals.NumSignals()
	split := int(math.Round(float64(T) * opts.InSamplePct))

	if split < minTrainingRows {
		return neutralResult(signals, market, opts, allocation.MethodStep,
			"in-sample window too short for optimization")
	}
	probe, err := signals.SliceRows(0, split).Composite(equalWeights(n))
	if err != nil {
		return nil, err
	}
	if finiteCount(probe) < minTrainingRows {
		return neutralResult(signals, market, opts, allocation.MethodStep,
			"too few valid training rows after signal warmup")
	}

	candidates := candidateWeights(n, opts)
	if len(candidates) == 0 {
		return neutralResult(signals, market, opts, allocation.MethodStep,
			"signal weight bounds admit no candidate vectors")
	}

	eval := newEvaluator(c.logger, opts, signals)
	isSignals := signals.SliceRows(0, split)
	isMarket := market.Slice(0, split)
	levelCandidates := levelCombos(opts.NumThresholds + 1)

	c.logger.WithFields(logrus.Fields{
		"candidates": len(candidates),
		"levels":     len(levelCandidates),
		"split":      split,
		"signals":    n,
	}).Info("Starting composite grid search")

	outcomes := make([]candidateOutcome, len(candidates))
	sem := make(chan struct{}, opts.Workers)
	var wg sync.WaitGroup
	for i := range candidates {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[idx] = c.evaluateCandidate(eval, candidates[idx], isSignals, isMarket, levelCandidates, opts, split)
		}(i)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Reduce with a stable tie-break: the lowest candidate index wins.
	bestIdx := -1
	bestScore := math.Inf(-1)
	for i, out := range outcomes {
		if out.ok && out.score > bestScore {
			bestIdx = i
			bestScore = out.score
		}
	}
	if bestIdx < 0 {
		return neutralResult(signals, market, opts, allocation.MethodStep,
			"no feasible candidate under the given constraints")
	}

	winner := candidates[bestIdx]
	winnerParams := outcomes[bestIdx].params
	targets, err := eval.targetsFor(winner, signals, allocation.MethodStep, winnerParams)
	if err != nil {
		return nil, err
	}
	full, err := backtest.Simulate(targets, market, eval.simulation)
	if err != nil {
		return nil, err
	}

	metrics.UpdateObjectiveScore("composite", bestScore)
	metrics.RecordOptimizationDuration("composite", time.Since(started).Seconds())
	c.logger.WithFields(logrus.Fields{
		"score":    bestScore,
		"weights":  winner,
		"duration": time.Since(started),
	}).Info("Composite grid search finished")

	return &Result{
		RunID:         uuid.New().String(),
		SignalNames:   signals.Names,
		Weights:       winner,
		MappingMethod: allocation.MethodStep,
		MappingParams: winnerParams,
		Score:         bestScore,
		SplitIndex:    split,
		InSample:      sliceMetrics(full, 0, split),
		OutOfSample:   sliceMetrics(full, split, T),
	}, nil
}

// evaluateCandidate searches threshold and level combinations for one weight
// vector and returns its best in-sample parameterization.
func (c *Composite) evaluateCandidate(eval *evaluator, weights []float64, isSignals *series.SignalMatrix, isMarket *series.MarketSeries, levelCandidates [][]float64, opts Options, split int) candidateOutcome {
	composite, err := isSignals.Composite(weights)
	if err != nil {
		return candidateOutcome{}
	}
	thresholdSets := thresholdCandidates(composite, opts.NumThresholds)
	if len(thresholdSets) == 0 {
		return candidateOutcome{}
	}

	out := candidateOutcome{score: math.Inf(-1)}
	for _, thresholds := range thresholdSets {
		for _, levels := range levelCandidates {
			params := allocation.Params{Thresholds: thresholds, Levels: levels}
			metrics.RecordCandidateEvaluation("composite")

			key := eval.cache.key(weights, allocation.MethodStep, params, 0, split)
			score, cached := eval.cache.get(key)
			if !cached {
				targets := eval.mapper.MapToWeight(composite, allocation.MethodStep, params)
				score, err = eval.score(weights, targets, isMarket)
				if err != nil {
					continue
				}
				eval.cache.put(key, score)
			}
			if score > out.score {
				out.score = score
				out.params = params
				out.ok = true
			}
		}
	}
	if math.IsInf(out.score, -1) {
		out.ok = false
	}
	return out
}

// thresholdCandidates derives ascending threshold sets from percentiles of
// the in-sample composite, one set per spread. Degenerate sets with collapsed
// thresholds are dropped.
func thresholdCandidates(composite []float64, k int) [][]float64 {
	finite := make([]float64, 0, len(composite))
	for _, v := range composite {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) < k+1 {
		return nil
	}
	sets := make([][]float64, 0, len(thresholdSpreads))
	for _, spread := range thresholdSpreads {
		thresholds := make([]float64, k)
		degenerate := false
		for i := 0; i < k; i++ {
			p := 0.5 + spread*(float64(i+1)/float64(k+1)-0.5)
			thresholds[i] = mathx.Percentile(finite, p)
			if i > 0 && thresholds[i]-thresholds[i-1] < 1e-9 {
				degenerate = true
				break
			}
		}
		if !degenerate {
			sets = append(sets, thresholds)
		}
	}
	return sets
}

// levelCombos enumerates non-decreasing level vectors of the given length
// over the discrete level alphabet.
func levelCombos(length int) [][]float64 {
	var out [][]float64
	current := make([]float64, length)
	var walk func(pos, minIdx int)
	walk = func(pos, minIdx int) {
		if pos == length {
			out = append(out, append([]float64{}, current...))
			return
		}
		for i := minIdx; i < len(levelSet); i++ {
			current[pos] = levelSet[i]
			walk(pos+1, i)
		}
	}
	walk(0, 0)
	return out
}

// sliceMetrics summarizes one segment of a completed simulation.
func sliceMetrics(result *backtest.Result, start, end int) backtest.Metrics {
	if start >= end {
		return backtest.Metrics{}
	}
	m := backtest.MetricsFromReturns(result.Returns[start:end])
	m.AvgTurnover = mathx.Mean(result.Turnover[start:end])
	return m
}

// neutralResult is the degraded-path output: equal weights, a constant
// neutral allocation simulated over the full sample, and a message saying
// why optimization did not run.
func neutralResult(signals *series.SignalMatrix, market *series.MarketSeries, opts Options, method allocation.Method, message string) (*Result, error) {
	T := market.Len()
	targets := make([]float64, T)
	for t := range targets {
		targets[t] = allocation.Neutral
	}
	full, err := backtest.Simulate(targets, market, opts.Simulation)
	if err != nil {
		return nil, err
	}
	split := int(math.Round(float64(T) * opts.InSamplePct))
	if split < 0 {
		split = 0
	}
	if split > T {
		split = T
	}
	return &Result{
		RunID:         uuid.New().String(),
		SignalNames:   signals.Names,
		Weights:       equalWeights(signals.NumSignals()),
		MappingMethod: method,
		MappingParams: opts.MappingParams,
		SplitIndex:    split,
		InSample:      sliceMetrics(full, 0, split),
		OutOfSample:   sliceMetrics(full, split, T),
		Message:       message,
	}, nil
}
