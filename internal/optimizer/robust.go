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
	"github.com/kagwert/risktool/internal/metrics"
	"github.com/kagwert/risktool/internal/series"
)

// Robust is the regularized weight-search engine: expanding K-fold
// cross-validation by default, rolling walk-forward re-optimization on
// request, with an optional bootstrap stability diagnostic.
type Robust struct {
	logger *logrus.Logger
}

// NewRobust creates the robust engine. A nil logger falls back to the logrus
// standard logger.
func NewRobust(logger *logrus.Logger) *Robust {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Robust{logger: logger}
}

// Run executes the selected search mode and, when requested, the bootstrap
// diagnostic over the in-sample rows of the winner's split.
func (r *Robust) Run(ctx context.Context, signals *series.SignalMatrix, market *series.MarketSeries, opts Options) (*Result, error) {
	started := time.Now()
	opts = opts.withDefaults()
	if err := validateInputs(signals, market); err != nil {
		return nil, err
	}

	T := market.Len()
	if T < 2*minTrainingRows {
		return neutralResult(signals, market, opts, opts.MappingMethod,
			"series too short for robust optimization")
	}
	candidates := candidateWeights(signals.NumSignals(), opts)
	if len(candidates) == 0 {
		return neutralResult(signals, market, opts, opts.MappingMethod,
			"signal weight bounds admit no candidate vectors")
	}

	eval := newEvaluator(r.logger, opts, signals)

	var result *Result
	var err error
	if opts.WalkForward {
		result, err = r.walkForward(ctx, eval, candidates, signals, market, opts)
	} else {
		result, err = r.crossValidate(ctx, eval, candidates, signals, market, opts)
	}
	if err != nil {
		return nil, err
	}

	if opts.Bootstrap && result.Message == "" {
		result.Bootstrap = r.bootstrap(ctx, eval, candidates, signals, market, opts, result.SplitIndex)
	}

	metrics.UpdateObjectiveScore("robust", result.Score)
	metrics.RecordOptimizationDuration("robust", time.Since(started).Seconds())
	r.logger.WithFields(logrus.Fields{
		"score":        result.Score,
		"weights":      result.Weights,
		"walk_forward": opts.WalkForward,
		"duration":     time.Since(started),
	}).Info("Robust optimization finished")
	return result, nil
}

// crossValidate scores every candidate on each fold's test segment and picks
// the vector with the best mean regularized objective.
func (r *Robust) crossValidate(ctx context.Context, eval *evaluator, candidates [][]float64, signals *series.SignalMatrix, market *series.MarketSeries, opts Options) (*Result, error) {
	T := market.Len()
	folds := foldBounds(T, opts.Folds)
	if len(folds) == 0 {
		return neutralResult(signals, market, opts, opts.MappingMethod,
			"series too short to form cross-validation folds")
	}

	r.logger.WithFields(logrus.Fields{
		"candidates": len(candidates),
		"folds":      len(folds),
	}).Info("Starting cross-validated search")

	scores := make([]float64, len(candidates))
	ok := make([]bool, len(candidates))
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
			scores[idx], ok[idx] = r.meanFoldScore(eval, candidates[idx], signals, market, folds, opts)
		}(i)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bestIdx := -1
	bestScore := math.Inf(-1)
	for i := range candidates {
		if ok[i] && scores[i] > bestScore {
			bestIdx = i
			bestScore = scores[i]
		}
	}
	if bestIdx < 0 {
		return neutralResult(signals, market, opts, opts.MappingMethod,
			"no feasible candidate under the given constraints")
	}

	winner := candidates[bestIdx]
	targets, err := eval.targetsFor(winner, signals, opts.MappingMethod, opts.MappingParams)
	if err != nil {
		return nil, err
	}
	full, err := backtest.Simulate(targets, market, eval.simulation)
	if err != nil {
		return nil, err
	}

	foldMetrics := make([]FoldMetric, 0, len(folds))
	for f, bounds := range folds {
		segment, err := backtest.Simulate(targets[bounds[0]:bounds[1]], market.Slice(bounds[0], bounds[1]), eval.simulation)
		if err != nil {
			continue
		}
		// The winner's own objective on this fold; cached from the search.
		key := eval.cache.key(winner, opts.MappingMethod, opts.MappingParams, bounds[0], bounds[1])
		foldObjective, cached := eval.cache.get(key)
		if !cached {
			foldObjective, err = eval.score(winner, targets[bounds[0]:bounds[1]], market.Slice(bounds[0], bounds[1]))
			if err != nil {
				continue
			}
		}
		m := backtest.CalculateMetrics(segment)
		foldMetrics = append(foldMetrics, FoldMetric{
			Fold:             f + 1,
			Start:            bounds[0],
			End:              bounds[1],
			Objective:        foldObjective,
			SharpeRatio:      m.SharpeRatio,
			AnnualizedReturn: m.AnnualizedReturn,
			MaxDrawdown:      m.MaxDrawdown,
		})
	}

	// The last fold's train/test boundary is the reported split.
	split := folds[len(folds)-1][0]
	return &Result{
		RunID:         uuid.New().String(),
		SignalNames:   signals.Names,
		Weights:       winner,
		MappingMethod: opts.MappingMethod,
		MappingParams: opts.MappingParams,
		Score:         bestScore,
		SplitIndex:    split,
		InSample:      sliceMetrics(full, 0, split),
		OutOfSample:   sliceMetrics(full, split, T),
		FoldMetrics:   foldMetrics,
	}, nil
}

// meanFoldScore averages one candidate's regularized objective across all
// fold test segments. A hard rejection on any fold sinks the mean.
func (r *Robust) meanFoldScore(eval *evaluator, weights []float64, signals *series.SignalMatrix, market *series.MarketSeries, folds [][2]int, opts Options) (float64, bool) {
	targets, err := eval.targetsFor(weights, signals, opts.MappingMethod, opts.MappingParams)
	if err != nil {
		return 0, false
	}
	sum := 0.0
	for _, bounds := range folds {
		metrics.RecordCandidateEvaluation("robust")
		key := eval.cache.key(weights, opts.MappingMethod, opts.MappingParams, bounds[0], bounds[1])
		score, cached := eval.cache.get(key)
		if !cached {
			score, err = eval.score(weights, targets[bounds[0]:bounds[1]], market.Slice(bounds[0], bounds[1]))
			if err != nil {
				return 0, false
			}
			eval.cache.put(key, score)
		}
		sum += score
	}
	return sum / float64(len(folds)), true
}

// walkForward re-optimizes on an expanding window every ReoptFreqDays and
// applies each winner only to the following segment. Days before the first
// re-optimization hold the neutral weight.
func (r *Robust) walkForward(ctx context.Context, eval *evaluator, candidates [][]float64, signals *series.SignalMatrix, market *series.MarketSeries, opts Options) (*Result, error) {
	T := market.Len()
	reopt := opts.ReoptFreqDays
	if reopt >= T {
		return neutralResult(signals, market, opts, opts.MappingMethod,
			"series shorter than one re-optimization window")
	}

	targets := make([]float64, T)
	for t := 0; t < reopt; t++ {
		targets[t] = allocation.Neutral
	}

	var winner []float64
	lastScore := math.Inf(-1)
	for start := reopt; start < T; start += reopt {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		trainSignals := signals.SliceRows(0, start)
		trainMarket := market.Slice(0, start)
		idx, score, found := r.bestCandidate(ctx, eval, candidates, trainSignals, trainMarket, opts, start)
		if !found {
			// Keep the previous winner, or stay neutral before any win.
			if winner == nil {
				end := minInt(start+reopt, T)
				for t := start; t < end; t++ {
					targets[t] = allocation.Neutral
				}
				continue
			}
		} else {
			winner = candidates[idx]
			lastScore = score
		}

		end := minInt(start+reopt, T)
		segTargets, err := eval.targetsFor(winner, signals.SliceRows(start, end), opts.MappingMethod, opts.MappingParams)
		if err != nil {
			return nil, err
		}
		copy(targets[start:end], segTargets)
	}
	if winner == nil {
		return neutralResult(signals, market, opts, opts.MappingMethod,
			"no feasible candidate in any walk-forward window")
	}

	full, err := backtest.Simulate(targets, market, eval.simulation)
	if err != nil {
		return nil, err
	}
	return &Result{
		RunID:         uuid.New().String(),
		SignalNames:   signals.Names,
		Weights:       winner,
		MappingMethod: opts.MappingMethod,
		MappingParams: opts.MappingParams,
		Score:         lastScore,
		SplitIndex:    reopt,
		InSample:      sliceMetrics(full, 0, reopt),
		OutOfSample:   sliceMetrics(full, reopt, T),
	}, nil
}

// bestCandidate scores every candidate on a single segment and returns the
// winner, lowest index on ties. A negative cacheSeg disables caching, used by
// the bootstrap loop where equal-length segments hold different data.
func (r *Robust) bestCandidate(ctx context.Context, eval *evaluator, candidates [][]float64, signals *series.SignalMatrix, market *series.MarketSeries, opts Options, cacheSeg int) (int, float64, bool) {
	scores := make([]float64, len(candidates))
	ok := make([]bool, len(candidates))
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
			metrics.RecordCandidateEvaluation("robust")

			var key string
			if cacheSeg >= 0 {
				key = eval.cache.key(candidates[idx], opts.MappingMethod, opts.MappingParams, 0, cacheSeg)
				if score, cached := eval.cache.get(key); cached {
					scores[idx], ok[idx] = score, true
					return
				}
			}
			targets, err := eval.targetsFor(candidates[idx], signals, opts.MappingMethod, opts.MappingParams)
			if err != nil {
				return
			}
			score, err := eval.score(candidates[idx], targets, market)
			if err != nil {
				return
			}
			if cacheSeg >= 0 {
				eval.cache.put(key, score)
			}
			scores[idx], ok[idx] = score, true
		}(i)
	}
	wg.Wait()

	bestIdx := -1
	bestScore := math.Inf(-1)
	for i := range candidates {
		if ok[i] && scores[i] > bestScore {
			bestIdx = i
			bestScore = scores[i]
		}
	}
	return bestIdx, bestScore, bestIdx >= 0
}

// foldBounds returns 0-based [start, end) test segments of the expanding
// K-fold partition. Segments are chronological and non-overlapping; empty
// segments on very short series are skipped.
func foldBounds(T, folds int) [][2]int {
	out := make([][2]int, 0, folds)
	for f := 1; f <= folds; f++ {
		start := int(math.Round(float64(T) * float64(f) / float64(folds+1)))
		end := int(math.Round(float64(T) * float64(f+1) / float64(folds+1)))
		if end > T {
			end = T
		}
		if start < 0 || end <= start {
			continue
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
