package optimizer

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/kagwert/risktool/internal/mathx"
	"github.com/kagwert/risktool/internal/metrics"
	"github.com/kagwert/risktool/internal/series"
)

// NumBootstrapReplicates is the fixed replicate count of the stability
// diagnostic.
const NumBootstrapReplicates = 100

// BootstrapSummary reports the distribution of the selected weight per signal
// across bootstrap replicates. Rows are resampled i.i.d. with replacement,
// which deliberately destroys serial dependence: the summary measures
// optimizer stability under resampling, not time-series robustness.
type BootstrapSummary struct {
	Replicates int       `json:"replicates"`
	Names      []string  `json:"names"`
	Mean       []float64 `json:"mean"`
	Std        []float64 `json:"std"`
	P5         []float64 `json:"p5"`
	P95        []float64 `json:"p95"`
}

// bootstrap repeats the in-sample candidate selection on resampled rows and
// summarizes the winning weight vectors. Replicates run in parallel; each one
// is seeded from the run seed plus its index so results reproduce.
func (r *Robust) bootstrap(ctx context.Context, eval *evaluator, candidates [][]float64, signals *series.SignalMatrix, market *series.MarketSeries, opts Options, split int) *BootstrapSummary {
	if split < minTrainingRows {
		return nil
	}
	isSignals := signals.SliceRows(0, split)
	isMarket := market.Slice(0, split)

	selected := make([][]float64, NumBootstrapReplicates)
	sem := make(chan struct{}, opts.Workers)
	var wg sync.WaitGroup
	for rep := 0; rep < NumBootstrapReplicates; rep++ {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(rep int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			rng := rand.New(rand.NewSource(opts.Seed + int64(rep) + 1))
			indices := make([]int, split)
			for i := range indices {
				indices[i] = rng.Intn(split)
			}
			bsSignals := isSignals.Resample(indices)
			bsMarket := series.ResampleMarket(isMarket, indices)
			selected[rep] = r.selectOnReplicate(eval, candidates, bsSignals, bsMarket, opts)
			metrics.RecordBootstrapReplicate()
		}(rep)
	}
	wg.Wait()

	return summarizeBootstrap(signals.Names, selected)
}

// selectOnReplicate runs the sequential candidate scan on one resampled
// dataset. No caching: equal-length replicates hold different rows.
func (r *Robust) selectOnReplicate(eval *evaluator, candidates [][]float64, signals *series.SignalMatrix, market *series.MarketSeries, opts Options) []float64 {
	bestScore := math.Inf(-1)
	var best []float64
	for _, weights := range candidates {
		targets, err := eval.targetsFor(weights, signals, opts.MappingMethod, opts.MappingParams)
		if err != nil {
			continue
		}
		score, err := eval.score(weights, targets, market)
		if err != nil {
			continue
		}
		if score > bestScore {
			bestScore = score
			best = weights
		}
	}
	return best
}

// summarizeBootstrap reduces the selected weight vectors to per-signal mean,
// standard deviation and tail percentiles.
func summarizeBootstrap(names []string, selected [][]float64) *BootstrapSummary {
	completed := 0
	for _, w := range selected {
		if w != nil {
			completed++
		}
	}
	if completed == 0 {
		return nil
	}
	n := len(names)
	summary := &BootstrapSummary{
		Replicates: completed,
		Names:      names,
		Mean:       make([]float64, n),
		Std:        make([]float64, n),
		P5:         make([]float64, n),
		P95:        make([]float64, n),
	}
	perSignal := make([]float64, 0, completed)
	for j := 0; j < n; j++ {
		perSignal = perSignal[:0]
		for _, w := range selected {
			if w != nil {
				perSignal = append(perSignal, w[j])
			}
		}
		summary.Mean[j] = mathx.Mean(perSignal)
		summary.Std[j] = mathx.StdDev(perSignal)
		summary.P5[j] = mathx.Percentile(perSignal, 0.05)
		summary.P95[j] = mathx.Percentile(perSignal, 0.95)
	}
	return summary
}
