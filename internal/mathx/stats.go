// Package mathx holds the shared numeric kernels used by the normalization
// library, the objective function and the reporting layer. Everything here is
// stateless and NaN-safe at the boundaries documented per function.
package mathx

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Floors applied to denominator estimates so ratios never blow up on
// degenerate inputs.
const (
	VolFloor      = 1e-12
	DownsideFloor = 1e-8
	MADFloor      = 1e-8
	RangeFloor    = 1e-12
	DrawdownFloor = 1e-8
)

// TradingDaysPerYear is the annualization base for daily series.
const TradingDaysPerYear = 252

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// StdDev returns the population standard deviation, 0 for fewer than two
// observations.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	// gonum's StdDev is the sample estimator; the simulator's statistics use
	// the population form so results match the expanding-window normalizers.
	variance := stat.Variance(values, nil) * float64(len(values)-1) / float64(len(values))
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// Median returns the middle order statistic, 0 for an empty slice.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// MAD returns the median absolute deviation around the median.
func MAD(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	med := Median(values)
	deviations := make([]float64, len(values))
	for i, v := range values {
		deviations[i] = math.Abs(v - med)
	}
	return Median(deviations)
}

// Percentile returns the value at fraction p in [0,1] of the sorted input,
// using nearest-rank on a copy.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	idx := int(math.Floor(p * float64(len(sorted)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Rank returns the empirical fraction of observations strictly below v plus
// half the ties, the usual mid-rank convention for expanding percentile
// transforms.
func Rank(values []float64, v float64) float64 {
	if len(values) == 0 {
		return 0.5
	}
	below := 0
	ties := 0
	for _, x := range values {
		switch {
		case x < v:
			below++
		case x == v:
			ties++
		}
	}
	return (float64(below) + 0.5*float64(ties)) / float64(len(values))
}

// Skewness returns the sample skewness, 0 with fewer than three points.
func Skewness(values []float64) float64 {
	if len(values) < 3 {
		return 0
	}
	return stat.Skew(values, nil)
}

// ExcessKurtosis returns kurtosis minus 3, 0 with fewer than four points.
func ExcessKurtosis(values []float64) float64 {
	if len(values) < 4 {
		return 0
	}
	return stat.ExKurtosis(values, nil)
}

// AnnualizedReturn compounds daily returns geometrically and scales to a
// 252-day year: (prod(1+r))^(252/M) - 1.
func AnnualizedReturn(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	wealth := 1.0
	for _, r := range returns {
		wealth *= 1 + r
	}
	if wealth <= 0 {
		return -1
	}
	return math.Pow(wealth, TradingDaysPerYear/float64(len(returns))) - 1
}

// AnnualizedVol scales the daily standard deviation by sqrt(252).
func AnnualizedVol(returns []float64) float64 {
	return StdDev(returns) * math.Sqrt(TradingDaysPerYear)
}

// DownsideVol annualizes the standard deviation of negative returns only.
func DownsideVol(returns []float64) float64 {
	negatives := make([]float64, 0, len(returns))
	for _, r := range returns {
		if r < 0 {
			negatives = append(negatives, r)
		}
	}
	return StdDev(negatives) * math.Sqrt(TradingDaysPerYear)
}

// MaxDrawdown returns the largest fractional decline of cumulative wealth
// from its running maximum, for a wealth path starting at 1.
func MaxDrawdown(returns []float64) float64 {
	wealth := 1.0
	peak := 1.0
	maxDD := 0.0
	for _, r := range returns {
		wealth *= 1 + r
		if wealth > peak {
			peak = wealth
		}
		dd := 1 - wealth/peak
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// Sharpe divides annualized return by annualized volatility floored at
// VolFloor.
func Sharpe(returns []float64) float64 {
	return AnnualizedReturn(returns) / math.Max(AnnualizedVol(returns), VolFloor)
}

// Sortino divides annualized return by downside volatility floored at
// DownsideFloor.
func Sortino(returns []float64) float64 {
	return AnnualizedReturn(returns) / math.Max(DownsideVol(returns), DownsideFloor)
}

// Calmar divides annualized return by max drawdown floored at DrawdownFloor.
func Calmar(returns []float64) float64 {
	return AnnualizedReturn(returns) / math.Max(MaxDrawdown(returns), DrawdownFloor)
}

// EWMAVol computes an exponentially weighted volatility of the return series
// with the given decay (e.g. 0.94 for the classic RiskMetrics setting). The
// result is a daily figure; callers annualize as needed.
func EWMAVol(returns []float64, decay float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	variance := 0.0
	for _, r := range returns {
		variance = decay*variance + (1-decay)*r*r
	}
	return math.Sqrt(variance)
}

// Tanh is the bounded activation shared by the z-score normalizers.
func Tanh(z, scale float64) float64 {
	if scale <= 0 {
		scale = 1
	}
	return math.Tanh(z / scale)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MeanAbsDiff returns the mean absolute day-over-day change of a series,
// the turnover proxy used by the robust optimizer's kappa penalty. NaN
// entries are skipped.
func MeanAbsDiff(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sum := 0.0
	count := 0
	for i := 1; i < len(values); i++ {
		a, b := values[i-1], values[i]
		if math.IsNaN(a) || math.IsNaN(b) {
			continue
		}
		sum += math.Abs(b - a)
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// Variance returns the population variance of the input.
func Variance(values []float64) float64 {
	sd := StdDev(values)
	return sd * sd
}
