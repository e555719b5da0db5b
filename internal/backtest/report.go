package backtest

import (
	"time"

	"github.com/kagwert/risktool/internal/mathx"
)

// Metrics summarizes the risk and return profile of one return series.
type Metrics struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	AnnualizedVol    float64 `json:"annualized_vol"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	CalmarRatio      float64 `json:"calmar_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	Skewness         float64 `json:"skewness"`
	ExcessKurtosis   float64 `json:"excess_kurtosis"`
	AvgTurnover      float64 `json:"avg_turnover"`
	TradingDays      int     `json:"trading_days"`
}

// CalculateMetrics derives the summary statistics of a backtest result.
func CalculateMetrics(result *Result) Metrics {
	m := MetricsFromReturns(result.Returns)
	if len(result.Turnover) > 0 {
		m.AvgTurnover = mathx.Mean(result.Turnover)
	}
	return m
}

// MetricsFromReturns derives the summary statistics of a bare return series,
// used for benchmark and per-fold reporting.
func MetricsFromReturns(returns []float64) Metrics {
	if len(returns) == 0 {
		return Metrics{}
	}
	wealth := 1.0
	for _, r := range returns {
		wealth *= 1 + r
	}
	return Metrics{
		TotalReturn:      wealth - 1,
		AnnualizedReturn: mathx.AnnualizedReturn(returns),
		AnnualizedVol:    mathx.AnnualizedVol(returns),
		SharpeRatio:      mathx.Sharpe(returns),
		SortinoRatio:     mathx.Sortino(returns),
		CalmarRatio:      mathx.Calmar(returns),
		MaxDrawdown:      mathx.MaxDrawdown(returns),
		Skewness:         mathx.Skewness(returns),
		ExcessKurtosis:   mathx.ExcessKurtosis(returns),
		TradingDays:      len(returns),
	}
}

// RollingPoint is one observation of the rolling metric series.
type RollingPoint struct {
	Index  int       `json:"index"`
	Date   time.Time `json:"date,omitempty"`
	Return float64   `json:"return"`
	Vol    float64   `json:"vol"`
	Sharpe float64   `json:"sharpe"`
}

// RollingMetrics computes annualized return, volatility and Sharpe over a
// trailing window at every day with a full window behind it.
func RollingMetrics(result *Result, window int) []RollingPoint {
	if window <= 1 || len(result.Returns) < window {
		return nil
	}
	points := make([]RollingPoint, 0, len(result.Returns)-window+1)
	for t := window - 1; t < len(result.Returns); t++ {
		slice := result.Returns[t-window+1 : t+1]
		point := RollingPoint{
			Index:  t,
			Return: mathx.AnnualizedReturn(slice),
			Vol:    mathx.AnnualizedVol(slice),
			Sharpe: mathx.Sharpe(slice),
		}
		if len(result.Dates) == len(result.Returns) {
			point.Date = result.Dates[t]
		}
		points = append(points, point)
	}
	return points
}

// Episode names a historical stress window.
type Episode struct {
	Name  string
	Start time.Time
	End   time.Time
}

// DefaultEpisodes covers the named drawdown periods used by the stress
// report. Callers with custom ranges pass their own slice.
func DefaultEpisodes() []Episode {
	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return []Episode{
		{Name: "GFC", Start: day(2007, time.October, 1), End: day(2009, time.March, 31)},
		{Name: "Euro debt crisis", Start: day(2011, time.May, 1), End: day(2011, time.October, 31)},
		{Name: "Taper tantrum", Start: day(2013, time.May, 1), End: day(2013, time.September, 30)},
		{Name: "China devaluation", Start: day(2015, time.August, 1), End: day(2016, time.February, 29)},
		{Name: "Covid crash", Start: day(2020, time.February, 15), End: day(2020, time.April, 30)},
		{Name: "2022 inflation", Start: day(2022, time.January, 1), End: day(2022, time.October, 31)},
	}
}

// EpisodeReport decomposes performance over one named stress window.
type EpisodeReport struct {
	Name            string  `json:"name"`
	Days            int     `json:"days"`
	PortfolioReturn float64 `json:"portfolio_return"`
	Mix6040Return   float64 `json:"mix_60_40_return"`
	RiskAssetReturn float64 `json:"risk_asset_return"`
	MaxDrawdown     float64 `json:"max_drawdown"`
}

// StressReport computes per-episode cumulative returns for the portfolio and
// both benchmarks. Episodes with no overlap with the simulated range are
// omitted; results carry no dates when the input had none, in which case the
// report is empty.
func StressReport(result *Result, episodes []Episode) []EpisodeReport {
	if len(result.Dates) != len(result.Returns) {
		return nil
	}
	reports := make([]EpisodeReport, 0, len(episodes))
	for _, ep := range episodes {
		start, end := -1, -1
		for t, d := range result.Dates {
			if start == -1 && !d.Before(ep.Start) {
				start = t
			}
			if !d.After(ep.End) {
				end = t
			}
		}
		if start == -1 || end < start {
			continue
		}
		reports = append(reports, EpisodeReport{
			Name:            ep.Name,
			Days:            end - start + 1,
			PortfolioReturn: cumulative(result.Returns[start : end+1]),
			Mix6040Return:   cumulative(result.Benchmark6040.Returns[start : end+1]),
			RiskAssetReturn: cumulative(result.BenchmarkRisk.Returns[start : end+1]),
			MaxDrawdown:     mathx.MaxDrawdown(result.Returns[start : end+1]),
		})
	}
	return reports
}

func cumulative(returns []float64) float64 {
	wealth := 1.0
	for _, r := range returns {
		wealth *= 1 + r
	}
	return wealth - 1
}
