// Package service wires data acquisition, normalization, simulation and the
// search engines into the operations the CLIs and the scheduler invoke.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kagwert/risktool/internal/allocation"
	"github.com/kagwert/risktool/internal/backtest"
	"github.com/kagwert/risktool/internal/config"
	"github.com/kagwert/risktool/internal/dataset"
	"github.com/kagwert/risktool/internal/optimizer"
	"github.com/kagwert/risktool/internal/repository"
	"github.com/kagwert/risktool/internal/series"
	"github.com/kagwert/risktool/internal/signal"
)

// ResearchService runs end-to-end allocation research: load data, normalize
// signals, optimize, backtest, persist.
type ResearchService struct {
	cfg        *config.Config
	logger     *logrus.Logger
	repo       *repository.ResultRepository
	normalizer *signal.Normalizer
	mapper     *allocation.Mapper
	composite  *optimizer.Composite
	robust     *optimizer.Robust
}

// NewResearchService creates the service. repo may be nil when persistence is
// disabled; a nil logger falls back to the logrus standard logger.
func NewResearchService(cfg *config.Config, logger *logrus.Logger, repo *repository.ResultRepository) *ResearchService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ResearchService{
		cfg:        cfg,
		logger:     logger,
		repo:       repo,
		normalizer: signal.NewNormalizer(logger),
		mapper:     allocation.NewMapper(logger),
		composite:  optimizer.NewComposite(logger),
		robust:     optimizer.NewRobust(logger),
	}
}

// LoadData assembles the market series and the normalized signal matrix from
// the configured source: a local CSV file when csv_path is set, otherwise the
// remote returns feed with built-in signal construction.
func (s *ResearchService) LoadData(ctx context.Context) (*series.MarketSeries, *series.SignalMatrix, error) {
	market, raw, err := s.loadRaw(ctx)
	if err != nil {
		return nil, nil, err
	}

	names := make([]string, len(s.cfg.Signals))
	normalized := make([][]float64, len(s.cfg.Signals))
	for i, sc := range s.cfg.Signals {
		col, ok := raw[sc.Name]
		if !ok {
			return nil, nil, fmt.Errorf("signal column %q not present in dataset", sc.Name)
		}
		names[i] = sc.Name
		normalized[i] = s.normalizer.Normalize(col, signal.Method(sc.Method), sc.NormalizeParams())
	}

	signals := &series.SignalMatrix{Names: names, Columns: normalized}
	if err := signals.AlignedWith(market); err != nil {
		return nil, nil, err
	}
	return market, signals, nil
}

// loadRaw returns the market series and raw signal columns keyed by name.
func (s *ResearchService) loadRaw(ctx context.Context) (*series.MarketSeries, map[string][]float64, error) {
	if s.cfg.Data.CSVPath != "" {
		loader := dataset.NewCSVLoader(s.logger)
		market, rawMatrix, err := loader.Load(s.cfg.Data.CSVPath)
		if err != nil {
			return nil, nil, err
		}
		market, rawMatrix = s.clipToRange(market, rawMatrix)
		raw := make(map[string][]float64, len(rawMatrix.Names))
		for i, name := range rawMatrix.Names {
			raw[name] = rawMatrix.Columns[i]
		}
		return market, raw, nil
	}

	if s.cfg.Data.API.BaseURL == "" {
		return nil, nil, fmt.Errorf("no data source configured: set data.csv_path or data.api.base_url")
	}

	start, err := time.Parse("2006-01-02", s.cfg.Data.StartDate)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid data start_date: %w", err)
	}
	end, err := time.Parse("2006-01-02", s.cfg.Data.EndDate)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid data end_date: %w", err)
	}

	httpCfg := dataset.DefaultHTTPClientConfig()
	if s.cfg.Data.API.TimeoutSeconds > 0 {
		httpCfg.Timeout = time.Duration(s.cfg.Data.API.TimeoutSeconds) * time.Second
	}
	if s.cfg.Data.API.RetryAttempts > 0 {
		httpCfg.MaxRetries = s.cfg.Data.API.RetryAttempts
	}
	if s.cfg.Data.API.RateLimitPerSecond > 0 {
		httpCfg.RateLimit = s.cfg.Data.API.RateLimitPerSecond
	}
	client := dataset.NewAPIClient(s.cfg.Data.API.BaseURL, s.cfg.Data.API.APIKey, httpCfg, s.logger)
	defer client.Close()

	market, err := client.FetchMarket(ctx, s.cfg.Data.RiskSymbol, s.cfg.Data.CashSymbol, start, end)
	if err != nil {
		return nil, nil, err
	}

	raw := make(map[string][]float64, len(s.cfg.Signals))
	for _, sc := range s.cfg.Signals {
		col, err := signal.Construct(sc.Name, market)
		if err != nil {
			return nil, nil, err
		}
		raw[sc.Name] = col
	}
	return market, raw, nil
}

// clipToRange restricts CSV rows to the configured date window. Unparseable
// bounds leave the series untouched; Validate catches them later.
func (s *ResearchService) clipToRange(market *series.MarketSeries, raw *series.SignalMatrix) (*series.MarketSeries, *series.SignalMatrix) {
	start, errStart := time.Parse("2006-01-02", s.cfg.Data.StartDate)
	end, errEnd := time.Parse("2006-01-02", s.cfg.Data.EndDate)
	if errStart != nil || errEnd != nil || len(market.Dates) != market.Len() {
		return market, raw
	}
	lo, hi := 0, market.Len()
	for lo < hi && market.Dates[lo].Before(start) {
		lo++
	}
	for hi > lo && market.Dates[hi-1].After(end) {
		hi--
	}
	if lo == 0 && hi == market.Len() {
		return market, raw
	}
	return market.Slice(lo, hi), raw.SliceRows(lo, hi)
}

// RunComposite executes the composite grid search and persists the result
// when a repository is configured.
func (s *ResearchService) RunComposite(ctx context.Context) (*optimizer.Result, error) {
	market, signals, err := s.LoadData(ctx)
	if err != nil {
		return nil, err
	}
	result, err := s.composite.Run(ctx, signals, market, s.cfg.OptimizerOptions())
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, "composite", result); err != nil {
		return nil, err
	}
	return result, nil
}

// RunRobust executes the robust engine and persists the result when a
// repository is configured.
func (s *ResearchService) RunRobust(ctx context.Context) (*optimizer.Result, error) {
	market, signals, err := s.LoadData(ctx)
	if err != nil {
		return nil, err
	}
	result, err := s.robust.Run(ctx, signals, market, s.cfg.OptimizerOptions())
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, "robust", result); err != nil {
		return nil, err
	}
	return result, nil
}

// BacktestReport is the output of one standalone backtest run.
type BacktestReport struct {
	Result  *backtest.Result
	Metrics backtest.Metrics
	Stress  []backtest.EpisodeReport
}

// RunBacktest simulates the configured mapping over an equal-weighted signal
// composite and reports performance and stress tables.
func (s *ResearchService) RunBacktest(ctx context.Context) (*BacktestReport, error) {
	market, signals, err := s.LoadData(ctx)
	if err != nil {
		return nil, err
	}

	weights := make([]float64, signals.NumSignals())
	for i := range weights {
		weights[i] = 1.0 / float64(len(weights))
	}
	composite, err := signals.Composite(weights)
	if err != nil {
		return nil, err
	}
	targets := s.mapper.MapToWeight(composite, allocation.Method(s.cfg.Mapping.Method), s.cfg.MappingParams())

	result, err := backtest.Simulate(targets, market, s.cfg.BacktestConfig())
	if err != nil {
		return nil, err
	}
	return &BacktestReport{
		Result:  result,
		Metrics: backtest.CalculateMetrics(result),
		Stress:  backtest.StressReport(result, backtest.DefaultEpisodes()),
	}, nil
}

// Reoptimize is the scheduled job body: a full robust run over the freshest
// configured data.
func (s *ResearchService) Reoptimize(ctx context.Context) error {
	result, err := s.RunRobust(ctx)
	if err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"run_id": result.RunID,
		"score":  result.Score,
	}).Info("Re-optimization produced new weights")
	return nil
}

func (s *ResearchService) persist(ctx context.Context, engine string, result *optimizer.Result) error {
	if s.repo == nil {
		return nil
	}
	return s.repo.SaveOptimization(ctx, engine, result)
}
