package service

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagwert/risktool/internal/config"
)

// writeFixtureCSV builds a dataset with a trending and an oscillating raw
// signal over consecutive calendar days.
func writeFixtureCSV(t *testing.T, days int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("date,risk_return,cash_return,momentum,carry\n")
	start := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i)
		risk := 0.0006 + 0.01*math.Sin(float64(i)/9)
		momentum := float64(i) * 0.01
		carry := math.Cos(float64(i) / 7)
		b.WriteString(fmt.Sprintf("%s,%.6f,0.000100,%.4f,%.4f\n",
			date.Format("2006-01-02"), risk, momentum, carry))
	}
	path := filepath.Join(t.TempDir(), "returns.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func fixtureConfig(t *testing.T, days int) *config.Config {
	t.Helper()
	return &config.Config{
		App: config.AppConfig{Name: "risktool", Environment: "development", LogLevel: "error"},
		Data: config.DataConfig{
			RiskSymbol: "SPY",
			CashSymbol: "BIL",
			StartDate:  "2020-01-01",
			EndDate:    "2020-12-31",
			CSVPath:    writeFixtureCSV(t, days),
		},
		Simulation: config.SimulationConfig{RebalanceFreqDays: 21, TxCostRate: 0.001, EqMax: 1},
		Signals: []config.SignalConfig{
			{Name: "momentum", Method: "robust_z", MinHistory: 10},
			{Name: "carry", Method: "percentile", MinHistory: 10},
		},
		Mapping:      config.MappingConfig{Method: "sigmoid", Steepness: 5},
		Optimization: config.OptimizationConfig{GridStep: 0.25, Workers: 4},
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestLoadData(t *testing.T) {
	cfg := fixtureConfig(t, 120)
	svc := NewResearchService(cfg, quietLogger(), nil)

	market, signals, err := svc.LoadData(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 120, market.Len())
	assert.Equal(t, []string{"momentum", "carry"}, signals.Names)
	require.NoError(t, signals.AlignedWith(market))

	// Normalized columns are bounded once past the warmup.
	for _, col := range signals.Columns {
		for i, v := range col {
			if math.IsNaN(v) {
				continue
			}
			assert.GreaterOrEqual(t, v, -1.0, "row %d", i)
			assert.LessOrEqual(t, v, 1.0, "row %d", i)
		}
	}
}

func TestLoadDataClipsToDateRange(t *testing.T) {
	cfg := fixtureConfig(t, 120)
	cfg.Data.StartDate = "2020-01-15"
	cfg.Data.EndDate = "2020-02-15"
	svc := NewResearchService(cfg, quietLogger(), nil)

	market, _, err := svc.LoadData(context.Background())
	require.NoError(t, err)

	// Jan 15 through Feb 15 inclusive is 32 calendar days.
	assert.Equal(t, 32, market.Len())
	assert.Equal(t, time.Date(2020, time.January, 15, 0, 0, 0, 0, time.UTC), market.Dates[0])
}

func TestLoadDataUnknownSignalColumn(t *testing.T) {
	cfg := fixtureConfig(t, 60)
	cfg.Signals = append(cfg.Signals, config.SignalConfig{Name: "sentiment", Method: "robust_z"})
	svc := NewResearchService(cfg, quietLogger(), nil)

	_, _, err := svc.LoadData(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sentiment")
}

func TestLoadDataNoSourceConfigured(t *testing.T) {
	cfg := fixtureConfig(t, 60)
	cfg.Data.CSVPath = ""
	svc := NewResearchService(cfg, quietLogger(), nil)

	_, _, err := svc.LoadData(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data source configured")
}

func TestRunBacktest(t *testing.T) {
	cfg := fixtureConfig(t, 150)
	svc := NewResearchService(cfg, quietLogger(), nil)

	report, err := svc.RunBacktest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 150, report.Metrics.TradingDays)
	assert.Len(t, report.Result.Returns, 150)
	for _, w := range report.Result.RealizedWeights {
		assert.GreaterOrEqual(t, w, 0.0)
		assert.LessOrEqual(t, w, 1.0)
	}
}

func TestRunComposite(t *testing.T) {
	cfg := fixtureConfig(t, 150)
	svc := NewResearchService(cfg, quietLogger(), nil)

	result, err := svc.RunComposite(context.Background())
	require.NoError(t, err)

	assert.Empty(t, result.Message)
	assert.Equal(t, []string{"momentum", "carry"}, result.SignalNames)
	sum := 0.0
	for _, w := range result.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestRunRobust(t *testing.T) {
	cfg := fixtureConfig(t, 200)
	svc := NewResearchService(cfg, quietLogger(), nil)

	result, err := svc.RunRobust(context.Background())
	require.NoError(t, err)

	assert.Empty(t, result.Message)
	assert.NotEmpty(t, result.RunID)
	assert.Greater(t, result.SplitIndex, 0)
}
