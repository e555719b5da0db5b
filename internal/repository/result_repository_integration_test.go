//go:build integration

package repository

import (
	"context"
	"os"
	"strconv"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagwert/risktool/internal/allocation"
	"github.com/kagwert/risktool/internal/backtest"
	"github.com/kagwert/risktool/internal/config"
	"github.com/kagwert/risktool/internal/database"
	"github.com/kagwert/risktool/internal/optimizer"
)

const skipIntegration = "Skipping integration test in short mode"

// setupTestDB connects to the database named by the TEST_DB_* environment
// variables and ensures the schema exists. Tests skip when TEST_DB_HOST is
// unset.
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping database integration test")
	}

	port := 5432
	if p, err := strconv.Atoi(os.Getenv("TEST_DB_PORT")); err == nil && p > 0 {
		port = p
	}
	cfg := &config.DatabaseConfig{
		Host:     host,
		Port:     port,
		Name:     envOr("TEST_DB_NAME", "risktool_test"),
		User:     envOr("TEST_DB_USER", "postgres"),
		Password: os.Getenv("TEST_DB_PASSWORD"),
		SSLMode:  envOr("TEST_DB_SSLMODE", "disable"),
	}

	ctx := context.Background()
	db, err := database.NewDB(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, db.InitSchema(ctx))
	t.Cleanup(db.Close)
	return db
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func testResult() *optimizer.Result {
	return &optimizer.Result{
		RunID:         uuid.New().String(),
		SignalNames:   []string{"momentum", "carry"},
		Weights:       []float64{0.6, 0.4},
		MappingMethod: allocation.MethodSigmoid,
		MappingParams: allocation.DefaultParams(),
		Score:         0.42,
		SplitIndex:    333,
		InSample:      backtest.Metrics{TradingDays: 333, SharpeRatio: 1.1},
		OutOfSample:   backtest.Metrics{TradingDays: 67, SharpeRatio: 0.8},
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestResultRepositoryRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip(skipIntegration)
	}

	ctx := context.Background()
	repo := NewResultRepository(setupTestDB(t), quietLogger())

	want := testResult()
	require.NoError(t, repo.SaveOptimization(ctx, "robust", want))

	got, err := repo.GetOptimization(ctx, want.RunID)
	require.NoError(t, err)
	assert.Equal(t, want.SignalNames, got.SignalNames)
	assert.Equal(t, want.Weights, got.Weights)
	assert.Equal(t, want.Score, got.Score)
	assert.Equal(t, want.SplitIndex, got.SplitIndex)
	assert.Equal(t, want.InSample.SharpeRatio, got.InSample.SharpeRatio)
}

func TestResultRepositoryListRecent(t *testing.T) {
	if testing.Short() {
		t.Skip(skipIntegration)
	}

	ctx := context.Background()
	repo := NewResultRepository(setupTestDB(t), quietLogger())

	first := testResult()
	second := testResult()
	require.NoError(t, repo.SaveOptimization(ctx, "composite", first))
	require.NoError(t, repo.SaveOptimization(ctx, "robust", second))

	records, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(records), 2)

	seen := map[string]string{}
	for _, rec := range records {
		seen[rec.RunID] = rec.Engine
	}
	assert.Equal(t, "composite", seen[first.RunID])
	assert.Equal(t, "robust", seen[second.RunID])

	// Newest first.
	for i := 1; i < len(records); i++ {
		assert.False(t, records[i].CreatedAt.After(records[i-1].CreatedAt))
	}
}

func TestResultRepositoryGetMissingRun(t *testing.T) {
	if testing.Short() {
		t.Skip(skipIntegration)
	}

	repo := NewResultRepository(setupTestDB(t), quietLogger())
	_, err := repo.GetOptimization(context.Background(), uuid.New().String())
	assert.Error(t, err)
}

func TestResultRepositoryConcurrentSaves(t *testing.T) {
	if testing.Short() {
		t.Skip(skipIntegration)
	}

	ctx := context.Background()
	repo := NewResultRepository(setupTestDB(t), quietLogger())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.SaveOptimization(ctx, "robust", testResult()))
		}()
	}
	wg.Wait()
}
