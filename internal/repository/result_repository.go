// Package repository persists optimization runs and backtest summaries to the
// result store.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kagwert/risktool/internal/backtest"
	"github.com/kagwert/risktool/internal/database"
	"github.com/kagwert/risktool/internal/optimizer"
)

// RunRecord is one row of the optimization run listing.
type RunRecord struct {
	RunID     string    `json:"run_id"`
	Engine    string    `json:"engine"`
	CreatedAt time.Time `json:"created_at"`
	Score     float64   `json:"score"`
	Message   string    `json:"message,omitempty"`
}

// ResultRepository stores and retrieves optimization results.
type ResultRepository struct {
	db     *database.DB
	logger *logrus.Logger
}

// NewResultRepository creates a repository. A nil logger falls back to the
// logrus standard logger.
func NewResultRepository(db *database.DB, logger *logrus.Logger) *ResultRepository {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ResultRepository{db: db, logger: logger}
}

// SaveOptimization persists one run with its full result document and the
// in/out-of-sample summaries.
func (r *ResultRepository) SaveOptimization(ctx context.Context, engine string, result *optimizer.Result) error {
	doc, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode optimization result: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO optimization_runs
			(run_id, engine, signal_names, weights, mapping_method, score, split_index, message, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		result.RunID,
		engine,
		result.SignalNames,
		result.Weights,
		string(result.MappingMethod),
		result.Score,
		result.SplitIndex,
		result.Message,
		doc,
	)
	if err != nil {
		return fmt.Errorf("failed to insert optimization run: %w", err)
	}

	if err := r.saveSummary(ctx, result.RunID, "in_sample", result.InSample); err != nil {
		return err
	}
	if err := r.saveSummary(ctx, result.RunID, "out_of_sample", result.OutOfSample); err != nil {
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"run_id": result.RunID,
		"engine": engine,
		"score":  result.Score,
	}).Info("Persisted optimization run")
	return nil
}

// saveSummary inserts one segment's metric row.
func (r *ResultRepository) saveSummary(ctx context.Context, runID, segment string, m backtest.Metrics) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO backtest_summaries
			(run_id, segment, total_return, annualized_return, annualized_vol,
			 sharpe_ratio, sortino_ratio, calmar_ratio, max_drawdown, avg_turnover, trading_days)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		runID,
		segment,
		m.TotalReturn,
		m.AnnualizedReturn,
		m.AnnualizedVol,
		m.SharpeRatio,
		m.SortinoRatio,
		m.CalmarRatio,
		m.MaxDrawdown,
		m.AvgTurnover,
		m.TradingDays,
	)
	if err != nil {
		return fmt.Errorf("failed to insert backtest summary: %w", err)
	}
	return nil
}

// GetOptimization loads one run's full result document by id.
func (r *ResultRepository) GetOptimization(ctx context.Context, runID string) (*optimizer.Result, error) {
	var doc []byte
	err := r.db.QueryRow(ctx,
		`SELECT result FROM optimization_runs WHERE run_id = $1`, runID,
	).Scan(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to load optimization run %s: %w", runID, err)
	}

	result := &optimizer.Result{}
	if err := json.Unmarshal(doc, result); err != nil {
		return nil, fmt.Errorf("failed to decode optimization run %s: %w", runID, err)
	}
	return result, nil
}

// ListRecent returns the newest runs, newest first.
func (r *ResultRepository) ListRecent(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx, `
		SELECT run_id, engine, created_at, score, COALESCE(message, '')
		FROM optimization_runs
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list optimization runs: %w", err)
	}
	defer rows.Close()

	records := make([]RunRecord, 0, limit)
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(&rec.RunID, &rec.Engine, &rec.CreatedAt, &rec.Score, &rec.Message); err != nil {
			return nil, fmt.Errorf("failed to scan optimization run: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
