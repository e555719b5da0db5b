package database

import (
	"context"
	"fmt"
)

// schema holds the result-store tables. Statements are idempotent so startup
// can always run them.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS optimization_runs (
		run_id UUID PRIMARY KEY,
		engine TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		signal_names TEXT[] NOT NULL,
		weights DOUBLE PRECISION[] NOT NULL,
		mapping_method TEXT NOT NULL,
		score DOUBLE PRECISION NOT NULL,
		split_index INTEGER NOT NULL,
		message TEXT,
		result JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_optimization_runs_created_at
		ON optimization_runs (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS backtest_summaries (
		id BIGSERIAL PRIMARY KEY,
		run_id UUID REFERENCES optimization_runs (run_id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		segment TEXT NOT NULL,
		total_return DOUBLE PRECISION NOT NULL,
		annualized_return DOUBLE PRECISION NOT NULL,
		annualized_vol DOUBLE PRECISION NOT NULL,
		sharpe_ratio DOUBLE PRECISION NOT NULL,
		sortino_ratio DOUBLE PRECISION NOT NULL,
		calmar_ratio DOUBLE PRECISION NOT NULL,
		max_drawdown DOUBLE PRECISION NOT NULL,
		avg_turnover DOUBLE PRECISION NOT NULL,
		trading_days INTEGER NOT NULL
	)`,
}

// InitSchema creates the result-store tables when they do not exist yet.
func (db *DB) InitSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}
