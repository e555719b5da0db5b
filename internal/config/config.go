// Package config provides configuration management for the allocation
// research toolkit.
package config

import (
	"fmt"

	"github.com/kagwert/risktool/internal/allocation"
	"github.com/kagwert/risktool/internal/backtest"
	"github.com/kagwert/risktool/internal/objective"
	"github.com/kagwert/risktool/internal/optimizer"
	"github.com/kagwert/risktool/internal/signal"
)

// Config represents the complete application configuration
type Config struct {
	App          AppConfig          `mapstructure:"app" validate:"required"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Data         DataConfig         `mapstructure:"data" validate:"required"`
	Simulation   SimulationConfig   `mapstructure:"simulation" validate:"required"`
	Signals      []SignalConfig     `mapstructure:"signals" validate:"required,min=1,dive"`
	Mapping      MappingConfig      `mapstructure:"mapping" validate:"required"`
	Optimization OptimizationConfig `mapstructure:"optimization" validate:"required"`
	Schedule     ScheduleConfig     `mapstructure:"schedule"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// DatabaseConfig represents the optional result-store connection. An empty
// host disables persistence.
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable require verify-full"`
	MaxConnections     int    `mapstructure:"max_connections" validate:"omitempty,gt=0"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections" validate:"omitempty,gt=0"`
}

// DataConfig represents the market and signal data sources
type DataConfig struct {
	RiskSymbol string        `mapstructure:"risk_symbol" validate:"required"`
	CashSymbol string        `mapstructure:"cash_symbol" validate:"required"`
	StartDate  string        `mapstructure:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate    string        `mapstructure:"end_date" validate:"required,datetime=2006-01-02"`
	CSVPath    string        `mapstructure:"csv_path"`
	API        DataAPIConfig `mapstructure:"api"`
}

// DataAPIConfig represents the optional remote returns feed. An empty base
// URL disables it.
type DataAPIConfig struct {
	BaseURL            string  `mapstructure:"base_url" validate:"omitempty,url"`
	APIKey             string  `mapstructure:"api_key"`
	TimeoutSeconds     int     `mapstructure:"timeout_seconds" validate:"omitempty,gt=0"`
	RetryAttempts      int     `mapstructure:"retry_attempts" validate:"omitempty,gte=0"`
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second" validate:"omitempty,gt=0"`
}

// SimulationConfig represents backtest simulator parameters
type SimulationConfig struct {
	RebalanceFreqDays int     `mapstructure:"rebalance_freq_days" validate:"omitempty,gt=0"`
	TxCostRate        float64 `mapstructure:"tx_cost_rate" validate:"gte=0,lte=0.1"`
	EqMin             float64 `mapstructure:"eq_min" validate:"gte=0,lte=1"`
	EqMax             float64 `mapstructure:"eq_max" validate:"gte=0,lte=1"`
	StopLossDD        float64 `mapstructure:"stop_loss_dd" validate:"gte=0,lt=1"`
}

// SignalConfig represents one raw signal column and its normalization
type SignalConfig struct {
	Name       string  `mapstructure:"name" validate:"required"`
	Method     string  `mapstructure:"method" validate:"required,normmethod"`
	MinHistory int     `mapstructure:"min_history" validate:"omitempty,gt=0"`
	Window     int     `mapstructure:"window" validate:"omitempty,gt=1"`
	Scale      float64 `mapstructure:"scale" validate:"omitempty,gt=0"`
}

// MappingConfig represents the signal-to-weight mapping selection
type MappingConfig struct {
	Method     string    `mapstructure:"method" validate:"required,mapmethod"`
	Thresholds []float64 `mapstructure:"thresholds"`
	Levels     []float64 `mapstructure:"levels"`
	Steepness  float64   `mapstructure:"steepness" validate:"omitempty,gt=0"`
	BreakX     []float64 `mapstructure:"break_x"`
	BreakY     []float64 `mapstructure:"break_y"`
	Exponent   float64   `mapstructure:"exponent" validate:"omitempty,gt=0"`
}

// OptimizationConfig represents the search engines' shared settings
type OptimizationConfig struct {
	InSamplePct   float64          `mapstructure:"in_sample_pct" validate:"omitempty,gt=0,lt=1"`
	GridStep      float64          `mapstructure:"grid_step" validate:"omitempty,gt=0,lte=0.5"`
	RandomSamples int              `mapstructure:"random_samples" validate:"omitempty,gt=0"`
	Seed          int64            `mapstructure:"seed"`
	NumThresholds int              `mapstructure:"num_thresholds" validate:"omitempty,gt=0"`
	Folds         int              `mapstructure:"folds" validate:"omitempty,gt=1"`
	ReoptFreqDays int              `mapstructure:"reopt_freq_days" validate:"omitempty,gt=0"`
	WalkForward   bool             `mapstructure:"walk_forward"`
	Bootstrap     bool             `mapstructure:"bootstrap"`
	Workers       int              `mapstructure:"workers" validate:"omitempty,gt=0"`
	Objective     ObjectiveConfig  `mapstructure:"objective"`
	Constraints   ConstraintConfig `mapstructure:"constraints"`
}

// ObjectiveConfig represents the objective blend
type ObjectiveConfig struct {
	Alpha      float64 `mapstructure:"alpha"`
	Beta       float64 `mapstructure:"beta"`
	Gamma      float64 `mapstructure:"gamma"`
	UseSortino bool    `mapstructure:"use_sortino"`
	UseCalmar  bool    `mapstructure:"use_calmar"`
	MinVol     bool    `mapstructure:"min_vol"`
	RiskParity bool    `mapstructure:"risk_parity"`
	Lambda     float64 `mapstructure:"lambda" validate:"gte=0"`
	Kappa      float64 `mapstructure:"kappa" validate:"gte=0"`
}

// ConstraintConfig represents candidate bounds and the hard-priority rule
type ConstraintConfig struct {
	EqMin       float64 `mapstructure:"eq_min" validate:"gte=0,lte=1"`
	EqMax       float64 `mapstructure:"eq_max" validate:"gte=0,lte=1"`
	SigWtMin    float64 `mapstructure:"sig_wt_min" validate:"gte=0,lte=1"`
	SigWtMax    float64 `mapstructure:"sig_wt_max" validate:"gte=0,lte=1"`
	MaxTurnover float64 `mapstructure:"max_turnover" validate:"gte=0"`
	MaxDD       float64 `mapstructure:"max_dd" validate:"gte=0,lt=1"`
	Priority    string  `mapstructure:"priority" validate:"omitempty,oneof=none equity_bounds turnover drawdown"`
}

// ScheduleConfig represents the periodic re-optimization job
type ScheduleConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ReoptimizeCron string `mapstructure:"reoptimize_cron"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Path    string `mapstructure:"path"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsStaging checks if the application is running in staging mode
func (c *Config) IsStaging() bool {
	return c.App.Environment == "staging"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// PersistenceEnabled reports whether a result store is configured.
func (c *Config) PersistenceEnabled() bool {
	return c.Database.Host != ""
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// BacktestConfig converts the simulation section into simulator parameters.
func (c *Config) BacktestConfig() backtest.Config {
	return backtest.Config{
		RebalanceFreqDays: c.Simulation.RebalanceFreqDays,
		TxCostRate:        c.Simulation.TxCostRate,
		EqMin:             c.Simulation.EqMin,
		EqMax:             c.Simulation.EqMax,
		StopLossDD:        c.Simulation.StopLossDD,
	}
}

// MappingParams converts the mapping section into mapper parameters, filling
// unset fields from the documented defaults.
func (c *Config) MappingParams() allocation.Params {
	params := allocation.DefaultParams()
	if len(c.Mapping.Thresholds) > 0 {
		params.Thresholds = c.Mapping.Thresholds
	}
	if len(c.Mapping.Levels) > 0 {
		params.Levels = c.Mapping.Levels
	}
	if c.Mapping.Steepness > 0 {
		params.Steepness = c.Mapping.Steepness
	}
	if len(c.Mapping.BreakX) > 0 {
		params.BreakX = c.Mapping.BreakX
	}
	if len(c.Mapping.BreakY) > 0 {
		params.BreakY = c.Mapping.BreakY
	}
	if c.Mapping.Exponent > 0 {
		params.Exponent = c.Mapping.Exponent
	}
	return params
}

// NormalizeParams converts one signal section into normalization parameters.
func (s SignalConfig) NormalizeParams() signal.Params {
	params := signal.DefaultParams()
	if s.MinHistory > 0 {
		params.MinHistory = s.MinHistory
	}
	if s.Window > 1 {
		params.Window = s.Window
	}
	if s.Scale > 0 {
		params.Scale = s.Scale
	}
	return params
}

// OptimizerOptions assembles the full option set for either search engine.
func (c *Config) OptimizerOptions() optimizer.Options {
	opt := c.Optimization
	return optimizer.Options{
		InSamplePct:   opt.InSamplePct,
		GridStep:      opt.GridStep,
		RandomSamples: opt.RandomSamples,
		Seed:          opt.Seed,
		NumThresholds: opt.NumThresholds,
		Folds:         opt.Folds,
		ReoptFreqDays: opt.ReoptFreqDays,
		WalkForward:   opt.WalkForward,
		Bootstrap:     opt.Bootstrap,
		Workers:       opt.Workers,
		MappingMethod: allocation.Method(c.Mapping.Method),
		MappingParams: c.MappingParams(),
		Simulation:    c.BacktestConfig(),
		Objective: objective.Spec{
			Alpha:      opt.Objective.Alpha,
			Beta:       opt.Objective.Beta,
			Gamma:      opt.Objective.Gamma,
			UseSortino: opt.Objective.UseSortino,
			UseCalmar:  opt.Objective.UseCalmar,
			MinVol:     opt.Objective.MinVol,
			RiskParity: opt.Objective.RiskParity,
			Lambda:     opt.Objective.Lambda,
			Kappa:      opt.Objective.Kappa,
		},
		Constraints: objective.Constraints{
			EqMin:       opt.Constraints.EqMin,
			EqMax:       opt.Constraints.EqMax,
			SigWtMin:    opt.Constraints.SigWtMin,
			SigWtMax:    opt.Constraints.SigWtMax,
			MaxTurnover: opt.Constraints.MaxTurnover,
			MaxDD:       opt.Constraints.MaxDD,
			Priority:    objective.Priority(opt.Constraints.Priority),
		},
	}
}
