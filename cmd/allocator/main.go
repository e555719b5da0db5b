// Package main provides the allocator CLI: optimization runs, standalone
// backtests, the result-store listing and the scheduled service mode.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kagwert/risktool/internal/config"
	"github.com/kagwert/risktool/internal/database"
	applogger "github.com/kagwert/risktool/internal/logger"
	"github.com/kagwert/risktool/internal/metrics"
	"github.com/kagwert/risktool/internal/optimizer"
	"github.com/kagwert/risktool/internal/repository"
	"github.com/kagwert/risktool/internal/scheduler"
	"github.com/kagwert/risktool/internal/service"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var (
	configFile  string
	walkForward bool
	bootstrap   bool
	listLimit   int

	logger *logrus.Logger
	cfg    *config.Config
	db     *database.DB
	repo   *repository.ResultRepository
	svc    *service.ResearchService
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config/config.yaml", "Path to configuration file")
	robustCmd.Flags().BoolVar(&walkForward, "walk-forward", false, "Use walk-forward re-optimization instead of cross-validation")
	robustCmd.Flags().BoolVar(&bootstrap, "bootstrap", false, "Run the bootstrap weight-stability diagnostic")
	runsCmd.Flags().IntVar(&listLimit, "limit", 20, "Number of runs to list")

	rootCmd.AddCommand(optimizeCmd, robustCmd, backtestCmd, runsCmd, serveCmd, versionCmd)
}

var rootCmd = &cobra.Command{
	Use:   "allocator",
	Short: "Two-asset tactical allocation research toolkit",
	Long:  `Optimizes signal weights and mapping parameters for a two-asset allocation strategy, backtests them against realistic frictions and reports performance.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		if err := loadConfig(); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := setupDependencies(cmd.Context()); err != nil {
			return fmt.Errorf("failed to setup dependencies: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func loadConfig() error {
	var err error
	cfg, err = config.LoadWithDefaults(configFile)
	if err != nil {
		return err
	}
	if os.Getenv("AWS_SECRETS_ENABLED") == "true" {
		region := os.Getenv("AWS_REGION")
		secretName := os.Getenv("AWS_SECRET_NAME")
		if region == "" || secretName == "" {
			return fmt.Errorf("AWS_REGION and AWS_SECRET_NAME must be set when AWS_SECRETS_ENABLED is true")
		}
		if err := config.LoadSecretsFromAWS(cfg, region, secretName); err != nil {
			return fmt.Errorf("failed to load secrets: %w", err)
		}
	}
	return config.Validate(cfg)
}

func setupDependencies(ctx context.Context) error {
	logger = applogger.NewLogger(cfg.App.LogLevel)
	metrics.InitRegistry()

	if cfg.PersistenceEnabled() {
		var err error
		db, err = database.NewDB(ctx, &cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.InitSchema(ctx); err != nil {
			return err
		}
		repo = repository.NewResultRepository(db, logger)
	}

	svc = service.NewResearchService(cfg, logger, repo)
	return nil
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Run the composite grid search over the step mapping",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := svc.RunComposite(cmd.Context())
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

var robustCmd = &cobra.Command{
	Use:   "robust",
	Short: "Run the cross-validated or walk-forward robust optimization",
	RunE: func(cmd *cobra.Command, args []string) error {
		if walkForward {
			cfg.Optimization.WalkForward = true
		}
		if bootstrap {
			cfg.Optimization.Bootstrap = true
		}
		result, err := svc.RunRobust(cmd.Context())
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Backtest the configured mapping over an equal-weighted composite",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := svc.RunBacktest(cmd.Context())
		if err != nil {
			return err
		}
		m := report.Metrics
		fmt.Println("\n=== Backtest Summary ===")
		fmt.Printf("Annualized return: %.2f%%  vol: %.2f%%  Sharpe: %.2f  maxDD: %.2f%%\n",
			m.AnnualizedReturn*100, m.AnnualizedVol*100, m.SharpeRatio, m.MaxDrawdown*100)
		for _, ep := range report.Stress {
			fmt.Printf("  %-20s portfolio %+7.2f%%  60/40 %+7.2f%%\n", ep.Name, ep.PortfolioReturn*100, ep.Mix6040Return*100)
		}
		return nil
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent persisted optimization runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if repo == nil {
			return fmt.Errorf("no result store configured: set database.host")
		}
		records, err := repo.ListRecent(cmd.Context(), listLimit)
		if err != nil {
			return err
		}
		fmt.Printf("%-36s  %-10s  %-20s  %10s  %s\n", "RUN ID", "ENGINE", "CREATED", "SCORE", "MESSAGE")
		for _, rec := range records {
			fmt.Printf("%-36s  %-10s  %-20s  %10.4f  %s\n",
				rec.RunID, rec.Engine, rec.CreatedAt.Format(time.RFC3339), rec.Score, rec.Message)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduled re-optimization service with the metrics endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sched := scheduler.NewScheduler(logger)
		if cfg.Schedule.Enabled {
			if err := sched.ScheduleReoptimization(cfg.Schedule.ReoptimizeCron, svc.Reoptimize); err != nil {
				return err
			}
			if err := sched.Start(); err != nil {
				return err
			}
			defer sched.Stop()
		} else {
			logger.Warn("Schedule disabled, serving metrics only")
		}

		var httpServer *http.Server
		if cfg.Metrics.Enabled {
			mux := http.NewServeMux()
			mux.Handle(cfg.Metrics.Path, metrics.Handler())
			httpServer = &http.Server{
				Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
				Handler: mux,
			}
			go func() {
				logger.WithField("addr", httpServer.Addr).Info("Metrics endpoint listening")
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.WithError(err).Error("Metrics server failed")
					cancel()
				}
			}()
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	loop:
		for {
			select {
			case sig := <-sigChan:
				if sig == syscall.SIGHUP {
					if err := config.ReloadFromEnv(cfg); err != nil {
						logger.WithError(err).Error("Config reload failed")
					} else {
						logger.Info("Configuration reloaded")
					}
					continue
				}
				logger.WithField("signal", sig.String()).Info("Shutting down")
				break loop
			case <-ctx.Done():
				break loop
			}
		}

		if httpServer != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("Metrics server shutdown failed")
			}
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("allocator %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
	},
}

func printResult(result *optimizer.Result) {
	fmt.Println("\n=== Optimization Result ===")
	fmt.Printf("Run ID:  %s\n", result.RunID)
	fmt.Printf("Mapping: %s\n", result.MappingMethod)
	fmt.Printf("Score:   %.4f\n", result.Score)
	if result.Message != "" {
		fmt.Printf("Note:    %s\n", result.Message)
	}
	fmt.Println("Weights:")
	for i, name := range result.SignalNames {
		fmt.Printf("  %-20s %.4f\n", name, result.Weights[i])
	}
	fmt.Printf("In-sample:      Sharpe %.2f  return %.2f%%  maxDD %.2f%%\n",
		result.InSample.SharpeRatio, result.InSample.AnnualizedReturn*100, result.InSample.MaxDrawdown*100)
	fmt.Printf("Out-of-sample:  Sharpe %.2f  return %.2f%%  maxDD %.2f%%\n",
		result.OutOfSample.SharpeRatio, result.OutOfSample.AnnualizedReturn*100, result.OutOfSample.MaxDrawdown*100)
	for _, fold := range result.FoldMetrics {
		fmt.Printf("  fold %d [%d:%d]  Sharpe %.2f  return %.2f%%  maxDD %.2f%%\n",
			fold.Fold, fold.Start, fold.End, fold.SharpeRatio, fold.AnnualizedReturn*100, fold.MaxDrawdown*100)
	}
	if result.Bootstrap != nil {
		fmt.Printf("Bootstrap (%d replicates):\n", result.Bootstrap.Replicates)
		for i, name := range result.Bootstrap.Names {
			fmt.Printf("  %-20s mean %.3f  std %.3f  [%.3f, %.3f]\n",
				name, result.Bootstrap.Mean[i], result.Bootstrap.Std[i], result.Bootstrap.P5[i], result.Bootstrap.P95[i])
		}
	}
}
