// Package main provides the entry point for the standalone backtest CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/kagwert/risktool/internal/config"
	"github.com/kagwert/risktool/internal/logger"
	"github.com/kagwert/risktool/internal/service"
)

func main() {
	var (
		configPath = flag.String("config", "config/config.yaml", "Path to config file")
		csvPath    = flag.String("csv", "", "Override dataset CSV path")
		startDate  = flag.String("start-date", "", "Override start date (YYYY-MM-DD)")
		endDate    = flag.String("end-date", "", "Override end date (YYYY-MM-DD)")
		mapping    = flag.String("mapping", "", "Override mapping method")
		stress     = flag.Bool("stress", true, "Print the stress episode table")
	)
	flag.Parse()

	bootstrap := logrus.New()
	cfg := loadConfigWithSecrets(*configPath, bootstrap)
	applyOverrides(cfg, *csvPath, *startDate, *endDate, *mapping)

	log := logger.NewLogger(cfg.App.LogLevel)
	ctx := context.Background()

	svc := service.NewResearchService(cfg, log, nil)
	log.WithFields(logrus.Fields{
		"risk":    cfg.Data.RiskSymbol,
		"cash":    cfg.Data.CashSymbol,
		"mapping": cfg.Mapping.Method,
	}).Info("Starting backtest")

	report, err := svc.RunBacktest(ctx)
	if err != nil {
		log.Fatalf("Backtest failed: %v", err)
	}

	printReport(report, *stress)
}

func loadConfigWithSecrets(path string, log *logrus.Logger) *config.Config {
	cfg, err := config.LoadWithDefaults(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("AWS_SECRETS_ENABLED") == "true" {
		region := os.Getenv("AWS_REGION")
		secretName := os.Getenv("AWS_SECRET_NAME")
		if region == "" || secretName == "" {
			log.Fatalf("AWS_REGION and AWS_SECRET_NAME environment variables must be set when AWS_SECRETS_ENABLED is true")
		}
		if err := config.LoadSecretsFromAWS(cfg, region, secretName); err != nil {
			log.Fatalf("Failed to load secrets: %v", err)
		}
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

func applyOverrides(cfg *config.Config, csvPath, startDate, endDate, mapping string) {
	if csvPath != "" {
		cfg.Data.CSVPath = csvPath
	}
	if startDate != "" {
		cfg.Data.StartDate = startDate
	}
	if endDate != "" {
		cfg.Data.EndDate = endDate
	}
	if mapping != "" {
		cfg.Mapping.Method = mapping
	}
}

func printReport(report *service.BacktestReport, stress bool) {
	m := report.Metrics
	fmt.Println("\n=== Backtest Report ===")
	fmt.Printf("Trading days:       %d\n", m.TradingDays)
	fmt.Printf("Total return:       %.2f%%\n", m.TotalReturn*100)
	fmt.Printf("Annualized return:  %.2f%%\n", m.AnnualizedReturn*100)
	fmt.Printf("Annualized vol:     %.2f%%\n", m.AnnualizedVol*100)
	fmt.Printf("Sharpe ratio:       %.2f\n", m.SharpeRatio)
	fmt.Printf("Sortino ratio:      %.2f\n", m.SortinoRatio)
	fmt.Printf("Calmar ratio:       %.2f\n", m.CalmarRatio)
	fmt.Printf("Max drawdown:       %.2f%%\n", m.MaxDrawdown*100)
	fmt.Printf("Skewness:           %.2f\n", m.Skewness)
	fmt.Printf("Excess kurtosis:    %.2f\n", m.ExcessKurtosis)
	fmt.Printf("Avg daily turnover: %.4f\n", m.AvgTurnover)
	fmt.Printf("Final wealth:       %.4f\n", report.Result.FinalWealth())

	if stress && len(report.Stress) > 0 {
		fmt.Println("\n=== Stress Episodes ===")
		for _, ep := range report.Stress {
			fmt.Printf("%-20s %4d days  portfolio %+7.2f%%  60/40 %+7.2f%%  risk asset %+7.2f%%  maxDD %6.2f%%\n",
				ep.Name, ep.Days,
				ep.PortfolioReturn*100, ep.Mix6040Return*100, ep.RiskAssetReturn*100, ep.MaxDrawdown*100)
		}
	}
}
