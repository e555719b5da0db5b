// Package dataset supplies aligned market and signal series to the core from
// external sources: local CSV files and a remote returns API. The core itself
// performs no I/O.
package dataset

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kagwert/risktool/internal/series"
)

const dateLayout = "2006-01-02"

// CSVLoader reads a combined market-and-signals file. Expected header:
// date,risk_return,cash_return followed by one column per raw signal.
type CSVLoader struct {
	logger *logrus.Logger
}

// NewCSVLoader creates a loader. A nil logger falls back to the logrus
// standard logger.
func NewCSVLoader(logger *logrus.Logger) *CSVLoader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CSVLoader{logger: logger}
}

// Load parses the file, sorts rows by date and returns the market series plus
// the raw (un-normalized) signal matrix. Unparseable numeric cells become
// NaN; market returns are then coerced to 0 with a logged count, while signal
// NaN entries are left for the normalization warmup to absorb.
func (l *CSVLoader) Load(path string) (*series.MarketSeries, *series.SignalMatrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse dataset file: %w", err)
	}
	if len(records) < 2 {
		return nil, nil, fmt.Errorf("dataset file %s has no data rows", path)
	}

	header := records[0]
	if len(header) < 3 || header[0] != "date" || header[1] != "risk_return" || header[2] != "cash_return" {
		return nil, nil, fmt.Errorf("dataset header must start with date,risk_return,cash_return, got %v", header)
	}
	signalNames := append([]string{}, header[3:]...)

	type row struct {
		date   time.Time
		values []float64
	}
	rows := make([]row, 0, len(records)-1)
	for i, record := range records[1:] {
		if len(record) != len(header) {
			return nil, nil, fmt.Errorf("row %d has %d fields, expected %d", i+2, len(record), len(header))
		}
		date, err := time.Parse(dateLayout, record[0])
		if err != nil {
			return nil, nil, fmt.Errorf("row %d has invalid date %q: %w", i+2, record[0], err)
		}
		values := make([]float64, len(record)-1)
		for j, cell := range record[1:] {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				v = math.NaN()
			}
			values[j] = v
		}
		rows = append(rows, row{date: date, values: values})
	}
	sort.Slice(rows, func(a, b int) bool { return rows[a].date.Before(rows[b].date) })

	market := &series.MarketSeries{
		Dates:       make([]time.Time, len(rows)),
		RiskReturns: make([]float64, len(rows)),
		CashReturns: make([]float64, len(rows)),
	}
	signals := &series.SignalMatrix{
		Names:   signalNames,
		Columns: make([][]float64, len(signalNames)),
	}
	for j := range signals.Columns {
		signals.Columns[j] = make([]float64, len(rows))
	}
	for t, r := range rows {
		market.Dates[t] = r.date
		market.RiskReturns[t] = r.values[0]
		market.CashReturns[t] = r.values[1]
		for j := range signalNames {
			signals.Columns[j][t] = r.values[2+j]
		}
	}

	if coerced := market.Clean(); coerced > 0 {
		l.logger.WithFields(logrus.Fields{
			"path":    path,
			"coerced": coerced,
		}).Warn("Coerced non-finite market returns to 0")
	}
	l.logger.WithFields(logrus.Fields{
		"path":    path,
		"rows":    len(rows),
		"signals": len(signalNames),
	}).Info("Loaded dataset")

	return market, signals, nil
}
