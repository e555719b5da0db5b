// Package series defines the aligned market and signal time series consumed
// by the simulator and the optimizers. The series are produced by external
// data collaborators (see internal/dataset) and are read-only to the core.
package series

import (
	"fmt"
	"math"
	"time"
)

// MarketSeries holds aligned daily returns for the two modeled instruments:
// a risk asset and a cash proxy. Length is fixed for a given run.
type MarketSeries struct {
	Dates       []time.Time
	RiskReturns []float64
	CashReturns []float64
}

// Len returns the number of daily records.
func (m *MarketSeries) Len() int {
	return len(m.RiskReturns)
}

// Validate checks internal alignment. Non-finite returns are an ingestion
// bug: Clean must run before the series reaches the core.
func (m *MarketSeries) Validate() error {
	if m == nil {
		return fmt.Errorf("market series is nil")
	}
	if len(m.RiskReturns) != len(m.CashReturns) {
		return fmt.Errorf("risk/cash length mismatch: %d vs %d", len(m.RiskReturns), len(m.CashReturns))
	}
	if len(m.Dates) != 0 && len(m.Dates) != len(m.RiskReturns) {
		return fmt.Errorf("dates length mismatch: %d vs %d", len(m.Dates), len(m.RiskReturns))
	}
	if m.Len() == 0 {
		return fmt.Errorf("market series is empty")
	}
	return nil
}

// Clean coerces non-finite returns to 0 in place and reports how many
// entries were touched.
func (m *MarketSeries) Clean() int {
	coerced := 0
	for i := range m.RiskReturns {
		if !isFinite(m.RiskReturns[i]) {
			m.RiskReturns[i] = 0
			coerced++
		}
	}
	for i := range m.CashReturns {
		if !isFinite(m.CashReturns[i]) {
			m.CashReturns[i] = 0
			coerced++
		}
	}
	return coerced
}

// Slice returns a view over rows [start, end). Dates are sliced when present.
func (m *MarketSeries) Slice(start, end int) *MarketSeries {
	out := &MarketSeries{
		RiskReturns: m.RiskReturns[start:end],
		CashReturns: m.CashReturns[start:end],
	}
	if len(m.Dates) == m.Len() {
		out.Dates = m.Dates[start:end]
	}
	return out
}

// SignalMatrix is a T×N matrix of normalized signals. Each column is an
// independent named series with entries in [-1, 1], or NaN where history is
// insufficient. Rows align 1:1 with the MarketSeries of the same run.
type SignalMatrix struct {
	Names   []string
	Columns [][]float64
}

// NumSignals returns the number of signal columns.
func (s *SignalMatrix) NumSignals() int {
	return len(s.Columns)
}

// Len returns the number of rows, 0 for an empty matrix.
func (s *SignalMatrix) Len() int {
	if len(s.Columns) == 0 {
		return 0
	}
	return len(s.Columns[0])
}

// Validate checks column alignment and naming.
func (s *SignalMatrix) Validate() error {
	if s == nil || len(s.Columns) == 0 {
		return fmt.Errorf("signal matrix is empty")
	}
	if len(s.Names) != len(s.Columns) {
		return fmt.Errorf("signal names/columns mismatch: %d vs %d", len(s.Names), len(s.Columns))
	}
	rows := len(s.Columns[0])
	for i, col := range s.Columns {
		if len(col) != rows {
			return fmt.Errorf("signal column %q length mismatch: %d vs %d", s.Names[i], len(col), rows)
		}
	}
	return nil
}

// AlignedWith verifies the matrix covers the same date range as the market.
func (s *SignalMatrix) AlignedWith(m *MarketSeries) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.Len() != m.Len() {
		return fmt.Errorf("signal/market length mismatch: %d vs %d", s.Len(), m.Len())
	}
	return nil
}

// Composite builds the weighted sum of signal columns. Rows where any
// weighted column is NaN stay NaN: the composite is only defined once every
// contributing signal has enough history.
func (s *SignalMatrix) Composite(weights []float64) ([]float64, error) {
	if len(weights) != s.NumSignals() {
		return nil, fmt.Errorf("weight count %d does not match signal count %d", len(weights), s.NumSignals())
	}
	out := make([]float64, s.Len())
	for t := range out {
		sum := 0.0
		for j, col := range s.Columns {
			if weights[j] == 0 {
				continue
			}
			v := col[t]
			if math.IsNaN(v) {
				sum = math.NaN()
				break
			}
			sum += weights[j] * v
		}
		out[t] = sum
	}
	return out, nil
}

// Resample returns a new matrix whose rows are taken from the given indices.
// Used by the bootstrap loop; the indices may repeat.
func (s *SignalMatrix) Resample(indices []int) *SignalMatrix {
	out := &SignalMatrix{
		Names:   s.Names,
		Columns: make([][]float64, len(s.Columns)),
	}
	for j, col := range s.Columns {
		resampled := make([]float64, len(indices))
		for i, idx := range indices {
			resampled[i] = col[idx]
		}
		out.Columns[j] = resampled
	}
	return out
}

// SliceRows returns a view over rows [start, end) of every column.
func (s *SignalMatrix) SliceRows(start, end int) *SignalMatrix {
	out := &SignalMatrix{
		Names:   s.Names,
		Columns: make([][]float64, len(s.Columns)),
	}
	for j, col := range s.Columns {
		out.Columns[j] = col[start:end]
	}
	return out
}

// ResampleMarket mirrors SignalMatrix.Resample for the market rows so both
// stay index-aligned under bootstrap resampling.
func ResampleMarket(m *MarketSeries, indices []int) *MarketSeries {
	out := &MarketSeries{
		RiskReturns: make([]float64, len(indices)),
		CashReturns: make([]float64, len(indices)),
	}
	for i, idx := range indices {
		out.RiskReturns[i] = m.RiskReturns[idx]
		out.CashReturns[i] = m.CashReturns[idx]
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
