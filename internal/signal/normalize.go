// Package signal converts raw, unbounded signal measurements into bounded
// activations in [-1, 1]. Every method is point-in-time: a value at day t is
// computed from history up to and including t, never from future rows.
package signal

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/kagwert/risktool/internal/mathx"
	"github.com/kagwert/risktool/internal/series"
)

// Method identifies a normalization transform.
type Method string

// Supported normalization methods.
const (
	MethodRobustZ    Method = "robust_z"
	MethodStandardZ  Method = "standard_z"
	MethodRollingZ   Method = "rolling_z"
	MethodPercentile Method = "percentile"
	MethodMinMax     Method = "minmax"
)

// Params configures a normalization run.
type Params struct {
	// MinHistory is the number of finite observations required before the
	// output stops being NaN.
	MinHistory int
	// Window is the trailing window length for the rolling methods.
	Window int
	// Scale divides the z-score before the tanh squash.
	Scale float64
}

// DefaultParams returns the parameter set used when a caller passes the zero
// value.
func DefaultParams() Params {
	return Params{MinHistory: 20, Window: 63, Scale: 2.0}
}

func (p Params) withDefaults() Params {
	def := DefaultParams()
	if p.MinHistory <= 0 {
		p.MinHistory = def.MinHistory
	}
	if p.Window <= 0 {
		p.Window = def.Window
	}
	if p.Scale <= 0 {
		p.Scale = def.Scale
	}
	return p
}

// Normalizer applies bounded transforms to raw signal columns.
type Normalizer struct {
	logger *logrus.Logger
}

// NewNormalizer creates a normalizer. A nil logger falls back to the logrus
// standard logger.
func NewNormalizer(logger *logrus.Logger) *Normalizer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Normalizer{logger: logger}
}

// Normalize transforms one raw column into a bounded activation column of the
// same length. Unknown methods degrade to RobustZ with a warning.
func (n *Normalizer) Normalize(raw []float64, method Method, params Params) []float64 {
	params = params.withDefaults()

	switch method {
	case MethodRobustZ:
		return n.robustZ(raw, params)
	case MethodStandardZ:
		return n.standardZ(raw, params)
	case MethodRollingZ:
		return n.rollingZ(raw, params)
	case MethodPercentile:
		return n.percentile(raw, params)
	case MethodMinMax:
		return n.minMax(raw, params)
	default:
		n.logger.WithField("method", string(method)).Warn("Unknown normalization method, falling back to robust_z")
		return n.robustZ(raw, params)
	}
}

// NormalizeMatrix builds a SignalMatrix by normalizing every named raw column
// with the same method and parameters.
func (n *Normalizer) NormalizeMatrix(names []string, raw [][]float64, method Method, params Params) *series.SignalMatrix {
	out := &series.SignalMatrix{
		Names:   names,
		Columns: make([][]float64, len(raw)),
	}
	for i, col := range raw {
		out.Columns[i] = n.Normalize(col, method, params)
	}
	return out
}

// robustZ uses expanding median/MAD with the 1.4826 consistency factor and a
// tanh squash.
func (n *Normalizer) robustZ(raw []float64, p Params) []float64 {
	out := nanSlice(len(raw))
	hist := make([]float64, 0, len(raw))
	for t, v := range raw {
		if !math.IsNaN(v) {
			hist = append(hist, v)
		}
		if math.IsNaN(v) || len(hist) < p.MinHistory {
			continue
		}
		scale := 1.4826 * math.Max(mathx.MAD(hist), mathx.MADFloor)
		z := (v - mathx.Median(hist)) / scale
		out[t] = mathx.Tanh(z, p.Scale)
	}
	return out
}

// standardZ uses expanding mean/standard deviation with a tanh squash.
func (n *Normalizer) standardZ(raw []float64, p Params) []float64 {
	out := nanSlice(len(raw))
	hist := make([]float64, 0, len(raw))
	for t, v := range raw {
		if !math.IsNaN(v) {
			hist = append(hist, v)
		}
		if math.IsNaN(v) || len(hist) < p.MinHistory {
			continue
		}
		sd := math.Max(mathx.StdDev(hist), mathx.MADFloor)
		z := (v - mathx.Mean(hist)) / sd
		out[t] = mathx.Tanh(z, p.Scale)
	}
	return out
}

// rollingZ is standardZ over a fixed trailing window instead of the full
// history.
func (n *Normalizer) rollingZ(raw []float64, p Params) []float64 {
	out := nanSlice(len(raw))
	for t, v := range raw {
		if math.IsNaN(v) {
			continue
		}
		window := trailingFinite(raw, t, p.Window)
		if len(window) < p.MinHistory {
			continue
		}
		sd := math.Max(mathx.StdDev(window), mathx.MADFloor)
		z := (v - mathx.Mean(window)) / sd
		out[t] = mathx.Tanh(z, p.Scale)
	}
	return out
}

// percentile maps the expanding empirical rank linearly onto [-1, 1].
func (n *Normalizer) percentile(raw []float64, p Params) []float64 {
	out := nanSlice(len(raw))
	hist := make([]float64, 0, len(raw))
	for t, v := range raw {
		if !math.IsNaN(v) {
			hist = append(hist, v)
		}
		if math.IsNaN(v) || len(hist) < p.MinHistory {
			continue
		}
		out[t] = 2*mathx.Rank(hist, v) - 1
	}
	return out
}

// minMax rescales against the rolling min/max onto [-1, 1]. A degenerate
// range maps to exactly 0.
func (n *Normalizer) minMax(raw []float64, p Params) []float64 {
	out := nanSlice(len(raw))
	for t, v := range raw {
		if math.IsNaN(v) {
			continue
		}
		window := trailingFinite(raw, t, p.Window)
		if len(window) < p.MinHistory {
			continue
		}
		lo, hi := window[0], window[0]
		for _, w := range window {
			if w < lo {
				lo = w
			}
			if w > hi {
				hi = w
			}
		}
		if hi-lo < mathx.RangeFloor {
			out[t] = 0
			continue
		}
		out[t] = mathx.Clamp(2*(v-lo)/(hi-lo)-1, -1, 1)
	}
	return out
}

// trailingFinite collects the finite values in raw[t-window+1 .. t].
func trailingFinite(raw []float64, t, window int) []float64 {
	start := t - window + 1
	if start < 0 {
		start = 0
	}
	out := make([]float64, 0, t-start+1)
	for i := start; i <= t; i++ {
		if !math.IsNaN(raw[i]) {
			out = append(out, raw[i])
		}
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
