// Package allocation maps bounded composite signals onto equity weights in
// [0, 1]. A NaN signal (insufficient history upstream) maps to the neutral
// weight 0.5 and every output is clamped to [0, 1].
package allocation

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/kagwert/risktool/internal/mathx"
)

// Neutral is the weight used when the signal carries no information.
const Neutral = 0.5

// Method identifies a mapping function family.
type Method string

// Supported mapping methods.
const (
	MethodStep      Method = "step"
	MethodLinear    Method = "linear"
	MethodSigmoid   Method = "sigmoid"
	MethodPiecewise Method = "piecewise"
	MethodSpline    Method = "spline"
	MethodPower     Method = "power"
)

// Params carries the per-method parameters. Zero values fall back to the
// documented defaults.
type Params struct {
	// Thresholds partition the signal space for the step mapping; must be
	// ascending. Levels holds the K+1 equity levels, first match wins.
	Thresholds []float64
	Levels     []float64

	// Steepness is the sigmoid slope k in 1/(1+exp(-k·s)). Default 5.
	Steepness float64

	// BreakX/BreakY are the interpolation breakpoints for the piecewise and
	// spline mappings. Default spans [-1,1] -> [0,1].
	BreakX []float64
	BreakY []float64

	// Exponent is the power-mapping exponent p. Default 2.
	Exponent float64
}

// DefaultParams returns the documented defaults for every family.
func DefaultParams() Params {
	return Params{
		Thresholds: []float64{-0.5, 0, 0.5},
		Levels:     []float64{0, 0.35, 0.65, 1},
		Steepness:  5,
		BreakX:     []float64{-1, 1},
		BreakY:     []float64{0, 1},
		Exponent:   2,
	}
}

// Validate checks structural consistency of step and breakpoint parameters.
func (p Params) Validate(method Method) error {
	switch method {
	case MethodStep:
		if len(p.Levels) != len(p.Thresholds)+1 {
			return fmt.Errorf("step mapping needs %d levels for %d thresholds, got %d",
				len(p.Thresholds)+1, len(p.Thresholds), len(p.Levels))
		}
		if !sort.Float64sAreSorted(p.Thresholds) {
			return fmt.Errorf("step thresholds must be ascending")
		}
	case MethodPiecewise, MethodSpline:
		if len(p.BreakX) != len(p.BreakY) {
			return fmt.Errorf("breakpoint x/y length mismatch: %d vs %d", len(p.BreakX), len(p.BreakY))
		}
		if len(p.BreakX) < 2 {
			return fmt.Errorf("interpolation needs at least two breakpoints")
		}
		if !sort.Float64sAreSorted(p.BreakX) {
			return fmt.Errorf("breakpoint x values must be ascending")
		}
	}
	return nil
}

// Mapper converts signal series into weight series.
type Mapper struct {
	logger *logrus.Logger
}

// NewMapper creates a mapper. A nil logger falls back to the logrus standard
// logger.
func NewMapper(logger *logrus.Logger) *Mapper {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Mapper{logger: logger}
}

// MapToWeight converts a bounded signal series into target equity weights.
// Unknown methods degrade to the linear mapping with a warning.
func (m *Mapper) MapToWeight(signal []float64, method Method, params Params) []float64 {
	point := m.pointMapper(method, params)
	out := make([]float64, len(signal))
	for t, s := range signal {
		if math.IsNaN(s) {
			out[t] = Neutral
			continue
		}
		out[t] = mathx.Clamp(point(s), 0, 1)
	}
	return out
}

// MapValue converts a single signal value, applying the same neutral and
// clamping rules as MapToWeight.
func (m *Mapper) MapValue(s float64, method Method, params Params) float64 {
	if math.IsNaN(s) {
		return Neutral
	}
	return mathx.Clamp(m.pointMapper(method, params)(s), 0, 1)
}

func (m *Mapper) pointMapper(method Method, p Params) func(float64) float64 {
	def := DefaultParams()
	switch method {
	case MethodStep:
		thresholds := p.Thresholds
		levels := p.Levels
		if len(levels) != len(thresholds)+1 {
			thresholds, levels = def.Thresholds, def.Levels
		}
		return func(s float64) float64 { return stepValue(s, thresholds, levels) }
	case MethodLinear:
		return func(s float64) float64 { return (s + 1) / 2 }
	case MethodSigmoid:
		k := p.Steepness
		if k <= 0 {
			k = def.Steepness
		}
		return func(s float64) float64 { return 1 / (1 + math.Exp(-k*s)) }
	case MethodPiecewise:
		xs, ys := breakpointsOrDefault(p, def)
		return func(s float64) float64 { return interpLinear(s, xs, ys) }
	case MethodSpline:
		xs, ys := breakpointsOrDefault(p, def)
		slopes := monotoneSlopes(xs, ys)
		return func(s float64) float64 { return interpCubic(s, xs, ys, slopes) }
	case MethodPower:
		exp := p.Exponent
		if exp <= 0 {
			exp = def.Exponent
		}
		return func(s float64) float64 {
			sign := 1.0
			if s < 0 {
				sign = -1
			}
			return 0.5 + 0.5*sign*math.Pow(math.Abs(s), exp)
		}
	default:
		m.logger.WithField("method", string(method)).Warn("Unknown mapping method, falling back to linear")
		return func(s float64) float64 { return (s + 1) / 2 }
	}
}

// stepValue returns the level of the first ascending threshold the signal
// falls below; the last level catches everything above the final threshold.
func stepValue(s float64, thresholds, levels []float64) float64 {
	for i, th := range thresholds {
		if s < th {
			return levels[i]
		}
	}
	return levels[len(levels)-1]
}

func breakpointsOrDefault(p, def Params) ([]float64, []float64) {
	if len(p.BreakX) >= 2 && len(p.BreakX) == len(p.BreakY) && sort.Float64sAreSorted(p.BreakX) {
		return p.BreakX, p.BreakY
	}
	return def.BreakX, def.BreakY
}

// interpLinear interpolates through the breakpoints and extrapolates with the
// slope of the edge segment.
func interpLinear(s float64, xs, ys []float64) float64 {
	n := len(xs)
	if s <= xs[0] {
		return extrapolate(s, xs[0], ys[0], xs[1], ys[1])
	}
	if s >= xs[n-1] {
		return extrapolate(s, xs[n-2], ys[n-2], xs[n-1], ys[n-1])
	}
	i := sort.SearchFloat64s(xs, s) - 1
	return extrapolate(s, xs[i], ys[i], xs[i+1], ys[i+1])
}

func extrapolate(s, x0, y0, x1, y1 float64) float64 {
	if x1 == x0 {
		return y0
	}
	return y0 + (y1-y0)*(s-x0)/(x1-x0)
}

// monotoneSlopes computes Fritsch-Carlson tangents so the cubic interpolant
// preserves the shape of the breakpoints.
func monotoneSlopes(xs, ys []float64) []float64 {
	n := len(xs)
	deltas := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		h := xs[i+1] - xs[i]
		if h == 0 {
			deltas[i] = 0
			continue
		}
		deltas[i] = (ys[i+1] - ys[i]) / h
	}

	slopes := make([]float64, n)
	slopes[0] = deltas[0]
	slopes[n-1] = deltas[n-2]
	for i := 1; i < n-1; i++ {
		if deltas[i-1]*deltas[i] <= 0 {
			slopes[i] = 0
			continue
		}
		// Harmonic mean keeps the interpolant monotone between breakpoints.
		slopes[i] = 2 * deltas[i-1] * deltas[i] / (deltas[i-1] + deltas[i])
	}
	return slopes
}

// interpCubic evaluates the monotone cubic Hermite interpolant, extrapolating
// linearly with the endpoint tangents outside the breakpoint range.
func interpCubic(s float64, xs, ys, slopes []float64) float64 {
	n := len(xs)
	if s <= xs[0] {
		return ys[0] + slopes[0]*(s-xs[0])
	}
	if s >= xs[n-1] {
		return ys[n-1] + slopes[n-1]*(s-xs[n-1])
	}
	i := sort.SearchFloat64s(xs, s) - 1
	h := xs[i+1] - xs[i]
	if h == 0 {
		return ys[i]
	}
	t := (s - xs[i]) / h
	t2 := t * t
	t3 := t2 * t
	h00 := 2*t3 - 3*t2 + 1
	h10 := t3 - 2*t2 + t
	h01 := -2*t3 + 3*t2
	h11 := t3 - t2
	return h00*ys[i] + h10*h*slopes[i] + h01*ys[i+1] + h11*h*slopes[i+1]
}
