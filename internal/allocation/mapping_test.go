package allocation

import (
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMapper() *Mapper {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewMapper(logger)
}

func TestMapToWeightBoundsAndNeutral(t *testing.T) {
	m := newTestMapper()
	signal := []float64{-1, -0.5, 0, math.NaN(), 0.5, 1}

	methods := []Method{MethodStep, MethodLinear, MethodSigmoid, MethodPiecewise, MethodSpline, MethodPower}
	for _, method := range methods {
		out := m.MapToWeight(signal, method, DefaultParams())
		require.Len(t, out, len(signal), string(method))
		for i, w := range out {
			assert.GreaterOrEqual(t, w, 0.0, "%s index %d", method, i)
			assert.LessOrEqual(t, w, 1.0, "%s index %d", method, i)
		}
		assert.Equal(t, Neutral, out[3], "%s maps NaN to the neutral weight", method)
	}
}

func TestStepFirstThresholdWins(t *testing.T) {
	m := newTestMapper()
	params := Params{
		Thresholds: []float64{-0.5, 0, 0.5},
		Levels:     []float64{0, 0.35, 0.65, 1},
	}

	assert.Equal(t, 0.0, m.MapValue(-0.6, MethodStep, params))
	// A value exactly on a threshold belongs to the bucket above it.
	assert.Equal(t, 0.35, m.MapValue(-0.5, MethodStep, params))
	assert.Equal(t, 0.35, m.MapValue(-0.1, MethodStep, params))
	assert.Equal(t, 0.65, m.MapValue(0.2, MethodStep, params))
	assert.Equal(t, 1.0, m.MapValue(0.9, MethodStep, params))
}

func TestLinearMidpoint(t *testing.T) {
	m := newTestMapper()

	assert.Equal(t, 0.5, m.MapValue(0, MethodLinear, Params{}))
	assert.Equal(t, 0.0, m.MapValue(-1, MethodLinear, Params{}))
	assert.Equal(t, 1.0, m.MapValue(1, MethodLinear, Params{}))
	assert.InDelta(t, 0.75, m.MapValue(0.5, MethodLinear, Params{}), 1e-12)
}

func TestSigmoidNeutralAtZero(t *testing.T) {
	m := newTestMapper()
	params := Params{Steepness: 5}

	assert.InDelta(t, 0.5, m.MapValue(0, MethodSigmoid, params), 1e-12)
	assert.InDelta(t, 1/(1+math.Exp(-5)), m.MapValue(1, MethodSigmoid, params), 1e-12)
	assert.Greater(t, m.MapValue(0.5, MethodSigmoid, params), m.MapValue(0.1, MethodSigmoid, params))
}

func TestPowerMapping(t *testing.T) {
	m := newTestMapper()
	params := Params{Exponent: 2}

	assert.InDelta(t, 0.625, m.MapValue(0.5, MethodPower, params), 1e-12)
	assert.InDelta(t, 0.375, m.MapValue(-0.5, MethodPower, params), 1e-12)
	assert.Equal(t, 0.5, m.MapValue(0, MethodPower, params))
	assert.Equal(t, 1.0, m.MapValue(1, MethodPower, params))
}

func TestPiecewiseInterpolation(t *testing.T) {
	m := newTestMapper()
	params := Params{
		BreakX: []float64{-1, 0, 1},
		BreakY: []float64{0.1, 0.5, 0.9},
	}

	assert.InDelta(t, 0.5, m.MapValue(0, MethodPiecewise, params), 1e-12)
	assert.InDelta(t, 0.7, m.MapValue(0.5, MethodPiecewise, params), 1e-12)
	assert.InDelta(t, 0.3, m.MapValue(-0.5, MethodPiecewise, params), 1e-12)
	// Extrapolation past the edge is clamped to the weight range.
	assert.Equal(t, 1.0, m.MapValue(2, MethodPiecewise, params))
}

func TestSplineMonotoneThroughCollinearBreakpoints(t *testing.T) {
	m := newTestMapper()
	params := Params{
		BreakX: []float64{-1, 0, 1},
		BreakY: []float64{0, 0.5, 1},
	}

	// Collinear breakpoints reproduce the straight line exactly.
	assert.InDelta(t, 0.75, m.MapValue(0.5, MethodSpline, params), 1e-9)
	assert.InDelta(t, 0.25, m.MapValue(-0.5, MethodSpline, params), 1e-9)

	prev := -1.0
	for s := -1.0; s <= 1.0; s += 0.05 {
		w := m.MapValue(s, MethodSpline, params)
		assert.GreaterOrEqual(t, w, prev, "spline must be monotone at s=%f", s)
		prev = w
	}
}

func TestUnknownMethodFallsBackToLinear(t *testing.T) {
	m := newTestMapper()

	assert.Equal(t, m.MapValue(0.3, MethodLinear, Params{}), m.MapValue(0.3, Method("bogus"), Params{}))
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate(MethodStep))

	bad := Params{Thresholds: []float64{0, -0.5}, Levels: []float64{0, 0.5, 1}}
	assert.Error(t, bad.Validate(MethodStep))

	mismatch := Params{Thresholds: []float64{0}, Levels: []float64{0.2}}
	assert.Error(t, mismatch.Validate(MethodStep))

	shortBreaks := Params{BreakX: []float64{0}, BreakY: []float64{0.5}}
	assert.Error(t, shortBreaks.Validate(MethodSpline))
}
