package signal

import (
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNormalizer() *Normalizer {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewNormalizer(logger)
}

func assertBoundedOrNaN(t *testing.T, out []float64) {
	t.Helper()
	for i, v := range out {
		if math.IsNaN(v) {
			continue
		}
		assert.GreaterOrEqual(t, v, -1.0, "index %d", i)
		assert.LessOrEqual(t, v, 1.0, "index %d", i)
	}
}

func TestNormalizeBoundsAllMethods(t *testing.T) {
	n := newTestNormalizer()
	raw := []float64{1, -2, 3, 0.5, -0.7, 8, -4, 2.2, 0.1, -1.1, 5, 0.9, -3.3, 1.7, 0.4}
	params := Params{MinHistory: 5, Window: 8, Scale: 2}

	methods := []Method{MethodRobustZ, MethodStandardZ, MethodRollingZ, MethodPercentile, MethodMinMax}
	for _, method := range methods {
		out := n.Normalize(raw, method, params)
		require.Len(t, out, len(raw), string(method))
		assertBoundedOrNaN(t, out)
	}
}

func TestNormalizeWarmupIsNaN(t *testing.T) {
	n := newTestNormalizer()
	raw := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	params := Params{MinHistory: 5, Window: 8, Scale: 2}

	out := n.Normalize(raw, MethodRobustZ, params)
	for i := 0; i < 4; i++ {
		assert.True(t, math.IsNaN(out[i]), "index %d should be warmup NaN", i)
	}
	for i := 4; i < len(out); i++ {
		assert.False(t, math.IsNaN(out[i]), "index %d should be defined", i)
	}
}

func TestNormalizeNaNInputStaysNaN(t *testing.T) {
	n := newTestNormalizer()
	raw := []float64{1, 2, math.NaN(), 4, 5, 6, 7}
	params := Params{MinHistory: 3, Window: 7, Scale: 2}

	out := n.Normalize(raw, MethodStandardZ, params)
	assert.True(t, math.IsNaN(out[2]))
	// The NaN row does not count toward the history requirement.
	assert.True(t, math.IsNaN(out[1]))
	assert.False(t, math.IsNaN(out[3]))
}

func TestMinMaxDegenerateRangeMapsToZero(t *testing.T) {
	n := newTestNormalizer()
	raw := []float64{3, 3, 3, 3, 3, 3}
	params := Params{MinHistory: 3, Window: 5, Scale: 2}

	out := n.Normalize(raw, MethodMinMax, params)
	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	for i := 2; i < len(out); i++ {
		assert.Equal(t, 0.0, out[i], "constant input maps to exactly 0 at index %d", i)
	}
}

func TestPercentileExpandingRank(t *testing.T) {
	n := newTestNormalizer()
	raw := []float64{1, 2, 3, 4, 5}
	params := Params{MinHistory: 2, Window: 63, Scale: 2}

	out := n.Normalize(raw, MethodPercentile, params)
	assert.True(t, math.IsNaN(out[0]))
	// Each new maximum ranks at (t + 0.5)/(t+1); output is 2*rank - 1.
	assert.InDelta(t, 0.5, out[1], 1e-12)
	assert.InDelta(t, 2.0/3.0, out[2], 1e-12)
	assert.InDelta(t, 0.75, out[3], 1e-12)
}

func TestUnknownMethodFallsBackToRobustZ(t *testing.T) {
	n := newTestNormalizer()
	raw := []float64{1, -2, 3, 0.5, -0.7, 8, -4, 2.2}
	params := Params{MinHistory: 3, Window: 8, Scale: 2}

	want := n.Normalize(raw, MethodRobustZ, params)
	got := n.Normalize(raw, Method("bogus"), params)
	require.Len(t, got, len(want))
	for i := range want {
		if math.IsNaN(want[i]) {
			assert.True(t, math.IsNaN(got[i]), "index %d", i)
			continue
		}
		assert.Equal(t, want[i], got[i], "index %d", i)
	}
}

func TestStandardZSign(t *testing.T) {
	n := newTestNormalizer()
	raw := []float64{0, 1, 0, 1, 0, 1, 10, -10}
	params := Params{MinHistory: 4, Window: 63, Scale: 1}

	out := n.Normalize(raw, MethodStandardZ, params)
	assert.Positive(t, out[6], "value far above the expanding mean")
	assert.Negative(t, out[7], "value far below the expanding mean")
}

func TestNormalizeMatrix(t *testing.T) {
	n := newTestNormalizer()
	raw := [][]float64{
		{1, 2, 3, 4, 5},
		{5, 4, 3, 2, 1},
	}
	out := n.NormalizeMatrix([]string{"a", "b"}, raw, MethodPercentile, Params{MinHistory: 2})

	require.NoError(t, out.Validate())
	assert.Equal(t, 2, out.NumSignals())
	assert.Equal(t, 5, out.Len())
}

func TestDefaultParams(t *testing.T) {
	p := Params{}.withDefaults()
	assert.Equal(t, 20, p.MinHistory)
	assert.Equal(t, 63, p.Window)
	assert.Equal(t, 2.0, p.Scale)
}
