package analytics_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phasewatch/analytics"
)

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// clustered returns n angles cycling through center-1, center, center+1.
func clustered(center float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = center + float64(i%3-1)
	}
	return out
}

func TestCircularStatistics_ConstantWindowHitsFloor(t *testing.T) {
	t.Parallel()

	for _, theta := range []float64{0, 10, 179.5, 350, -30} {
		b, err := analytics.CircularStatistics(repeat(theta, 30))
		require.NoError(t, err)

		assert.InDelta(t, 0, analytics.AngularDifference(b.MeanDegrees, theta), 1e-9, "theta=%v", theta)
		assert.Equal(t, analytics.SigmaFloor, b.SigmaDegrees, "theta=%v", theta)
		assert.InDelta(t, 1, b.ResultantLength, 1e-12)
		assert.False(t, b.Dispersed())
	}
}

func TestCircularStatistics_MeanWrapsAroundZero(t *testing.T) {
	t.Parallel()

	b, err := analytics.CircularStatistics([]float64{359, 1})
	require.NoError(t, err)

	assert.InDelta(t, 0, analytics.AngularDifference(b.MeanDegrees, 0), 1e-9)
	assert.GreaterOrEqual(t, b.MeanDegrees, 0.0)
	assert.Less(t, b.MeanDegrees, 360.0)
}

func TestCircularStatistics_KnownSigma(t *testing.T) {
	t.Parallel()

	b, err := analytics.CircularStatistics(clustered(10, 30))
	require.NoError(t, err)

	r := (1 + 2*math.Cos(math.Pi/180)) / 3
	want := math.Sqrt(-2*math.Log(r)) * 180 / math.Pi

	assert.InDelta(t, 10, b.MeanDegrees, 1e-9)
	assert.InDelta(t, r, b.ResultantLength, 1e-12)
	assert.InDelta(t, want, b.SigmaDegrees, 1e-6)
	assert.InDelta(t, 1/want, b.Score(11), 1e-6)
}

func TestCircularStatistics_OpposedHalvesAreDispersed(t *testing.T) {
	t.Parallel()

	for _, theta := range []float64{0, 30, 77} {
		for _, half := range []int{1, 15} {
			window := append(repeat(theta, half), repeat(theta+180, half)...)

			b, err := analytics.CircularStatistics(window)
			require.NoError(t, err)

			assert.True(t, b.Dispersed(), "theta=%v n=%d", theta, 2*half)
			assert.True(t, math.IsInf(b.SigmaDegrees, 1))
			assert.Less(t, b.ResultantLength, analytics.ResultantEpsilon)

			for _, target := range []float64{theta, theta + 90, theta + 180, 3} {
				assert.Zero(t, b.Score(target))
			}
		}
	}
}

func TestCircularStatistics_SingleSample(t *testing.T) {
	t.Parallel()

	b, err := analytics.CircularStatistics([]float64{42})
	require.NoError(t, err)
	assert.InDelta(t, 42, b.MeanDegrees, 1e-9)
	assert.Equal(t, analytics.SigmaFloor, b.SigmaDegrees)
}

func TestCircularStatistics_Errors(t *testing.T) {
	t.Parallel()

	_, err := analytics.CircularStatistics(nil)
	require.ErrorIs(t, err, analytics.ErrEmptyWindow)

	_, err = analytics.CircularStatistics([]float64{1, math.NaN(), 3})
	var malformed *analytics.MalformedReadingError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, 1, malformed.Index)

	_, err = analytics.CircularStatistics([]float64{math.Inf(-1)})
	require.ErrorAs(t, err, &malformed)
}

func TestTailProbability(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1, analytics.TailProbability(0), 1e-12)
	assert.InDelta(t, 0.05, analytics.TailProbability(1.959964), 1e-5)
	assert.InDelta(t, analytics.TailProbability(2), analytics.TailProbability(-2), 1e-15)
}
