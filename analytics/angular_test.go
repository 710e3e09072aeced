package analytics_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"phasewatch/analytics"
)

func TestAngularDifference(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b float64
		want float64
	}{
		{"wraps through zero backwards", 359, 1, -2},
		{"wraps through zero forwards", 1, 359, 2},
		{"equal angles", 10, 10, 0},
		{"half turn is positive", 0, 180, 180},
		{"half turn reversed is positive", 180, 0, 180},
		{"negative input", -190, 0, 170},
		{"far outside one turn", 730, 5, 5},
		{"far negative", -725, 0, -5},
		{"quarter turn", 100, 10, 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, analytics.AngularDifference(tt.a, tt.b), 1e-9)
		})
	}
}

func TestAngularDifference_RangeAndAntisymmetry(t *testing.T) {
	t.Parallel()

	for a := -720.0; a <= 720; a += 37.5 {
		for b := -720.0; b <= 720; b += 23.25 {
			d := analytics.AngularDifference(a, b)
			assert.Greater(t, d, -180.0, "a=%v b=%v", a, b)
			assert.LessOrEqual(t, d, 180.0, "a=%v b=%v", a, b)

			if math.Abs(d) < 180 {
				assert.InDelta(t, -d, analytics.AngularDifference(b, a), 1e-9, "a=%v b=%v", a, b)
			}
		}
	}
}

func TestNormalizeDegrees(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 350.0, analytics.NormalizeDegrees(-10), 1e-9)
	assert.InDelta(t, 0.0, analytics.NormalizeDegrees(360), 1e-9)
	assert.InDelta(t, 5.0, analytics.NormalizeDegrees(725), 1e-9)
	assert.InDelta(t, 42.0, analytics.NormalizeDegrees(42), 1e-9)
}
