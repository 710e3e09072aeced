package analytics

import "math"

// AngularDifference returns the signed shortest rotation from b to a, in
// degrees, normalized into (-180, 180].
func AngularDifference(a, b float64) float64 {
	d := floorMod(a-b+180, 360) - 180
	if d <= -180 {
		return 180
	}
	return d
}

// NormalizeDegrees maps an angle into [0, 360).
func NormalizeDegrees(a float64) float64 {
	n := floorMod(a, 360)
	if n >= 360 {
		return 0
	}
	return n
}

// floorMod is the modulo whose result takes the sign of the divisor.
func floorMod(x, m float64) float64 {
	r := math.Mod(x, m)
	if r < 0 {
		r += m
	}
	return r
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
