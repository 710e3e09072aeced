package analytics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// SigmaFloor keeps a near-constant window from producing huge scores.
	SigmaFloor = 0.1

	// ResultantEpsilon is the resultant length treated as zero. Sums of
	// sin/cos over exactly cancelling angles leave residue around 1e-16.
	ResultantEpsilon = 1e-12
)

// Baseline is the circular summary of one trailing window.
type Baseline struct {
	// MeanDegrees is the circular mean, normalized into [0, 360).
	MeanDegrees float64
	// ResultantLength is R in [0, 1]; 1 means no dispersion.
	ResultantLength float64
	// SigmaDegrees is the circular standard deviation, at least SigmaFloor,
	// or +Inf when the window's unit vectors cancel out.
	SigmaDegrees float64
}

// Dispersed reports whether the window has no preferred direction.
func (b Baseline) Dispersed() bool {
	return math.IsInf(b.SigmaDegrees, 1)
}

// Deviation is the signed shortest rotation from the baseline mean to angle.
func (b Baseline) Deviation(angle float64) float64 {
	return AngularDifference(angle, b.MeanDegrees)
}

// Score is the deviation in units of sigma. Against a dispersed baseline
// every deviation is negligible and the score is 0.
func (b Baseline) Score(angle float64) float64 {
	if b.Dispersed() {
		return 0
	}
	return b.Deviation(angle) / b.SigmaDegrees
}

// CircularStatistics computes the circular mean and standard deviation of a
// window of angles given in degrees.
func CircularStatistics(window []float64) (Baseline, error) {
	if len(window) == 0 {
		return Baseline{}, ErrEmptyWindow
	}

	radians := make([]float64, len(window))
	var sumSin, sumCos float64
	for i, deg := range window {
		if math.IsNaN(deg) || math.IsInf(deg, 0) {
			return Baseline{}, &MalformedReadingError{
				Index:  i,
				Reason: fmt.Sprintf("angle %v is not finite", deg),
			}
		}
		radians[i] = toRadians(deg)
		sumSin += math.Sin(radians[i])
		sumCos += math.Cos(radians[i])
	}

	n := float64(len(window))
	s, c := sumSin/n, sumCos/n

	r := math.Min(math.Hypot(s, c), 1)

	b := Baseline{
		MeanDegrees:     NormalizeDegrees(toDegrees(stat.CircularMean(radians, nil))),
		ResultantLength: r,
	}

	if r < ResultantEpsilon {
		b.SigmaDegrees = math.Inf(1)
		return b, nil
	}

	b.SigmaDegrees = math.Max(toDegrees(math.Sqrt(-2*math.Log(r))), SigmaFloor)
	return b, nil
}

// TailProbability is the two-sided normal tail mass beyond |score|.
func TailProbability(score float64) float64 {
	return 2 * distuv.UnitNormal.Survival(math.Abs(score))
}
