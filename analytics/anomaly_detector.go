package analytics

import (
	"fmt"
	"math"

	"phasewatch/models"
)

const (
	DefaultWindowSize = 30
	DefaultThreshold  = 3.0
)

// ScoreSeries scores every reading of one channel against the circular
// baseline of the windowSize readings before it. The result is aligned with
// series; the first windowSize entries are undefined.
func ScoreSeries(series []float64, windowSize int) ([]models.Score, error) {
	if windowSize < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWindowSize, windowSize)
	}

	for i, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &MalformedReadingError{
				Index:  i,
				Reason: fmt.Sprintf("angle %v is not finite", v),
			}
		}
	}

	scores := make([]models.Score, len(series))
	for i := windowSize; i < len(series); i++ {
		baseline, err := CircularStatistics(series[i-windowSize : i])
		if err != nil {
			return nil, fmt.Errorf("window ending at %d: %w", i, err)
		}
		scores[i] = models.DefinedScore(baseline.Score(series[i]))
	}

	return scores, nil
}

// Detection is the outcome of scoring one live reading.
type Detection struct {
	Baseline  Baseline
	Score     models.Score
	IsAnomaly bool
}

// AnomalyDetector scores a live stream of one channel's angles. It is not
// safe for concurrent use; the engine gives each channel a single owner.
type AnomalyDetector struct {
	window    *RollingWindow
	threshold float64
}

func NewAnomalyDetector(windowSize int, threshold float64) *AnomalyDetector {
	if windowSize < 1 {
		windowSize = DefaultWindowSize
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &AnomalyDetector{
		window:    NewRollingWindow(windowSize),
		threshold: threshold,
	}
}

// Detect scores angle against the readings seen so far and then admits it
// into the window. Until the window is full the score is undefined.
func (ad *AnomalyDetector) Detect(angle float64) (Detection, error) {
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return Detection{}, &MalformedReadingError{
			Index:  ad.window.Len(),
			Reason: fmt.Sprintf("angle %v is not finite", angle),
		}
	}

	var d Detection
	if ad.window.Full() {
		baseline, err := ad.window.Baseline()
		if err != nil {
			return Detection{}, err
		}
		score := baseline.Score(angle)
		d = Detection{
			Baseline:  baseline,
			Score:     models.DefinedScore(score),
			IsAnomaly: math.Abs(score) > ad.threshold,
		}
	}

	ad.window.Add(angle)
	return d, nil
}
