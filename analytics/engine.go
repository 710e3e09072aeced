package analytics

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"phasewatch/models"
)

// ErrEngineClosed is returned by ProcessReading after Close.
var ErrEngineClosed = errors.New("analytics engine is closed")

type AnomalyCallback func(channelID string)

// ResultCache stores the latest verdict per channel.
type ResultCache interface {
	SaveAnalysis(ctx context.Context, channelID string, result models.AnalysisResult) error
}

type EngineConfig struct {
	WindowSize int
	Threshold  float64
	// Workers is the number of shards; 0 reads ANALYTICS_WORKERS or
	// falls back to twice the CPU count, clamped to [4, 16].
	Workers    int
	QueueSize  int
	CacheWrite time.Duration
}

// AnalyticsEngine scores live readings. Each channel hashes to one worker,
// which owns that channel's detector, so a channel's readings are scored in
// arrival order without locking.
type AnalyticsEngine struct {
	cfg       EngineConfig
	cache     ResultCache
	onAnomaly AnomalyCallback
	shards    []chan models.AngleReading

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewAnalyticsEngine(cfg EngineConfig, cache ResultCache, onAnomaly AnomalyCallback) *AnalyticsEngine {
	if cfg.WindowSize < 1 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 10000
	}
	if cfg.CacheWrite <= 0 {
		cfg.CacheWrite = 2 * time.Second
	}

	numWorkers := cfg.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU() * 2
		if envWorkers := os.Getenv("ANALYTICS_WORKERS"); envWorkers != "" {
			if w, err := strconv.Atoi(envWorkers); err == nil && w > 0 {
				numWorkers = w
			}
		}
		if numWorkers < 4 {
			numWorkers = 4
		}
		if numWorkers > 16 {
			numWorkers = 16
		}
	}

	engine := &AnalyticsEngine{
		cfg:       cfg,
		cache:     cache,
		onAnomaly: onAnomaly,
		shards:    make([]chan models.AngleReading, numWorkers),
	}

	perShard := cfg.QueueSize / numWorkers
	if perShard < 1 {
		perShard = 1
	}

	slog.Info("starting analytics workers", "workers", numWorkers, "window_size", cfg.WindowSize)
	for i := range engine.shards {
		engine.shards[i] = make(chan models.AngleReading, perShard)
		engine.wg.Add(1)
		go engine.processReadings(engine.shards[i])
	}

	return engine
}

// ProcessReading enqueues a reading. It reports false when the channel's
// shard is full and the reading was dropped.
func (ae *AnalyticsEngine) ProcessReading(reading models.AngleReading) (bool, error) {
	ae.mu.RLock()
	defer ae.mu.RUnlock()

	if ae.closed {
		return false, ErrEngineClosed
	}

	shard := ae.shards[xxhash.Sum64String(reading.ChannelID)%uint64(len(ae.shards))]
	select {
	case shard <- reading:
		return true, nil
	default:
		slog.Warn("shard queue is full, dropping reading", "channel", reading.ChannelID)
		return false, nil
	}
}

// Close stops accepting readings and waits for queued ones to be scored.
func (ae *AnalyticsEngine) Close() {
	ae.mu.Lock()
	if ae.closed {
		ae.mu.Unlock()
		return
	}
	ae.closed = true
	for _, shard := range ae.shards {
		close(shard)
	}
	ae.mu.Unlock()

	ae.wg.Wait()
}

func (ae *AnalyticsEngine) processReadings(readings <-chan models.AngleReading) {
	defer ae.wg.Done()

	detectors := make(map[string]*AnomalyDetector)
	for reading := range readings {
		det, ok := detectors[reading.ChannelID]
		if !ok {
			det = NewAnomalyDetector(ae.cfg.WindowSize, ae.cfg.Threshold)
			detectors[reading.ChannelID] = det
		}
		ae.processReading(det, reading)
	}
}

func (ae *AnalyticsEngine) processReading(det *AnomalyDetector, reading models.AngleReading) {
	d, err := det.Detect(reading.Angle)
	if err != nil {
		slog.Error("rejecting reading", "channel", reading.ChannelID, "err", err)
		return
	}

	result := models.AnalysisResult{
		ChannelID:       reading.ChannelID,
		Angle:           reading.Angle,
		MeanAngle:       d.Baseline.MeanDegrees,
		ResultantLength: d.Baseline.ResultantLength,
		Score:           d.Score,
		TailProbability: 1,
		IsAnomaly:       d.IsAnomaly,
		ProcessedAt:     reading.ProcessedAt(),
	}
	if d.Score.Defined {
		result.TailProbability = TailProbability(d.Score.Value)
		if !d.Baseline.Dispersed() {
			sigma := d.Baseline.SigmaDegrees
			result.Sigma = &sigma
		}
	}

	if ae.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), ae.cfg.CacheWrite)
		if err := ae.cache.SaveAnalysis(ctx, reading.ChannelID, result); err != nil {
			slog.Debug("failed to save analysis", "channel", reading.ChannelID, "err", err)
		}
		cancel()
	}

	if d.IsAnomaly {
		slog.Warn("anomaly detected",
			"channel", reading.ChannelID,
			"angle", reading.Angle,
			"mean_angle", round2(d.Baseline.MeanDegrees),
			"score", round2(d.Score.Value))

		if ae.onAnomaly != nil {
			ae.onAnomaly(reading.ChannelID)
		}
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
