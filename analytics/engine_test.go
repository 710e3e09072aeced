package analytics_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phasewatch/analytics"
	"phasewatch/models"
)

type memoryCache struct {
	mu      sync.Mutex
	results map[string][]models.AnalysisResult
}

func (c *memoryCache) SaveAnalysis(_ context.Context, channelID string, result models.AnalysisResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.results == nil {
		c.results = make(map[string][]models.AnalysisResult)
	}
	c.results[channelID] = append(c.results[channelID], result)
	return nil
}

func reading(channel string, i int, angle float64) models.AngleReading {
	return models.AngleReading{
		Timestamp: testStart.Add(time.Duration(i) * time.Second).Format(time.RFC3339),
		ChannelID: channel,
		Angle:     angle,
	}
}

func TestAnalyticsEngine_ScoresPerChannelInOrder(t *testing.T) {
	t.Parallel()

	cache := &memoryCache{}
	var anomalies atomic.Int32
	engine := analytics.NewAnalyticsEngine(
		analytics.EngineConfig{WindowSize: 30, Threshold: 3, Workers: 4},
		cache,
		func(string) { anomalies.Add(1) },
	)

	series := outlierSeries()
	for i, angle := range series {
		for _, ch := range []string{"CAM1", "CAM2"} {
			ok, err := engine.ProcessReading(reading(ch, i, angle))
			require.NoError(t, err)
			require.True(t, ok)
		}
	}
	engine.Close()

	assert.Equal(t, int32(2), anomalies.Load())

	want, err := analytics.ScoreSeries(series, 30)
	require.NoError(t, err)

	for _, ch := range []string{"CAM1", "CAM2"} {
		got := cache.results[ch]
		require.Len(t, got, len(series))
		for i, res := range got {
			assert.Equal(t, want[i], res.Score, "%s index %d", ch, i)
		}

		outlier := got[30]
		assert.True(t, outlier.IsAnomaly)
		require.NotNil(t, outlier.Sigma)
		assert.Less(t, outlier.TailProbability, 0.001)
		assert.InDelta(t, 10, outlier.MeanAngle, 0.5)

		assert.False(t, got[0].Score.Defined)
		assert.Nil(t, got[0].Sigma)
		assert.Equal(t, 1.0, got[0].TailProbability)
	}
}

func TestAnalyticsEngine_RejectsAfterClose(t *testing.T) {
	t.Parallel()

	engine := analytics.NewAnalyticsEngine(analytics.EngineConfig{Workers: 4}, nil, nil)
	engine.Close()
	engine.Close()

	_, err := engine.ProcessReading(reading("CAM1", 0, 1))
	require.ErrorIs(t, err, analytics.ErrEngineClosed)
}
