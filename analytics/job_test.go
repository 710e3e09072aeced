package analytics_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phasewatch/analytics"
	"phasewatch/models"
)

type staticSource struct {
	table models.ReadingTable
	err   error
}

func (s staticSource) LoadReadings(context.Context, []string) (models.ReadingTable, error) {
	return s.table, s.err
}

type recordingSink struct {
	tables []models.ScoreTable
	err    error
}

func (s *recordingSink) WriteScores(_ context.Context, table models.ScoreTable) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.tables = append(s.tables, table)
	return table.DefinedCount(), nil
}

func newJobOrchestrator(t *testing.T) *analytics.Orchestrator {
	t.Helper()
	o, err := analytics.NewOrchestrator(analytics.OrchestratorConfig{
		Channels:   []string{"CAM1", "CAM2", "CAM3"},
		WindowSize: 30,
	})
	require.NoError(t, err)
	return o
}

func TestJob_Run(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	flagged := map[string]int{}
	job := &analytics.Job{
		Source:       staticSource{table: threeChannelTable()},
		Sinks:        []analytics.ResultSink{sink},
		Orchestrator: newJobOrchestrator(t),
		Threshold:    3,
		OnAnomaly:    func(ch string, n int) { flagged[ch] = n },
	}

	report, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 43, report.Rows)
	assert.Equal(t, 39, report.Scored)
	assert.Equal(t, 39, report.Written)
	assert.Equal(t, map[string]int{"CAM1": 1, "CAM2": 0, "CAM3": 0}, report.Anomalies)
	assert.Equal(t, map[string]int{"CAM1": 1}, flagged)
	require.Len(t, sink.tables, 1)
}

func TestJob_RunPropagatesErrors(t *testing.T) {
	t.Parallel()

	loadErr := errors.New("source offline")
	job := &analytics.Job{
		Source:       staticSource{err: loadErr},
		Orchestrator: newJobOrchestrator(t),
	}
	_, err := job.Run(context.Background())
	require.ErrorIs(t, err, loadErr)

	writeErr := errors.New("disk full")
	job = &analytics.Job{
		Source:       staticSource{table: threeChannelTable()},
		Sinks:        []analytics.ResultSink{&recordingSink{err: writeErr}},
		Orchestrator: newJobOrchestrator(t),
	}
	report, err := job.Run(context.Background())
	require.ErrorIs(t, err, writeErr)
	assert.Equal(t, 39, report.Scored)
}
