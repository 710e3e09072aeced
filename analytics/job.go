package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"phasewatch/models"
)

// ReadingSource supplies rows sorted by time with one angle per channel.
type ReadingSource interface {
	LoadReadings(ctx context.Context, channels []string) (models.ReadingTable, error)
}

// ResultSink persists a score table. Implementations own batching,
// transactions and partial-failure handling; the returned count is the
// number of scores they stored.
type ResultSink interface {
	WriteScores(ctx context.Context, table models.ScoreTable) (int, error)
}

// JobReport summarizes one batch run.
type JobReport struct {
	Rows      int
	Scored    int
	Written   int
	Anomalies map[string]int
	Failures  map[string]string
	Load      time.Duration
	Compute   time.Duration
	Persist   time.Duration
}

// Job runs one load, score, write-back cycle. It holds no state between
// runs, so rerunning it recomputes every score from the loaded history.
type Job struct {
	Source       ReadingSource
	Sinks        []ResultSink
	Orchestrator *Orchestrator
	Threshold    float64
	OnAnomaly    func(channel string, count int)
}

func (j *Job) Run(ctx context.Context) (JobReport, error) {
	var report JobReport
	start := time.Now()
	slog.Info("batch run started", "channels", j.Orchestrator.Channels(), "window_size", j.Orchestrator.WindowSize())

	table, err := j.Source.LoadReadings(ctx, j.Orchestrator.Channels())
	if err != nil {
		return report, fmt.Errorf("load readings: %w", err)
	}
	report.Rows = table.Len()
	report.Load = time.Since(start)
	slog.Info("readings loaded", "rows", report.Rows, "elapsed", report.Load)

	computeStart := time.Now()
	scores, err := j.Orchestrator.Score(ctx, table)
	if err != nil {
		return report, fmt.Errorf("score readings: %w", err)
	}
	report.Compute = time.Since(computeStart)
	report.Scored = scores.DefinedCount()
	report.Failures = scores.Failures
	report.Anomalies = j.countAnomalies(scores)
	slog.Info("scores computed", "scored", report.Scored, "elapsed", report.Compute)

	persistStart := time.Now()
	for _, sink := range j.Sinks {
		n, err := sink.WriteScores(ctx, scores)
		report.Written += n
		if err != nil {
			report.Persist = time.Since(persistStart)
			return report, fmt.Errorf("write scores: %w", err)
		}
	}
	report.Persist = time.Since(persistStart)

	slog.Info("batch run finished",
		"rows", report.Rows,
		"written", report.Written,
		"persist_elapsed", report.Persist,
		"total_elapsed", time.Since(start))
	return report, nil
}

func (j *Job) countAnomalies(scores models.ScoreTable) map[string]int {
	threshold := j.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	counts := make(map[string]int, len(scores.Channels))
	for _, ch := range scores.Channels {
		n := 0
		for _, row := range scores.Rows {
			if s := row.Scores[ch]; s.Defined && math.Abs(s.Value) > threshold {
				n++
			}
		}
		counts[ch] = n
		if n > 0 {
			slog.Warn("anomalies detected", "channel", ch, "count", n)
			if j.OnAnomaly != nil {
				j.OnAnomaly(ch, n)
			}
		}
	}
	return counts
}
