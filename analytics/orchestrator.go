package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"phasewatch/models"
)

// ErrorPolicy decides what a channel failure does to the whole run.
type ErrorPolicy string

const (
	// PolicyFailRun aborts the run on the first failed channel.
	PolicyFailRun ErrorPolicy = "fail"
	// PolicySkipChannel leaves a failed channel's column undefined and
	// records the reason in ScoreTable.Failures.
	PolicySkipChannel ErrorPolicy = "skip"
)

var ErrUnknownPolicy = errors.New("unknown error policy")

// ParseErrorPolicy accepts "fail", "skip" or an empty string (fail).
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch ErrorPolicy(s) {
	case "", PolicyFailRun:
		return PolicyFailRun, nil
	case PolicySkipChannel:
		return PolicySkipChannel, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

type OrchestratorConfig struct {
	Channels   []string
	WindowSize int
	// Workers bounds concurrent channels; 0 picks a default from NumCPU.
	Workers int
	Policy  ErrorPolicy
}

// Orchestrator scores every configured channel of a reading table. Channels
// share no state, so they are scored in parallel.
type Orchestrator struct {
	channels   []string
	windowSize int
	workers    int
	policy     ErrorPolicy
}

func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if len(cfg.Channels) == 0 {
		return nil, ErrNoChannels
	}
	seen := make(map[string]struct{}, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		if _, dup := seen[ch]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateChannel, ch)
		}
		seen[ch] = struct{}{}
	}
	if cfg.WindowSize < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWindowSize, cfg.WindowSize)
	}
	policy, err := ParseErrorPolicy(string(cfg.Policy))
	if err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers()
	}
	if workers > len(cfg.Channels) {
		workers = len(cfg.Channels)
	}

	return &Orchestrator{
		channels:   append([]string(nil), cfg.Channels...),
		windowSize: cfg.WindowSize,
		workers:    workers,
		policy:     policy,
	}, nil
}

// defaultWorkers mirrors the streaming engine's sizing: twice the CPUs,
// kept within [4, 16].
func defaultWorkers() int {
	n := runtime.NumCPU() * 2
	if n < 4 {
		n = 4
	}
	if n > 16 {
		n = 16
	}
	return n
}

func (o *Orchestrator) Channels() []string {
	return append([]string(nil), o.channels...)
}

func (o *Orchestrator) WindowSize() int {
	return o.windowSize
}

type channelResult struct {
	scores []models.Score
	err    error
}

// Score runs the channel scorer over every configured channel and merges
// the columns into a table aligned with the input rows.
func (o *Orchestrator) Score(ctx context.Context, table models.ReadingTable) (models.ScoreTable, error) {
	if err := table.Validate(); err != nil {
		return models.ScoreTable{}, err
	}

	results := make([]channelResult, len(o.channels))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = o.scoreChannel(o.channels[idx], table)
			}
		}()
	}

	var ctxErr error
dispatch:
	for idx := range o.channels {
		if ctxErr = ctx.Err(); ctxErr != nil {
			break
		}
		select {
		case <-ctx.Done():
			ctxErr = ctx.Err()
			break dispatch
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()

	if ctxErr != nil {
		return models.ScoreTable{}, ctxErr
	}

	out := models.ScoreTable{
		Channels: o.Channels(),
		Rows:     make([]models.ScoreRow, len(table.Rows)),
	}
	for i, row := range table.Rows {
		out.Rows[i] = models.ScoreRow{
			Timestamp: row.Timestamp,
			Scores:    make(map[string]models.Score, len(o.channels)),
		}
	}

	for idx, ch := range o.channels {
		res := results[idx]
		if res.err != nil {
			if o.policy == PolicyFailRun {
				return models.ScoreTable{}, res.err
			}
			slog.Warn("skipping channel", "channel", ch, "err", res.err)
			if out.Failures == nil {
				out.Failures = make(map[string]string)
			}
			out.Failures[ch] = res.err.Error()
		}
		for i := range out.Rows {
			var s models.Score
			if res.err == nil {
				s = res.scores[i]
			}
			out.Rows[i].Scores[ch] = s
		}
	}

	return out, nil
}

func (o *Orchestrator) scoreChannel(channel string, table models.ReadingTable) channelResult {
	series := make([]float64, len(table.Rows))
	for i, row := range table.Rows {
		v, ok := row.Angle(channel)
		if !ok {
			return channelResult{err: &ChannelError{
				Channel: channel,
				Err: &MalformedReadingError{
					Channel:   channel,
					Index:     i,
					Timestamp: row.Timestamp,
					Reason:    "angle is missing",
				},
			}}
		}
		series[i] = v
	}

	scores, err := ScoreSeries(series, o.windowSize)
	if err != nil {
		var malformed *MalformedReadingError
		if errors.As(err, &malformed) {
			malformed.Channel = channel
			if malformed.Index < len(table.Rows) {
				malformed.Timestamp = table.Rows[malformed.Index].Timestamp
			}
		}
		return channelResult{err: &ChannelError{Channel: channel, Err: err}}
	}
	return channelResult{scores: scores}
}
