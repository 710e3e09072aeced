package models

import (
	"encoding/json"
	"sort"
	"time"
)

// Score is a normalized angular deviation. Scores for positions without a
// full trailing window are undefined and serialize as JSON null.
type Score struct {
	Value   float64
	Defined bool
}

// DefinedScore wraps a computed value.
func DefinedScore(v float64) Score {
	return Score{Value: v, Defined: true}
}

func (s Score) MarshalJSON() ([]byte, error) {
	if !s.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(s.Value)
}

func (s *Score) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = Score{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = DefinedScore(v)
	return nil
}

// ScoreRow carries every channel's score for one timestamp.
type ScoreRow struct {
	Timestamp time.Time        `json:"timestamp"`
	Scores    map[string]Score `json:"scores"`
}

// ScoreTable is the result of one scoring run: one row per input row, in
// input order, and one column per configured channel.
type ScoreTable struct {
	Channels []string          `json:"channels"`
	Rows     []ScoreRow        `json:"rows"`
	Failures map[string]string `json:"failures,omitempty"`
}

// Column returns a channel's scores in row order.
func (t ScoreTable) Column(channel string) []Score {
	out := make([]Score, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row.Scores[channel]
	}
	return out
}

// Lookup finds the score addressed by (timestamp, channel). Rows are sorted
// by time, so this is a binary search.
func (t ScoreTable) Lookup(ts time.Time, channel string) (Score, bool) {
	lo := sort.Search(len(t.Rows), func(i int) bool {
		return !t.Rows[i].Timestamp.Before(ts)
	})
	if lo == len(t.Rows) || !t.Rows[lo].Timestamp.Equal(ts) {
		return Score{}, false
	}
	s, ok := t.Rows[lo].Scores[channel]
	return s, ok
}

// DefinedCount counts defined scores across all channels.
func (t ScoreTable) DefinedCount() int {
	n := 0
	for _, row := range t.Rows {
		for _, s := range row.Scores {
			if s.Defined {
				n++
			}
		}
	}
	return n
}

// AnalysisResult is the latest streaming verdict for one channel.
type AnalysisResult struct {
	ChannelID       string    `json:"channel_id"`
	Angle           float64   `json:"angle"`
	MeanAngle       float64   `json:"mean_angle"`
	ResultantLength float64   `json:"resultant_length"`
	Sigma           *float64  `json:"sigma"`
	Score           Score     `json:"score"`
	TailProbability float64   `json:"tail_probability"`
	IsAnomaly       bool      `json:"is_anomaly"`
	ProcessedAt     time.Time `json:"processed_at"`
}
