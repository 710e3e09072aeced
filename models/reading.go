package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// AngleReading is a single live measurement pushed by a sensor channel.
type AngleReading struct {
	Timestamp string  `json:"timestamp"`
	ChannelID string  `json:"channel_id"`
	Angle     float64 `json:"angle"`
}

func (r *AngleReading) Validate() error {
	if r.ChannelID == "" {
		return errors.New("channel_id is required")
	}

	if r.Timestamp == "" {
		return errors.New("timestamp is required")
	}

	if _, err := time.Parse(time.RFC3339, r.Timestamp); err != nil {
		return errors.New("invalid timestamp format, expected RFC3339")
	}

	if math.IsNaN(r.Angle) || math.IsInf(r.Angle, 0) {
		return errors.New("angle must be a finite number")
	}

	return nil
}

func (r *AngleReading) ProcessedAt() time.Time {
	t, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return time.Now()
	}
	return t
}

// Row holds one timestamp's angles, keyed by channel id. A nil or absent
// entry means the channel reported nothing at that time.
type Row struct {
	Timestamp time.Time           `json:"timestamp"`
	Angles    map[string]*float64 `json:"angles"`
}

// Angle returns the channel's reading and whether it is present.
func (r Row) Angle(channel string) (float64, bool) {
	v, ok := r.Angles[channel]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// ReadingTable is an ordered set of rows sharing one time axis.
type ReadingTable struct {
	Rows []Row `json:"rows"`
}

// ErrUnsortedRows is returned when row timestamps are not strictly increasing.
var ErrUnsortedRows = errors.New("rows must be sorted by strictly increasing timestamp")

// Validate checks that rows are ordered by time with no duplicate timestamps.
func (t ReadingTable) Validate() error {
	for i := 1; i < len(t.Rows); i++ {
		if !t.Rows[i].Timestamp.After(t.Rows[i-1].Timestamp) {
			return fmt.Errorf("%w: row %d (%s) follows %s", ErrUnsortedRows, i,
				t.Rows[i].Timestamp.Format(time.RFC3339Nano),
				t.Rows[i-1].Timestamp.Format(time.RFC3339Nano))
		}
	}
	return nil
}

// Len returns the number of rows.
func (t ReadingTable) Len() int {
	return len(t.Rows)
}

// Float returns a pointer to v, for building Row.Angles literals.
func Float(v float64) *float64 {
	return &v
}
