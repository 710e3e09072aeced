package analytics

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidWindowSize = errors.New("window size must be at least 1")
	ErrEmptyWindow       = errors.New("window has no samples")
	ErrNoChannels        = errors.New("at least one channel is required")
	ErrDuplicateChannel  = errors.New("duplicate channel")
)

// MalformedReadingError reports a missing or non-finite angle. Coercing such
// values to zero would corrupt the circular mean, so they always fail.
type MalformedReadingError struct {
	Channel   string
	Index     int
	Timestamp time.Time
	Reason    string
}

// Channel is left for ChannelError to report.
func (e *MalformedReadingError) Error() string {
	msg := fmt.Sprintf("malformed reading at index %d: %s", e.Index, e.Reason)
	if !e.Timestamp.IsZero() {
		msg = fmt.Sprintf("malformed reading at %s (index %d): %s",
			e.Timestamp.Format(time.RFC3339Nano), e.Index, e.Reason)
	}
	return msg
}

// ChannelError wraps a failure that aborted scoring of one channel.
type ChannelError struct {
	Channel string
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("scoring channel %s: %v", e.Channel, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}
