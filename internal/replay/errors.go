package replay

import (
	"errors"
	"fmt"
)

var (
	// ErrNoEvents is returned when the input holds no records
	ErrNoEvents = errors.New("no events found")
)

// ConfigurationError is returned when the replay cannot start: bad settings,
// or an input that is missing, unreadable or empty.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// SinkError wraps a failure reported by the sink. Op is "send" or "flush".
type SinkError struct {
	Op  string
	Err error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s failed: %v", e.Op, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}
