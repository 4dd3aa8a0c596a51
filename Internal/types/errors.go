package types

import (
	"errors"
	"fmt"
)

var (
	// ErrZeroVolume is returned when a VWAP is requested before any volume traded.
	ErrZeroVolume = errors.New("vwap undefined: cumulative volume is zero")
	// ErrInsufficientCapital means equity cannot buy a single share at the entry price.
	ErrInsufficientCapital = errors.New("insufficient capital for one share")
)

// DataError reports malformed or out-of-window bar input. It only affects one session.
type DataError struct {
	Symbol string
	Date   string
	Reason string
	Err    error
}

func (e *DataError) Error() string {
	msg := fmt.Sprintf("data error: %s %s: %s", e.Symbol, e.Date, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataError) Unwrap() error { return e.Err }

// ConfigError reports an invalid configuration value. Fatal before any session runs.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Reason)
}

// StateError marks a transition the state machine should never be asked to make.
type StateError struct {
	State string
	Event string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state error: %s not allowed in state %s", e.Event, e.State)
}
