package engine

import (
	"errors"
	"fmt"
)

// ErrorType classifies an AudioError.
type ErrorType string

const (
	ErrorInit     ErrorType = "init"
	ErrorPlayback ErrorType = "playback"
	ErrorLoad     ErrorType = "load"
	ErrorNetwork  ErrorType = "network"
)

var (
	// ErrSuperseded is returned by a load that a newer request replaced.
	ErrSuperseded = errors.New("superseded by a newer request")
	// ErrNetwork marks backend failures caused by connectivity.
	ErrNetwork = errors.New("network error")
	// ErrAutoplayBlocked marks a play attempt before any user gesture.
	ErrAutoplayBlocked = errors.New("playback blocked before user gesture")
	// ErrNoSource is returned by a graph asked to play with nothing loaded.
	ErrNoSource = errors.New("no source loaded")
)

// AudioError is what error subscribers receive.
type AudioError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AudioError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AudioError) Unwrap() error {
	return e.Err
}

// Blocked reports whether the error is the expected autoplay refusal that a
// UI should show as a soft prompt.
func (e *AudioError) Blocked() bool {
	return e != nil && e.Type == ErrorPlayback && errors.Is(e.Err, ErrAutoplayBlocked)
}

// classify picks the error type for a failed load.
func classify(err error) ErrorType {
	if errors.Is(err, ErrNetwork) {
		return ErrorNetwork
	}
	return ErrorLoad
}
