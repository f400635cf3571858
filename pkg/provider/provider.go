package provider

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned when a vendor job polling loop runs out of
// attempts before the job reaches a terminal state.
var ErrTimeout = errors.New("provider: polling timed out")

// ErrVoiceNotReady is returned when a conversion is attempted against a
// voice that hasn't finished training.
var ErrVoiceNotReady = errors.New("provider: voice is not ready")

// Error is a non-2xx vendor HTTP response.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider: vendor returned %d: %s", e.StatusCode, e.Message)
}

// GenerationError is a failure reported by the music vendor after it
// accepted the generation job.
type GenerationError struct {
	Reason string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("provider: generation failed: %s", e.Reason)
}

// ConversionError is a failure reported by the voice vendor after it
// accepted the conversion job.
type ConversionError struct {
	Reason string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("provider: voice conversion failed: %s", e.Reason)
}
