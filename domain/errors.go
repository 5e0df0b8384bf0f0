package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTTSConfig marks synthesis failures caused by missing or invalid settings.
	ErrTTSConfig = errors.New("tts configuration error")
	// ErrTTSService marks synthesis failures reported by the engine or its transport,
	// including the synthesis deadline.
	ErrTTSService = errors.New("tts service error")
)

// TTSError is the typed error returned by speech synthesis.
// errors.Is matches both its Kind and the wrapped cause.
type TTSError struct {
	Kind error
	Op   string
	Err  error
}

// NewTTSServiceError wraps err as a service error for op
func NewTTSServiceError(op string, err error) *TTSError {
	return &TTSError{Kind: ErrTTSService, Op: op, Err: err}
}

// NewTTSConfigError wraps err as a configuration error for op
func NewTTSConfigError(op string, err error) *TTSError {
	return &TTSError{Kind: ErrTTSConfig, Op: op, Err: err}
}

func (e *TTSError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *TTSError) Is(target error) bool {
	return target == e.Kind
}

func (e *TTSError) Unwrap() error {
	return e.Err
}
