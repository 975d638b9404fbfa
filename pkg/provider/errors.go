package provider

import (
	"context"
	"errors"
)

var (
	ErrTimeout = errors.New("inference timed out")

	ErrMissingTerm   = errors.New("find mode requires a term")
	ErrMissingPrompt = errors.New("freeform mode requires a prompt")
	ErrInvalidMode   = errors.New("invalid mode")
)

// TransportError is a failure to reach the backend or to get a usable
// response out of it. It is worth retrying.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "transport error: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ModelError is a failure reported by the model itself. Retrying it yields
// the same result.
type ModelError struct {
	Message string
}

func (e *ModelError) Error() string {
	return "model error: " + e.Message
}

func NewTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}

	return &TransportError{Err: err}
}

func NewModelError(message string) error {
	return &ModelError{Message: message}
}

// Retryable reports whether another attempt may succeed.
func Retryable(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var transport *TransportError
	return errors.As(err, &transport)
}
