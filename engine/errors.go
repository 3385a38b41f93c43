package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrFatal marks a task body failure that must not be retried.
	ErrFatal = errors.New("fatal upload error")

	// ErrInvalidParameters is returned when task parameters fail validation.
	ErrInvalidParameters = errors.New("invalid task parameters")

	// ErrTaskExists is returned when a task with the same id is already known.
	ErrTaskExists = errors.New("task already exists")

	// ErrQueueFull is returned when the service cannot accept more tasks.
	ErrQueueFull = errors.New("task queue is full")

	// ErrServiceStopped is returned by Start after Stop was called.
	ErrServiceStopped = errors.New("upload service stopped")

	// ErrEmptyPath is returned when a file entry is created without a path.
	ErrEmptyPath = errors.New("file path is empty")

	// ErrUnsuccessfulResponse is reported when the server answers outside 2xx/3xx.
	ErrUnsuccessfulResponse = errors.New("unsuccessful response")
)

// Fatal wraps err so that the retry driver reports it without another attempt.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrFatal, err)
}

// IsFatal reports whether err carries ErrFatal.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
