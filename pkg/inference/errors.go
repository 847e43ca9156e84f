package inference

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrClosed is returned by Send after the engine was closed.
	ErrClosed = errors.New("inference: engine closed")

	// ErrNoModel is returned when an engine is built without a model.
	ErrNoModel = errors.New("inference: model required")

	// ErrBadOptions is returned when service options are out of range.
	ErrBadOptions = errors.New("inference: invalid options")

	// ErrEmptyFrame is returned when a frame carries no image.
	ErrEmptyFrame = errors.New("inference: empty frame")
)

// ServiceError wraps an error with the service that produced it.
type ServiceError struct {
	Service Service
	Err     error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("inference [%s]: %v", e.Service, e.Err)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with service context.
func WrapError(service Service, err error) error {
	if err == nil {
		return nil
	}
	return &ServiceError{Service: service, Err: err}
}
