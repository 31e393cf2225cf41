package integration

import (
	"fmt"
)

// StatusError is an error from a downstream service call that carries the
// HTTP status it failed with.
type StatusError interface {
	Error() string
	StatusCode() int
	Message() string
}

type statusError struct {
	statusCode int
	message    string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.statusCode, e.message)
}

func (e *statusError) StatusCode() int {
	return e.statusCode
}

func (e *statusError) Message() string {
	return e.message
}

// NewStatusError wraps a downstream response status and body message
func NewStatusError(statusCode int, message string) StatusError {
	return &statusError{statusCode: statusCode, message: message}
}
