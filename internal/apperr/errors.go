// Package apperr defines the error taxonomy shared across the application.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks rejected input: bad tool arguments, out-of-range
	// parameters, malformed request bodies. Always raised before any side effect.
	ErrValidation = errors.New("validation failed")

	// ErrUnknownTool marks a dispatch attempt for a tool outside the allowlist.
	ErrUnknownTool = errors.New("tool not allowed")

	// ErrPathTraversal marks a note write whose resolved path escapes the sandbox.
	ErrPathTraversal = errors.New("blocked path traversal")

	// ErrPlanParse marks model output that is not the expected JSON plan.
	// Recovered locally via the fallback plan, never surfaced to callers.
	ErrPlanParse = errors.New("no JSON plan found")

	ErrNotFound = errors.New("not found")
)

// RemoteError is returned when an external service (embedding, vector
// index, chat model) answers with a non-2xx status or is unreachable.
// Status is 0 when the call never reached the service.
type RemoteError struct {
	Service string
	Status  int
	Body    string
	Err     error
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.Status, e.Body)
}

// Unwrap exposes the underlying transport error, if any.
func (e *RemoteError) Unwrap() error { return e.Err }

// Remote builds a RemoteError from a non-2xx response.
func Remote(service string, status int, body []byte) *RemoteError {
	return &RemoteError{Service: service, Status: status, Body: string(body)}
}

// RemoteWrap builds a RemoteError from a transport failure.
func RemoteWrap(service string, err error) *RemoteError {
	return &RemoteError{Service: service, Err: err}
}

// IsRemote reports whether err is (or wraps) a RemoteError.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
