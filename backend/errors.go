/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// UnavailableError is returned when the backend cannot be reached
// (connection refused, DNS failure, dial timeout, connection reset before the response headers).
type UnavailableError struct {
	Method string
	URL    string
	Err    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("backend unavailable: %s %s: %v", e.Method, e.URL, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// StatusError is returned by Client.Stream when the backend responds with a non-2xx status.
// Body contains the response body that should be passed to the client as is.
// It's cut to the configured maxErrorBodySize, Truncated is set then.
type StatusError struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Truncated  bool
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend responded with status %d", e.StatusCode)
}

// IsUnavailable reports whether the error means the backend could not be reached.
func IsUnavailable(err error) bool {
	var unavailableErr *UnavailableError
	return errors.As(err, &unavailableErr)
}

// AsStatusError returns *StatusError if err contains it.
func AsStatusError(err error) (*StatusError, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr, true
	}
	return nil, false
}
