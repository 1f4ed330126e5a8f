package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAborted is returned by calls cancelled through AbortAll
	ErrAborted = errors.New("request aborted")

	// ErrInvalidRequest marks requests that could not be built
	ErrInvalidRequest = errors.New("invalid request")
)

// StatusError is returned for non-2xx responses
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s %s", e.StatusCode, http.StatusText(e.StatusCode), e.Method, e.URL)
}

// Temporary reports whether the server signalled a transient failure (5xx)
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500
}

// TransportError is returned when no response was received
type TransportError struct {
	Method  string
	URL     string
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s %s: attempt timed out: %v", e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is transient: a transport failure or a 5xx
func IsRetryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return false
}

// StatusCode extracts the HTTP status from err, or 0 if there was none
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
