package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrAuth        = errors.New("credentials rejected")
	ErrRateLimited = errors.New("rate limited")
	ErrNotFound    = errors.New("resource not found")
)

// HTTPError is a non-success response. It matches ErrAuth, ErrRateLimited or
// ErrNotFound through errors.Is depending on the status.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, body)
}

func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrAuth:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// TransportError covers network failures, timeouts, undecodable bodies and
// an open circuit breaker.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError is returned before a request is sent when a required
// parameter is missing.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

// Require returns a ValidationError when value is blank.
func Require(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Reason: "is required"}
	}
	return nil
}

// IsFatal reports whether err must stop the caller instead of degrading the
// current unit of work.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var verr *ValidationError
	return errors.Is(err, ErrAuth) || errors.As(err, &verr)
}
