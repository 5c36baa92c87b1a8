// Package apierr defines the error taxonomy shared by every gateway and
// session in the client. Callers branch with errors.Is against the
// sentinels below; the concrete types carry the details.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransport means the backend could not be reached or failed with a 5xx.
	ErrTransport = errors.New("transport error")
	// ErrUnauthorized means the request carried no valid session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict means the target was already revised or deleted.
	ErrConflict = errors.New("conflict")
	// ErrValidation means the request was rejected before or by the backend as malformed.
	ErrValidation = errors.New("validation error")
	// ErrPersistence means a draft could not be saved or loaded.
	ErrPersistence = errors.New("persistence error")
	// ErrNotFound means the target does not exist or is not visible.
	ErrNotFound = errors.New("not found")
)

// StatusError is a non-2xx response from the backend
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s failed: %d %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s failed: %d", e.Op, e.StatusCode)
}

// Unwrap maps the status code onto the taxonomy
func (e *StatusError) Unwrap() error {
	return KindForStatus(e.StatusCode)
}

// KindForStatus returns the sentinel for an HTTP status code, or nil for
// codes that have no special meaning.
func KindForStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrUnauthorized
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusConflict:
		return ErrConflict
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return ErrValidation
	case code == http.StatusTooManyRequests || code >= 500:
		return ErrTransport
	}
	return nil
}

// ConflictError reports that TargetID was superseded or deleted before the
// operation reached the backend.
type ConflictError struct {
	Op       string
	TargetID string
	Message  string
}

func (e *ConflictError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "target was already revised or deleted"
	}
	if e.TargetID != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, msg, e.TargetID)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// Transport wraps a network-level failure
func Transport(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}

// Validation builds a client-side validation failure
func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// IsConflict reports whether err is a conflict of any shape
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsUnauthorized reports whether err means the viewer has no session
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
