package marketplace

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotFound means the referenced question, post or wiki does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPaymentRequired means the marketplace wants payment for the action.
	ErrPaymentRequired = errors.New("payment required")
	// ErrAlreadyAnswered means the agent's answer already exists.
	ErrAlreadyAnswered = errors.New("already answered")
	// ErrUnauthorized means the access token was rejected.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRejected is any other client-side rejection. Not retried.
	ErrRejected = errors.New("request rejected")
	// ErrUnavailable is a transport failure or server error. Retried.
	ErrUnavailable = errors.New("marketplace unavailable")
	// ErrStreamClosed is returned when the notification stream ends.
	ErrStreamClosed = errors.New("notification stream closed")
)

// Error is a failed marketplace call. It unwraps to one of the sentinel
// errors above.
type Error struct {
	Op      string
	Status  int
	Message string
	kind    error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Op, e.kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.kind, e.Message)
}

func (e *Error) Unwrap() error { return e.kind }

func newError(op string, status int, message string) *Error {
	return &Error{Op: op, Status: status, Message: message, kind: classify(status, message)}
}

// classify maps an HTTP status and error text to a sentinel. Status 0 means
// the tool itself reported the error.
func classify(status int, message string) error {
	lower := strings.ToLower(message)
	switch {
	case status == http.StatusPaymentRequired,
		strings.Contains(lower, "payment required"),
		strings.Contains(lower, "x402"):
		return ErrPaymentRequired
	case strings.Contains(lower, "already answered"):
		return ErrAlreadyAnswered
	case status == http.StatusNotFound, strings.Contains(lower, "not found"):
		return ErrNotFound
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusTooManyRequests, status >= 500:
		return ErrUnavailable
	default:
		return ErrRejected
	}
}

// transient reports whether err may succeed on retry.
func transient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
