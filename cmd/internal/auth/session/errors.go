package session

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")

	// ErrEmptyTokenPair is returned when the gateway reports success without an access token.
	ErrEmptyTokenPair = errors.New("gateway returned an empty token pair")

	// ErrGatewayUnavailable is returned when the store has no gateway to call.
	ErrGatewayUnavailable = errors.New("session gateway unavailable")

	// ErrNoRefreshToken is returned by RefreshTokens when no refresh token is held.
	ErrNoRefreshToken = errors.New("no refresh token")

	// ErrSessionChanged is returned when a refresh result is dropped because
	// the session was cleared or replaced while the refresh was in flight.
	ErrSessionChanged = errors.New("session changed during refresh")

	// ErrSnapshotCorrupt is returned by persisters when the stored snapshot cannot be decoded.
	ErrSnapshotCorrupt = errors.New("session snapshot corrupt")
)

// OperationError is returned by the login family. Error() is the same
// human-readable message recorded in State.Error, so callers can handle
// failures either by watching state or by checking the returned error.
type OperationError struct {
	Op      string
	Message string
	Err     error
}

func (e *OperationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Op + " failed"
}

func (e *OperationError) Unwrap() error { return e.Err }

// userMessager is implemented by gateway errors that carry a server-provided message.
type userMessager interface {
	UserMessage() string
}

// statusCoder is implemented by gateway errors that carry an HTTP status.
type statusCoder interface {
	StatusCode() int
}

// messageFrom extracts the message shown to the operator for a failed call.
func messageFrom(err error, fallback string) string {
	var m userMessager
	if errors.As(err, &m) {
		if s := strings.TrimSpace(m.UserMessage()); s != "" {
			return s
		}
	}
	return fallback
}

// refreshFailureCause classifies why a refresh failed.
// "rejected" means the backend answered and refused the token; "transport"
// covers everything else (timeouts, DNS, 5xx).
func refreshFailureCause(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return RefreshTransport
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		if code := sc.StatusCode(); code >= 400 && code < 500 {
			return RefreshRejected
		}
	}
	return RefreshTransport
}
