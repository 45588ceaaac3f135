package authapi

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConfig is returned for invalid client configuration.
	ErrConfig = errors.New("invalid api config")
)

// Error is a non-2xx response from the backend.
type Error struct {
	Status  int
	Method  string
	Path    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.Status, e.Message)
}

// UserMessage is the server-provided reason, suitable for display.
func (e *Error) UserMessage() string { return e.Message }

// StatusCode returns the HTTP status of the response.
func (e *Error) StatusCode() int { return e.Status }

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}
