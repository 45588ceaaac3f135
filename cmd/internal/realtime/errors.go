package realtime

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is returned for invalid realtime configuration.
	ErrConfig = errors.New("invalid realtime config")

	// ErrBadBaseURL is returned when the deployment base URL cannot be
	// turned into a ws/wss URL.
	ErrBadBaseURL = errors.New("invalid base url")
)

// CloseError reports that the peer closed the connection with a close frame.
// The client treats it as a clean close (state closed) rather than a
// transport error (state error).
type CloseError struct {
	Code   int
	Reason string
	Err    error
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("peer closed: code %d", e.Code)
	}
	return fmt.Sprintf("peer closed: code %d: %s", e.Code, e.Reason)
}

func (e *CloseError) Unwrap() error { return e.Err }

// IsPeerClose reports whether err is a close frame from the peer.
func IsPeerClose(err error) bool {
	var ce *CloseError
	return errors.As(err, &ce)
}
