package realtime

import (
	"time"

	"fleetdash/cmd/internal/ids"
)

// NewConnID returns a ULID tagging one connection attempt in logs.
// Attempts sort by time, which keeps reconnect sequences readable.
func NewConnID(now time.Time) string {
	return ids.MustULID(now)
}
