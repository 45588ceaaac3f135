// Package ids provides the ULID primitives used to tag connections and requests in logs.
package ids

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewULID returns a new ULID string (26 chars).
// ULIDs sort by creation time, which keeps reconnect sequences readable in logs.
func NewULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// MustULID is NewULID for call sites that only use the id for correlation.
// It returns an empty string if the entropy source fails.
func MustULID(now time.Time) string {
	id, err := NewULID(now)
	if err != nil {
		return ""
	}
	return id
}
