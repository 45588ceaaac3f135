package realtime

import "time"

const (
	// Max bytes per inbound frame (hard limit).
	defaultReadLimit = 64 << 10 // 64 KiB

	// Per-write deadline for outbound frames (pong).
	defaultWriteTimeout = 5 * time.Second

	// Close handshake budget on teardown.
	closeGrace = 2 * time.Second

	defaultPath = "/ws"

	// Query parameter carrying the access token.
	tokenParam = "token"
)

// defaultBackoff is indexed by attempt and saturates at the last entry.
var defaultBackoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
}
