// Package realtime is the dashboard's push-channel client.
//
// A Client keeps at most one authenticated WebSocket connection to the
// backend while it is activated and the session is authenticated. Lost
// connections are retried on a fixed escalating backoff. Heartbeats are
// answered in place; domain events are mapped to cache-invalidation keys
// through a Router.
//
// State machine:
//
//	idle -> connecting -> open -> closed
//	            |           |
//	            +-> error <-+
//	closed|error -> connecting (after backoff) or idle (no longer eligible)
//
// Every timer and in-flight dial is tagged with a generation number. Teardown
// bumps the generation, so stale callbacks are ignored when they fire.
package realtime
