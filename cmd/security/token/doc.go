// Package token inspects the bearer credentials held by the dashboard.
//
// The dashboard never signs or verifies tokens; it holds no key. It only
// needs two things from a JWT issued by the backend:
//   - the expiration instant ("exp"), read without signature verification,
//     to decide between "still valid", "refresh now" and "log out";
//   - a stable, non-reversible fingerprint for logs, so raw credentials
//     never reach log sinks.
//
// Decoding fails closed: anything unreadable is reported as an error and
// callers treat it exactly like an expired token.
package token
