// Package session implements the dashboard's client-side session store.
//
// The Store is the single source of truth for who is logged in, with which
// credentials, and whether those credentials are still usable. It owns the
// validate/refresh/clear state machine:
//
//   - access token valid beyond a safety margin: nothing to do;
//   - access token expired but refresh token valid: one refresh call, new pair stored;
//   - anything else (missing, expired, unreadable, rejected): the session is cleared.
//
// Tokens are JWTs issued by the backend; only their "exp" claim is read here.
// Every mutation is persisted through a Persister (one key, one snapshot) and
// published to subscribers. Network calls go through a Gateway; the HTTP
// implementation lives in package api.
package session
