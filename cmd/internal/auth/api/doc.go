// Package authapi is the HTTP side of the dashboard's session handling.
//
// Client speaks the backend's /api/auth endpoints and implements
// session.Gateway. Transport is an http.RoundTripper that attaches the
// current bearer token to outgoing requests and, on a 401, performs one
// shared refresh, stores the new pair and replays the request once.
package authapi
