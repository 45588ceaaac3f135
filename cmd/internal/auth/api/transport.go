package authapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"fleetdash/cmd/security/token"
)

// TokenStore is the slice of the session store the transport needs.
// *session.Store satisfies it.
type TokenStore interface {
	Tokens() (access, refresh string)
	RefreshTokens(ctx context.Context, stale string) (string, error)
}

// Transport authorizes outgoing requests with the current access token.
//
// On a 401 it asks the store for a token newer than the one it sent and
// replays the request once. Refresh deduplication, session clearing on
// failure and dropping results for a changed session all belong to the
// store; a failed refresh returns the original 401.
type Transport struct {
	base   http.RoundTripper
	tokens TokenStore
	log    *slog.Logger
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, tokens TokenStore, log *slog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if log == nil {
		log = slog.Default()
	}
	return &Transport{base: base, tokens: tokens, log: log}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	access, _ := t.tokens.Tokens()
	if access == "" {
		return t.base.RoundTrip(req)
	}

	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil

	resp, err := t.base.RoundTrip(authorized(req, access))
	if err != nil || resp.StatusCode != http.StatusUnauthorized || !replayable {
		return resp, err
	}

	fresh, rerr := t.tokens.RefreshTokens(req.Context(), access)
	if rerr != nil {
		t.log.Info("api.refresh.fail", "path", req.URL.Path, "err", rerr)
		return resp, nil
	}
	t.log.Debug("api.refresh.ok", "path", req.URL.Path, "access_fp", token.Fingerprint(fresh))

	retry := authorized(req, fresh)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return resp, nil
		}
		retry.Body = body
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	return t.base.RoundTrip(retry)
}

func authorized(req *http.Request, access string) *http.Request {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+access)
	return r
}
