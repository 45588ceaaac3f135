package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mustJWT returns an HS256 token expiring at exp. The store never verifies
// signatures, so the key is irrelevant.
func mustJWT(t *testing.T, sub string, exp time.Time) string {
	t.Helper()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

type gatewayError struct {
	status int
	msg    string
}

func (e *gatewayError) Error() string       { return e.msg }
func (e *gatewayError) UserMessage() string { return e.msg }
func (e *gatewayError) StatusCode() int     { return e.status }

type fakeGateway struct {
	mu sync.Mutex

	pair TokenPair
	err  error

	refreshPair  TokenPair
	refreshErr   error
	refreshGate  chan struct{} // when non-nil, Refresh blocks until closed
	refreshEnter chan struct{} // signalled when Refresh starts

	loginGate  chan struct{} // when non-nil, LoginWithPassword blocks until closed
	loginEnter chan struct{}
	logoutGate chan struct{}

	loginCalls    atomic.Int32
	refreshCalls  atomic.Int32
	logoutCalls   atomic.Int32
	lastRefreshed string
	lastLogout    string
}

func (g *fakeGateway) result() (TokenPair, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pair, g.err
}

func (g *fakeGateway) Login(ctx context.Context, proof TelegramProof) (TokenPair, error) {
	g.loginCalls.Add(1)
	return g.result()
}

func (g *fakeGateway) LoginWithPassword(ctx context.Context, creds PasswordCredentials) (TokenPair, error) {
	g.loginCalls.Add(1)
	if g.loginGate != nil {
		g.loginEnter <- struct{}{}
		<-g.loginGate
	}
	return g.result()
}

func (g *fakeGateway) Register(ctx context.Context, req RegisterRequest) (TokenPair, error) {
	g.loginCalls.Add(1)
	return g.result()
}

func (g *fakeGateway) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	g.refreshCalls.Add(1)
	if g.refreshEnter != nil {
		g.refreshEnter <- struct{}{}
	}
	if g.refreshGate != nil {
		<-g.refreshGate
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastRefreshed = refreshToken
	return g.refreshPair, g.refreshErr
}

func (g *fakeGateway) Logout(ctx context.Context, accessToken string) error {
	if g.logoutGate != nil {
		<-g.logoutGate
	}
	g.mu.Lock()
	g.lastLogout = accessToken
	g.mu.Unlock()
	g.logoutCalls.Add(1)
	return &gatewayError{status: 503, msg: "backend down"}
}

type recordingObserver struct {
	mu        sync.Mutex
	logins    []string
	outcomes  []Outcome
	refreshes []string
}

func (o *recordingObserver) LoginFinished(op string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		op += ":err"
	}
	o.logins = append(o.logins, op)
}

func (o *recordingObserver) SessionValidated(out Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, out)
}

func (o *recordingObserver) RefreshFinished(result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refreshes = append(o.refreshes, result)
}

func newTestStore(t *testing.T, gw Gateway, p Persister, opts ...Option) *Store {
	t.Helper()

	base := []Option{
		WithLogger(discardLogger()),
		WithClock(clockwork.NewFakeClockAt(testNow)),
	}
	return NewStore(DefaultConfig(), gw, p, append(base, opts...)...)
}

// seedAuthenticated installs an authenticated session directly.
func seedAuthenticated(t *testing.T, s *Store, access, refresh string) {
	t.Helper()

	s.update(true, func(st *State) {
		st.User = &User{Username: "ops", AuthMethod: AuthPassword}
		st.AccessToken = access
		st.RefreshToken = refresh
		st.IsAuthenticated = true
	})
}
