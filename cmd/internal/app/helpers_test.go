package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	authapi "fleetdash/cmd/internal/auth/api"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncBuffer is a bytes.Buffer safe for concurrent writers and readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func mintJWT(t *testing.T, sub string, ttl time.Duration) string {
	t.Helper()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(ttl).Unix(),
	})
	s, err := tok.SignedString([]byte("backend-secret"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

// fakeBackend is a minimal panel backend: password login, refresh, logout,
// a few resources and the push endpoint.
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	access  string
	refresh string

	logouts   atomic.Int32
	registers atomic.Int32
	lastAuth  atomic.Value // string
	hits      sync.Map     // path -> *atomic.Int32

	// events are pushed to every websocket client after it connects.
	events []string
}

func newFakeBackend(t *testing.T, events ...string) *fakeBackend {
	t.Helper()

	b := &fakeBackend{
		t:       t,
		access:  mintJWT(t, "ops", 15*time.Minute),
		refresh: mintJWT(t, "ops", 24*time.Hour),
		events:  events,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(authapi.PathLoginPassword, func(w http.ResponseWriter, r *http.Request) {
		var creds struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Username != "ops" || creds.Password != "hunter2" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  b.access,
			"refresh_token": b.refresh,
			"token_type":    "bearer",
		})
	})
	mux.HandleFunc(authapi.PathRegister, func(w http.ResponseWriter, r *http.Request) {
		b.registers.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  b.access,
			"refresh_token": b.refresh,
		})
	})
	mux.HandleFunc(authapi.PathLogout, func(w http.ResponseWriter, r *http.Request) {
		b.lastAuth.Store(r.Header.Get("Authorization"))
		b.logouts.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/ws", b.handleWS)
	for _, path := range resourcePaths {
		mux.HandleFunc(path, b.handleResource)
	}

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) handleResource(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+b.access {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	n, _ := b.hits.LoadOrStore(r.URL.Path, new(atomic.Int32))
	n.(*atomic.Int32).Add(1)
	writeJSON(w, http.StatusOK, []map[string]any{{"path": r.URL.Path}})
}

func (b *fakeBackend) handleWS(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("token") != b.access {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer c.CloseNow()

	ctx := r.Context()
	for _, ev := range b.events {
		if err := c.Write(ctx, websocket.MessageText, []byte(ev)); err != nil {
			return
		}
	}
	for {
		if _, _, err := c.Read(ctx); err != nil {
			return
		}
	}
}

func (b *fakeBackend) hitCount(path string) int32 {
	n, ok := b.hits.Load(path)
	if !ok {
		return 0
	}
	return n.(*atomic.Int32).Load()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// setTestEnv points the CLI at the fake backend with file storage in a
// temp dir and clears every other variable LoadConfig reads.
func setTestEnv(t *testing.T, baseURL string) string {
	t.Helper()

	dir := t.TempDir()
	for _, k := range []string{
		"CONFIG", "LOG_LEVEL", "LOG_FORMAT", "REDIS_URL", "DATABASE_URL", "METRICS_ADDR",
		"VALIDATE_INTERVAL", "SESSION_KEY", "SESSION_EXPIRY_MARGIN", "RT_PATH", "RT_BACKOFF",
		"HTTP_TIMEOUT", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"PASSWORD_MIN_LEN", "PASSWORD_MAX_LEN", "PASSWORD_REJECT_VERY_WEAK",
	} {
		t.Setenv(envPrefix+k, "")
	}
	t.Setenv(envPrefix+"BASE_URL", baseURL)
	t.Setenv(envPrefix+"STORAGE", StorageFile)
	t.Setenv(envPrefix+"STATE_DIR", dir)
	t.Setenv(envPrefix+"LOG_LEVEL", "error")
	return dir
}

func testAPIConfig(baseURL string) authapi.Config {
	return authapi.Config{
		BaseURL:      baseURL,
		Timeout:      5 * time.Second,
		MaxBodyBytes: 1 << 20,
		UserAgent:    "fleetdash-test",
	}
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	err := Run(args, Streams{In: strings.NewReader(stdin), Out: &out, Err: &errOut})
	return out.String(), err
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for !cond() {
		select {
		case <-ctx.Done():
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
