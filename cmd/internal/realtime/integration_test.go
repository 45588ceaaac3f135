package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"fleetdash/cmd/internal/auth/session"

	"github.com/coder/websocket"
)

// pushServer accepts one websocket per request, checks the token, sends a
// ping followed by a node_status event and waits for the client to go away.
func pushServer(t *testing.T, wantToken string, pongs chan<- string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != wantToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer c.CloseNow()

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := c.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)); err != nil {
			return
		}
		_, reply, err := c.Read(ctx)
		if err != nil {
			return
		}
		pongs <- string(reply)

		if err := c.Write(ctx, websocket.MessageText, []byte(`{"type":"node_status","payload":{"id":1}}`)); err != nil {
			return
		}

		// Block until the client closes.
		_, _, _ = c.Read(ctx)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_WebSocketRoundTrip(t *testing.T) {
	t.Parallel()

	pongs := make(chan string, 1)
	srv := pushServer(t, "live-token", pongs)

	gw := &stubGateway{}
	gw.set("live-token")
	store := session.NewStore(session.DefaultConfig(), gw, nil, session.WithLogger(discardLogger()))
	if err := store.LoginWithPassword(context.Background(), session.PasswordCredentials{Username: "ops"}); err != nil {
		t.Fatalf("login: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Path = "/ws"
	inv := newRecordingInvalidator()

	c, err := NewClient(cfg, srv.URL+"/api", store, inv, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() {
		c.Deactivate()
		c.Wait()
	})

	c.Activate()

	select {
	case got := <-pongs:
		if got != `{"type":"pong"}` {
			t.Fatalf("pong=%s", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no pong")
	}

	if keys := waitKeys(t, inv); !reflect.DeepEqual(keys, []string{KeyNodes, KeyNodeStats}) {
		t.Fatalf("keys=%v", keys)
	}
	if st := waitStatus(t, c, StateOpen); st.Attempt != 0 {
		t.Fatalf("status=%+v", st)
	}
}

func TestClient_WebSocketHandshakeRejected(t *testing.T) {
	t.Parallel()

	srv := pushServer(t, "other-token", make(chan string, 1))

	gw := &stubGateway{}
	gw.set("live-token")
	store := session.NewStore(session.DefaultConfig(), gw, nil, session.WithLogger(discardLogger()))
	if err := store.LoginWithPassword(context.Background(), session.PasswordCredentials{Username: "ops"}); err != nil {
		t.Fatalf("login: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Backoff = []time.Duration{time.Hour}

	c, err := NewClient(cfg, srv.URL+"/api", store, nil, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() {
		c.Deactivate()
		c.Wait()
	})

	c.Activate()
	st := waitStatus(t, c, StateError)
	if st.Attempt != 1 {
		t.Fatalf("attempt=%d want=1", st.Attempt)
	}
}
