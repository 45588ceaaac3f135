package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"fleetdash/cmd/internal/auth/session"

	"github.com/jonboulle/clockwork"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// testConnectDelay keeps the deferred first dial on the fake clock.
const testConnectDelay = 10 * time.Millisecond

const testBaseURL = "http://panel.example.com"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubGateway authenticates every login with the configured pair.
type stubGateway struct {
	mu   sync.Mutex
	pair session.TokenPair
}

func (g *stubGateway) set(access string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pair = session.TokenPair{AccessToken: access, RefreshToken: "ref-" + access}
}

func (g *stubGateway) result() (session.TokenPair, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pair, nil
}

func (g *stubGateway) Login(context.Context, session.TelegramProof) (session.TokenPair, error) {
	return g.result()
}

func (g *stubGateway) LoginWithPassword(context.Context, session.PasswordCredentials) (session.TokenPair, error) {
	return g.result()
}

func (g *stubGateway) Register(context.Context, session.RegisterRequest) (session.TokenPair, error) {
	return g.result()
}

func (g *stubGateway) Refresh(context.Context, string) (session.TokenPair, error) {
	return g.result()
}

func (g *stubGateway) Logout(context.Context, string) error { return nil }

// fakeConn is an in-memory transport. Frames pushed by the test are returned
// from Read; frames written by the client land on writes.
type fakeConn struct {
	inbound chan []byte
	failed  chan error
	writes  chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		failed:  make(chan error, 1),
		writes:  make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case b := <-c.inbound:
		return b, nil
	case err := <-c.failed:
		return nil, err
	case <-c.closed:
		return nil, errors.New("use of closed connection")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(ctx context.Context, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("use of closed connection")
	default:
	}
	c.writes <- append([]byte(nil), data...)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(frame string) { c.inbound <- []byte(frame) }

func (c *fakeConn) peerClose(code int, reason string) {
	c.failed <- &CloseError{Code: code, Reason: reason}
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fakeDialer pops scripted outcomes: a nil error yields a new fakeConn.
// Once the script is exhausted it keeps returning fail (or conns when fail
// is nil). When gate is set, Dial signals entered and then holds until gate
// is closed, ignoring ctx like a handshake that completes after cancel.
type fakeDialer struct {
	gate    chan struct{}
	entered chan struct{}

	mu     sync.Mutex
	script []error
	fail   error
	urls   []string
	conns  []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	d.mu.Unlock()

	if d.gate != nil {
		select {
		case d.entered <- struct{}{}:
		default:
		}
		<-d.gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.fail
	if len(d.script) > 0 {
		err = d.script[0]
		d.script = d.script[1:]
	}
	if err != nil {
		return nil, err
	}

	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) lastURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.urls) == 0 {
		return ""
	}
	return d.urls[len(d.urls)-1]
}

func (d *fakeDialer) lastConn() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

type recordingInvalidator struct {
	calls chan []string
}

func newRecordingInvalidator() *recordingInvalidator {
	return &recordingInvalidator{calls: make(chan []string, 32)}
}

func (r *recordingInvalidator) Invalidate(keys ...string) {
	r.calls <- append([]string(nil), keys...)
}

type recordingObserver struct {
	mu          sync.Mutex
	transitions []string
	delays      []time.Duration
	frames      []string
}

func (o *recordingObserver) StateChanged(from, to State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, string(from)+">"+string(to))
}

func (o *recordingObserver) ReconnectScheduled(attempt int, delay time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delays = append(o.delays, delay)
}

func (o *recordingObserver) FrameReceived(frameType string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frames = append(o.frames, frameType)
}

func (o *recordingObserver) Invalidated([]string) {}

type harness struct {
	client *Client
	store  *session.Store
	gw     *stubGateway
	dialer *fakeDialer
	clock  *clockwork.FakeClock
	inv    *recordingInvalidator
	obs    *recordingObserver
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	h := &harness{
		gw:     &stubGateway{},
		dialer: &fakeDialer{},
		clock:  clockwork.NewFakeClockAt(testNow),
		inv:    newRecordingInvalidator(),
		obs:    &recordingObserver{},
	}
	if cfg.ConnectDelay == 0 {
		cfg.ConnectDelay = testConnectDelay
	}
	h.store = session.NewStore(session.DefaultConfig(), h.gw, nil, session.WithLogger(discardLogger()))

	c, err := NewClient(cfg, testBaseURL, h.store, h.inv,
		WithLogger(discardLogger()),
		WithDialer(h.dialer),
		WithClock(h.clock),
		WithObserver(h.obs),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	h.client = c

	t.Cleanup(func() {
		c.Deactivate()
		c.Wait()
		h.store.Wait()
	})
	return h
}

func (h *harness) login(t *testing.T, access string) {
	t.Helper()

	h.gw.set(access)
	if err := h.store.LoginWithPassword(context.Background(), session.PasswordCredentials{Username: "ops", Password: "pw"}); err != nil {
		t.Fatalf("login: %v", err)
	}
}

// tick fires the deferred connect. The callback runs on its own goroutine.
func (h *harness) tick() { h.clock.Advance(testConnectDelay) }

// open fires the deferred connect and waits for the transport.
func (h *harness) open(t *testing.T) *fakeConn {
	t.Helper()

	h.tick()
	waitStatus(t, h.client, StateOpen)
	return h.dialer.lastConn()
}

// waitTimers waits until exactly n timers are scheduled on the fake clock.
func (h *harness) waitTimers(t *testing.T, n int) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.clock.BlockUntilContext(ctx, n); err != nil {
		t.Fatalf("timed out waiting for %d scheduled timers", n)
	}
}

// waitDials polls until the dialer has been called n times.
func (h *harness) waitDials(t *testing.T, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for h.dialer.dials() != n {
		if time.Now().After(deadline) {
			t.Fatalf("dials=%d want=%d", h.dialer.dials(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitKeys(t *testing.T, inv *recordingInvalidator) []string {
	t.Helper()

	select {
	case keys := <-inv.calls:
		return keys
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for invalidation")
		return nil
	}
}

func waitWrite(t *testing.T, c *fakeConn) string {
	t.Helper()

	select {
	case b := <-c.writes:
		return string(b)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for outbound frame")
		return ""
	}
}

// waitAttempt polls until the client reaches state with the given attempt.
func waitAttempt(t *testing.T, c *Client, state State, attempt int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		st := c.Status()
		if st.State == state && st.Attempt == attempt {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("status=%+v want %s attempt %d", st, state, attempt)
		}
		time.Sleep(time.Millisecond)
	}
}

// waitClosed waits until the transport has been closed by the client.
func waitClosed(t *testing.T, c *fakeConn) {
	t.Helper()

	select {
	case <-c.closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("transport not closed")
	}
}

// waitStatus polls until the client reaches want.
func waitStatus(t *testing.T, c *Client, want State) Status {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		st := c.Status()
		if st.State == want {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("state=%s want=%s", st.State, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
