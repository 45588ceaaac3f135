package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"fleetdash/cmd/internal/auth/session"
	"fleetdash/cmd/security/token"
	v1 "fleetdash/shared/contracts/realtime/v1"

	"github.com/jonboulle/clockwork"
)

// Client maintains the push connection.
//
// Guarantees:
//   - no transport exists unless the client is active and the session is
//     authenticated with an access token;
//   - at most one transport is live; the previous one is discarded first;
//   - at most one reconnect timer is pending;
//   - Activate/Deactivate/Activate within Config.ConnectDelay dials once.
type Client struct {
	log     *slog.Logger
	cfg     Config
	baseURL string
	sess    SessionSource
	inv     Invalidator
	router  *Router
	dialer  Dialer
	clock   clockwork.Clock
	obs     Observer

	mu          sync.Mutex
	active      bool
	gen         uint64 // bumped on teardown; stale timers and dials compare against it
	state       State
	attempt     int
	conn        Conn
	connID      string
	cancel      context.CancelFunc // dial/read context of the current attempt
	pending     clockwork.Timer    // deferred first connect
	retry       clockwork.Timer    // backoff reconnect
	unsubscribe func()
	version     uint64

	notifyMu  sync.Mutex
	notified  uint64
	lastSent  Status
	subsMu    sync.Mutex
	subs      map[uint64]func(Status)
	nextSubID uint64

	timers  sync.WaitGroup // scheduled callbacks not yet stopped or finished
	readers sync.WaitGroup
}

// Option configures optional Client dependencies.
type Option func(*Client)

// WithLogger overrides the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithDialer overrides the WebSocket dialer (tests).
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithClock overrides the real clock (tests).
func WithClock(cl clockwork.Clock) Option {
	return func(c *Client) {
		if cl != nil {
			c.clock = cl
		}
	}
}

// WithObserver attaches a lifecycle observer.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		if o != nil {
			c.obs = o
		}
	}
}

// WithRouter overrides the default event routing table.
func WithRouter(r *Router) Option {
	return func(c *Client) {
		if r != nil {
			c.router = r
		}
	}
}

// NewClient constructs an inactive Client. baseURL is the deployment origin
// (http or https); it is validated here so dial-time URL errors cannot occur.
func NewClient(cfg Config, baseURL string, sess SessionSource, inv Invalidator, opts ...Option) (*Client, error) {
	cfg = cfg.normalized()
	if _, err := BuildURL(baseURL, cfg.Path, ""); err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errors.New("realtime: nil session source")
	}

	c := &Client{
		log:     slog.Default(),
		cfg:     cfg,
		baseURL: baseURL,
		sess:    sess,
		inv:     inv,
		router:  NewRouter(),
		dialer:  WebSocketDialer{ReadLimit: cfg.ReadLimit},
		clock:   clockwork.NewRealClock(),
		obs:     nopObserver{},
		state:   StateIdle,
		subs:    make(map[uint64]func(Status)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Router returns the routing table so callers can register extra events.
func (c *Client) Router() *Router { return c.router }

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Subscribe registers fn for status changes and returns an idempotent
// unsubscribe function.
func (c *Client) Subscribe(fn func(Status)) func() {
	if fn == nil {
		return func() {}
	}

	c.subsMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = fn
	c.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, id)
			c.subsMu.Unlock()
		})
	}
}

// Activate declares that a consumer wants the connection. If the session is
// eligible, a connect is scheduled for the next tick. Idempotent.
func (c *Client) Activate() {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return
	}
	c.active = true
	gen := c.gen
	c.mu.Unlock()

	unsub := c.sess.Subscribe(c.onSession)

	kept := false
	c.mutate(func() Conn {
		if !c.active || c.gen != gen {
			// Deactivated while subscribing.
			return nil
		}
		kept = true
		c.unsubscribe = unsub
		c.scheduleConnectLocked()
		return nil
	})
	if !kept {
		unsub()
		return
	}
	c.log.Debug("rt.activate")
}

// Deactivate tears everything down and returns to idle: the pending connect
// and reconnect timers are stopped, an in-flight dial is cancelled and an
// open transport is closed. Safe to call in any state. Idempotent.
func (c *Client) Deactivate() {
	var unsub func()
	c.mutate(func() Conn {
		if !c.active {
			return nil
		}
		c.active = false
		unsub = c.unsubscribe
		c.unsubscribe = nil
		return c.teardownLocked()
	})
	if unsub != nil {
		unsub()
		c.log.Debug("rt.deactivate")
	}
}

// Wait blocks until timer callbacks and read loops of discarded connections
// have finished. Call it after Deactivate; an active client may keep
// scheduling work.
func (c *Client) Wait() {
	c.timers.Wait()
	c.readers.Wait()
}

// Send writes a frame on the open connection. When the connection is not
// open it does nothing and returns nil.
func (c *Client) Send(ctx context.Context, f v1.Frame) error {
	c.mu.Lock()
	if c.state != StateOpen || c.conn == nil {
		c.mu.Unlock()
		return nil
	}
	gen, conn := c.gen, c.conn
	c.mu.Unlock()

	return c.sendOn(ctx, gen, conn, f)
}

func (c *Client) sendOn(ctx context.Context, gen uint64, conn Conn, f v1.Frame) error {
	if !c.isCurrent(gen, conn) {
		return nil
	}

	b, err := v1.Encode(f)
	if err != nil {
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()
	return conn.Write(wctx, b)
}

// onSession reacts to session changes: losing eligibility tears down, gaining
// it while idle schedules a connect. Token refreshes leave an open connection
// alone; the new token is used on the next dial.
func (c *Client) onSession(st session.State) {
	c.mutate(func() Conn {
		if !c.active {
			return nil
		}
		if !eligible(st) {
			if c.state == StateIdle && c.pending == nil && c.retry == nil && c.conn == nil && c.cancel == nil {
				return nil
			}
			c.log.Info("rt.session.lost", "conn_id", c.connID)
			return c.teardownLocked()
		}
		if c.state == StateIdle {
			c.scheduleConnectLocked()
		}
		return nil
	})
}

// scheduleConnectLocked defers the first connect by Config.ConnectDelay.
func (c *Client) scheduleConnectLocked() {
	if !c.active || c.pending != nil || c.retry != nil || c.conn != nil || c.cancel != nil {
		return
	}
	if !eligible(c.sess.Snapshot()) {
		return
	}

	gen := c.gen
	c.timers.Add(1)
	c.pending = c.clock.AfterFunc(c.cfg.ConnectDelay, func() {
		defer c.timers.Done()

		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		c.pending = nil
		c.mu.Unlock()

		c.connect(gen)
	})
}

// connect dials once for generation gen. The token is read here, at dial time.
func (c *Client) connect(gen uint64) {
	var (
		ctx    context.Context
		url    string
		connID string
		ok     bool
	)
	c.mutate(func() Conn {
		if gen != c.gen || !c.active || c.conn != nil || c.cancel != nil {
			return nil
		}

		snap := c.sess.Snapshot()
		if !eligible(snap) {
			c.setStateLocked(StateIdle)
			return nil
		}

		u, err := BuildURL(c.baseURL, c.cfg.Path, snap.AccessToken)
		if err != nil {
			c.failLocked(StateError, err)
			return nil
		}

		ctx, c.cancel = context.WithCancel(context.Background())
		url = u
		connID = NewConnID(c.clock.Now())
		c.connID = connID
		c.setStateLocked(StateConnecting)
		c.log.Info("rt.dial",
			"conn_id", connID,
			"attempt", c.attempt,
			"token_fp", token.Fingerprint(snap.AccessToken),
		)
		ok = true
		return nil
	})
	if !ok {
		return
	}

	conn, err := c.dialer.Dial(ctx, url)

	var stale Conn
	c.mutate(func() Conn {
		if gen != c.gen || c.connID != connID {
			// Torn down while dialing: discard whatever we got.
			stale = conn
			return nil
		}
		if err != nil {
			c.cancel()
			c.cancel = nil
			c.log.Info("rt.dial.fail", "conn_id", connID, "err", err)
			c.failLocked(StateError, err)
			return nil
		}

		c.conn = conn
		c.attempt = 0
		c.setStateLocked(StateOpen)
		c.log.Info("rt.open", "conn_id", connID)

		c.readers.Add(1)
		go c.readLoop(ctx, gen, conn, connID)
		return nil
	})
	if stale != nil {
		_ = stale.Close()
	}
}

func (c *Client) readLoop(ctx context.Context, gen uint64, conn Conn, connID string) {
	defer c.readers.Done()

	for {
		data, err := conn.Read(ctx)
		if err != nil {
			c.connLost(gen, conn, connID, err)
			return
		}
		if !c.isCurrent(gen, conn) {
			return
		}
		c.handleFrame(ctx, gen, conn, connID, data)
	}
}

func (c *Client) handleFrame(ctx context.Context, gen uint64, conn Conn, connID string, data []byte) {
	f, err := v1.Decode(data)
	if err != nil {
		c.log.Info("rt.frame.malformed", "conn_id", connID, "bytes", len(data), "err", err)
		return
	}
	c.obs.FrameReceived(f.Type)

	switch f.Type {
	case v1.TypePing:
		if err := c.sendOn(ctx, gen, conn, v1.Pong()); err != nil {
			c.log.Info("rt.pong.fail", "conn_id", connID, "err", err)
		}
		return
	case v1.TypePong:
		return
	}

	keys := c.router.Keys(f.Type)
	if len(keys) == 0 {
		c.log.Debug("rt.frame.unrouted", "conn_id", connID, "type", f.Type)
		return
	}
	if c.inv != nil {
		c.inv.Invalidate(keys...)
	}
	c.obs.Invalidated(keys)
	c.log.Debug("rt.invalidate", "conn_id", connID, "type", f.Type, "keys", keys)
}

// connLost handles the end of a read loop. Deliberate teardowns have already
// bumped the generation and are ignored here.
func (c *Client) connLost(gen uint64, conn Conn, connID string, err error) {
	c.mutate(func() Conn {
		if gen != c.gen || c.conn != conn {
			return nil
		}

		c.conn = nil
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}

		next := StateError
		if IsPeerClose(err) {
			next = StateClosed
		}
		c.log.Info("rt.conn.lost", "conn_id", connID, "state", string(next), "err", err)
		c.failLocked(next, err)
		return conn
	})
}

// failLocked moves to closed/error and schedules the next attempt, or goes
// idle when the entry condition no longer holds.
func (c *Client) failLocked(to State, err error) {
	if c.retry != nil {
		c.stopTimerLocked(c.retry)
		c.retry = nil
	}
	c.setStateLocked(to)

	if !c.active || !eligible(c.sess.Snapshot()) {
		c.setStateLocked(StateIdle)
		return
	}

	delay := c.cfg.delay(c.attempt)
	c.attempt++
	attempt := c.attempt
	gen := c.gen

	c.timers.Add(1)
	c.retry = c.clock.AfterFunc(delay, func() {
		defer c.timers.Done()

		c.mu.Lock()
		if gen != c.gen || !c.active {
			c.mu.Unlock()
			return
		}
		c.retry = nil
		c.mu.Unlock()

		c.connect(gen)
	})
	c.obs.ReconnectScheduled(attempt, delay)
	c.log.Info("rt.reconnect.scheduled", "attempt", attempt, "delay", delay.String(), "err", err)
}

// teardownLocked invalidates every outstanding timer, dial and read loop and
// returns the transport for the caller to close outside the lock.
func (c *Client) teardownLocked() Conn {
	c.gen++

	if c.pending != nil {
		c.stopTimerLocked(c.pending)
		c.pending = nil
	}
	if c.retry != nil {
		c.stopTimerLocked(c.retry)
		c.retry = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	conn := c.conn
	c.conn = nil
	c.attempt = 0
	c.connID = ""
	c.setStateLocked(StateIdle)
	return conn
}

// stopTimerLocked releases the Wait slot of a timer that will never fire.
// A timer that already fired releases its own slot when the callback returns.
func (c *Client) stopTimerLocked(t clockwork.Timer) {
	if t.Stop() {
		c.timers.Done()
	}
}

func (c *Client) isCurrent(gen uint64, conn Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen && c.conn == conn && c.state == StateOpen
}

func (c *Client) setStateLocked(to State) {
	if c.state == to {
		return
	}
	from := c.state
	c.state = to
	c.obs.StateChanged(from, to)
	c.log.Debug("rt.state", "from", string(from), "to", string(to), "conn_id", c.connID)
}

func (c *Client) statusLocked() Status {
	return Status{State: c.state, Attempt: c.attempt, ConnID: c.connID}
}

// mutate runs fn under the lock, closes the returned transport outside it and
// publishes the resulting status.
func (c *Client) mutate(fn func() Conn) {
	c.mu.Lock()
	conn := fn()
	c.version++
	version := c.version
	st := c.statusLocked()
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.notify(version, st)
}

func (c *Client) notify(version uint64, st Status) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	if version <= c.notified {
		return
	}
	c.notified = version
	if st == c.lastSent {
		return
	}
	c.lastSent = st

	c.subsMu.Lock()
	fns := make([]func(Status), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subsMu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}
