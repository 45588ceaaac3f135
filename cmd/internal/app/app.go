// Package app wires the fleetdash client runtime: config, logging, session
// persistence, the push connection, the ops HTTP server and the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	authapi "fleetdash/cmd/internal/auth/api"
	"fleetdash/cmd/internal/auth/session"
	"fleetdash/cmd/internal/metrics"
	"fleetdash/cmd/internal/querycache"
	"fleetdash/cmd/internal/realtime"

	"github.com/jonboulle/clockwork"
)

// App owns one session store and one push client and passes them by
// reference to everything that needs them.
type App struct {
	cfg   Config
	log   Logger
	in    io.Reader
	out   io.Writer
	outMu sync.Mutex

	clock   clockwork.Clock
	metrics *metrics.Metrics
	backend *backend

	auth  *authapi.Client // unauthenticated auth endpoints
	data  *authapi.Client // bearer-authorized, refreshes transparently
	store *session.Store
	cache *querycache.Cache
	rt    *realtime.Client

	rtOpts []realtime.Option
}

// Option configures optional App dependencies.
type Option func(*App)

// WithOutput redirects command output (stdout by default).
func WithOutput(w io.Writer) Option {
	return func(a *App) {
		if w != nil {
			a.out = w
		}
	}
}

func withInput(r io.Reader) Option {
	return func(a *App) {
		if r != nil {
			a.in = r
		}
	}
}

// WithClock overrides the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(a *App) {
		if c != nil {
			a.clock = c
		}
	}
}

// WithRealtimeOptions passes extra options to the push client (tests).
func WithRealtimeOptions(opts ...realtime.Option) Option {
	return func(a *App) {
		a.rtOpts = append(a.rtOpts, opts...)
	}
}

// New constructs a fully wired App. The caller must Close it.
func New(ctx context.Context, cfg Config, log Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat, nil)
	}

	a := &App{
		cfg:     cfg,
		log:     log,
		in:      os.Stdin,
		out:     os.Stdout,
		clock:   clockwork.NewRealClock(),
		metrics: metrics.New(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.backend = b

	a.auth, err = authapi.NewClient(cfg.API, authapi.WithLogger(log))
	if err != nil {
		b.Close()
		return nil, err
	}

	a.store = session.NewStore(cfg.Session, a.auth, b.persister,
		session.WithLogger(log),
		session.WithClock(a.clock),
		session.WithObserver(a.metrics),
	)

	a.data, err = authapi.NewClient(cfg.API,
		authapi.WithLogger(log),
		authapi.WithHTTPClient(&http.Client{
			Timeout:   cfg.API.Timeout,
			Transport: authapi.NewTransport(nil, a.store, log),
		}),
	)
	if err != nil {
		b.Close()
		return nil, err
	}

	a.cache = querycache.New(log)

	rtOpts := append([]realtime.Option{
		realtime.WithLogger(log),
		realtime.WithClock(a.clock),
		realtime.WithObserver(a.metrics),
	}, a.rtOpts...)
	a.rt, err = realtime.NewClient(cfg.Realtime, cfg.API.BaseURL, a.store, a.cache, rtOpts...)
	if err != nil {
		b.Close()
		return nil, err
	}

	return a, nil
}

// Store exposes the session store.
func (a *App) Store() *session.Store { return a.store }

// Realtime exposes the push client.
func (a *App) Realtime() *realtime.Client { return a.rt }

// Cache exposes the query cache.
func (a *App) Cache() *querycache.Cache { return a.cache }

// Rehydrate loads the persisted session. A corrupt snapshot is discarded
// and the session starts logged out.
func (a *App) Rehydrate(ctx context.Context) error {
	err := a.store.Load(ctx)
	if errors.Is(err, session.ErrSnapshotCorrupt) {
		a.log.Warn("session.snapshot.discarded", "err", err)
		if cerr := a.backend.persister.Clear(ctx); cerr != nil {
			a.log.Warn("session.snapshot.clear.fail", "err", cerr)
		}
		return nil
	}
	return err
}

// Close stops the push client, waits for background work and releases
// storage resources. Safe to call more than once.
func (a *App) Close() {
	if a.rt != nil {
		a.rt.Deactivate()
		a.rt.Wait()
	}
	if a.store != nil {
		a.store.Wait()
	}
	a.backend.Close()
}

// printf writes to the command output; watch prints from several goroutines.
func (a *App) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

// runValidator re-checks the session every cfg.ValidateInterval until ctx is
// done. A refresh that fails clears the session; the push client reacts.
func (a *App) runValidator(ctx context.Context) {
	interval := a.cfg.ValidateInterval
	if interval <= 0 {
		interval = time.Minute
	}

	t := a.clock.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.Chan():
			out := a.store.ValidateSession(ctx)
			a.log.Debug("session.validate.tick", "outcome", string(out))
		}
	}
}
