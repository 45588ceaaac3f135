package app

import (
	"context"
	"encoding/json"
	"sync"

	"fleetdash/cmd/internal/auth/session"
	"fleetdash/cmd/internal/realtime"

	"golang.org/x/sync/errgroup"
)

// resourcePaths maps cache keys to the endpoints that serve them.
var resourcePaths = map[string]string{
	realtime.KeyNodes:     "/api/nodes",
	realtime.KeyNodeStats: "/api/nodes/stats",
	realtime.KeyUsers:     "/api/users",
	realtime.KeyUserStats: "/api/users/stats",
	realtime.KeyAuditLogs: "/api/audit-logs",
	realtime.KeyScripts:   "/api/scripts",
	realtime.KeyBilling:   "/api/billing",
	realtime.KeyMail:      "/api/mail",
	realtime.KeyStats:     "/api/stats",
}

func cmdWatch(ctx context.Context, a *App, args []string) error {
	fs := newFlagSet(a, "watch")
	prefetch := fs.Bool("prefetch", false, "fetch every known resource once on start")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if out := a.store.ValidateSession(ctx); out == session.OutcomeSkipped || out == session.OutcomeCleared {
		return ErrNotLoggedIn
	}
	return a.watch(ctx, *prefetch)
}

// watch keeps the push connection up while a session exists and refetches
// every resource an event invalidates. It returns nil when ctx is done and
// ErrNotLoggedIn when the session ends underneath it.
func (a *App) watch(ctx context.Context, prefetch bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stale := make(chan string, len(resourcePaths)*2)
	unsubCache := a.cache.Subscribe(func(key string) {
		select {
		case stale <- key:
		default:
			// Queue full: the key stays stale and is picked up by the drain below.
		}
	})
	defer unsubCache()

	ended := make(chan struct{})
	var endOnce sync.Once
	unsubSession := a.store.Subscribe(func(st session.State) {
		if !st.IsAuthenticated && !st.IsLoading {
			endOnce.Do(func() { close(ended) })
		}
	})
	defer unsubSession()

	unsubRT := a.rt.Subscribe(func(st realtime.Status) {
		if st.State == realtime.StateOpen || st.State == realtime.StateIdle {
			a.printf("push: %s\n", st.State)
			return
		}
		a.printf("push: %s (attempt %d)\n", st.State, st.Attempt)
	})
	defer unsubRT()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.serveOps(gctx) })
	g.Go(func() error {
		a.runValidator(gctx)
		return nil
	})

	a.rt.Activate()
	defer a.rt.Deactivate()

	if prefetch {
		keys := make([]string, 0, len(resourcePaths))
		for k := range resourcePaths {
			keys = append(keys, k)
		}
		a.cache.Invalidate(keys...)
	}

	var result error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-gctx.Done():
			break loop
		case <-ended:
			result = ErrNotLoggedIn
			break loop
		case key := <-stale:
			a.refetch(ctx, key)
			for _, k := range a.cache.StaleKeys() {
				a.refetch(ctx, k)
			}
		}
	}

	cancel()
	if err := g.Wait(); err != nil && result == nil {
		result = err
	}
	return result
}

// refetch reloads one resource and marks it fresh at the generation read
// before the request, so an event arriving mid-flight keeps it stale.
func (a *App) refetch(ctx context.Context, key string) {
	if !a.cache.Stale(key) {
		return
	}
	path, ok := resourcePaths[key]
	if !ok {
		a.log.Debug("watch.refetch.unknown", "key", key)
		a.cache.MarkFresh(key)
		return
	}

	gen := a.cache.Generation(key)
	var body json.RawMessage
	if err := a.data.GetJSON(ctx, path, &body); err != nil {
		a.log.Warn("watch.refetch.fail", "key", key, "path", path, "err", err)
		return
	}

	fresh := a.cache.MarkFreshAt(key, gen)
	a.log.Debug("watch.refetch.ok", "key", key, "bytes", len(body), "fresh", fresh)
	a.printf("refreshed %s (%d bytes)\n", key, len(body))
}
