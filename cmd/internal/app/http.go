package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"fleetdash/cmd/internal/realtime"
)

func (a *App) registerHTTP(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	// Ready means storage is reachable and, while a session exists, the push
	// connection is not stuck outside open.
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.backend.Ready(r.Context()); err != nil {
			http.Error(w, "storage not ready", http.StatusServiceUnavailable)
			a.log.Info("readyz.storage.not_ready", "storage", a.backend.name, "err", err)
			return
		}

		if a.store.Snapshot().IsAuthenticated {
			if st := a.rt.Status(); st.State != realtime.StateOpen {
				http.Error(w, "push connection "+string(st.State), http.StatusServiceUnavailable)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.Handle("/metrics", a.metrics.Handler())
}

// serveOps runs the ops HTTP server until ctx is done. It is a no-op when no
// address is configured.
func (a *App) serveOps(ctx context.Context) error {
	if a.cfg.MetricsAddr == "" {
		return nil
	}

	mux := http.NewServeMux()
	a.registerHTTP(mux)

	srv := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           WithSecurityHeaders(WithRequestLogging(mux, a.log)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.log.Info("ops.start", "addr", a.cfg.MetricsAddr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		a.log.Error("ops.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("ops.shutdown.fail", "err", err)
		return err
	}
	a.log.Info("ops.stopped")
	return nil
}
