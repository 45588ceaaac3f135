package app

import (
	"context"
	"fmt"
	"time"

	"fleetdash/cmd/internal/auth/session"

	"github.com/redis/go-redis/v9"
)

// backend is the selected session persister with its lifecycle.
type backend struct {
	name      string
	persister session.Persister

	// ping reports readiness; nil means always ready.
	ping  func(ctx context.Context) error
	close func()
}

func (b *backend) Close() {
	if b != nil && b.close != nil {
		b.close()
	}
}

func (b *backend) Ready(ctx context.Context) error {
	if b == nil || b.ping == nil {
		return nil
	}
	return b.ping(ctx)
}

// openBackend decides where the session snapshot lives.
func openBackend(ctx context.Context, cfg Config, log Logger) (*backend, error) {
	key := cfg.Session.StorageKey

	switch cfg.Storage {
	case StorageMemory:
		log.Info("storage.memory")
		return &backend{name: StorageMemory, persister: session.NewMemoryPersister()}, nil

	case StorageFile:
		p, err := session.NewFilePersister(cfg.StateDir, key)
		if err != nil {
			return nil, err
		}
		log.Info("storage.file", "path", p.Path())
		return &backend{name: StorageFile, persister: p}, nil

	case StorageRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, configErrorf("FLEETDASH_REDIS_URL: %v", err)
		}
		rdb := redis.NewClient(opts)

		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rdb.Ping(pctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}

		p := session.NewRedisPersister(rdb, key)
		log.Info("storage.redis", "addr", opts.Addr, "key", p.Key())
		return &backend{
			name:      StorageRedis,
			persister: p,
			ping:      func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			close:     func() { _ = rdb.Close() },
		}, nil

	case StoragePostgres:
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}

		p := session.NewPostgresPersister(pool, key)
		if err := p.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		log.Info("storage.postgres", "max_conns", pool.Config().MaxConns)
		return &backend{
			name:      StoragePostgres,
			persister: p,
			ping:      func(ctx context.Context) error { return PingDB(ctx, pool, 2*time.Second) },
			close:     pool.Close,
		}, nil
	}

	return nil, configErrorf("unknown storage %q", cfg.Storage)
}
