package session

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisPersister stores the snapshot as a JSON string under fleetdash:<key>.
// Useful when several dashboard processes on one host share a login.
type RedisPersister struct {
	rdb redis.UniversalClient
	key string
}

// NewRedisPersister creates a Redis-backed persister for the storage key.
func NewRedisPersister(rdb redis.UniversalClient, key string) *RedisPersister {
	return &RedisPersister{rdb: rdb, key: "fleetdash:" + key}
}

// Key returns the Redis key holding the snapshot.
func (p *RedisPersister) Key() string { return p.key }

func (p *RedisPersister) Load(ctx context.Context) (Snapshot, bool, error) {
	b, err := p.rdb.Get(ctx, p.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}

	snap, err := decodeSnapshot(b)
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

func (p *RedisPersister) Save(ctx context.Context, snap Snapshot) error {
	b, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	return p.rdb.Set(ctx, p.key, b, 0).Err()
}

func (p *RedisPersister) Clear(ctx context.Context) error {
	return p.rdb.Del(ctx, p.key).Err()
}
