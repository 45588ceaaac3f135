// Package querycache tracks which cached server resources are stale.
//
// It holds no data: the dashboard's fetch layer owns the payloads. The
// cache only counts invalidations per key so a fetcher can tell whether
// what it holds is still current, and notifies subscribers when a key
// goes stale.
package querycache

import (
	"log/slog"
	"sync"
)

// Cache is safe for concurrent use. The zero value is not usable; call New.
type Cache struct {
	log *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry

	subsMu sync.Mutex
	subs   map[uint64]func(key string)
	nextID uint64
}

type entry struct {
	gen   uint64 // bumped by Invalidate
	fresh uint64 // generation last marked fresh
}

// New constructs an empty Cache. A nil logger falls back to slog.Default.
func New(log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		log:     log,
		entries: make(map[string]*entry),
		subs:    make(map[uint64]func(string)),
	}
}

// Invalidate marks every key stale. Duplicate and empty keys are ignored.
// Subscribers are called once per distinct key, outside the lock.
func (c *Cache) Invalidate(keys ...string) {
	if len(keys) == 0 {
		return
	}

	seen := make(map[string]struct{}, len(keys))
	changed := make([]string, 0, len(keys))

	c.mu.Lock()
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		e := c.entries[k]
		if e == nil {
			e = &entry{}
			c.entries[k] = e
		}
		e.gen++
		changed = append(changed, k)
	}
	c.mu.Unlock()

	if len(changed) == 0 {
		return
	}
	c.log.Debug("cache.invalidate", "keys", changed)

	fns := c.subscribers()
	for _, k := range changed {
		for _, fn := range fns {
			fn(k)
		}
	}
}

// Generation returns how many times key has been invalidated.
func (c *Cache) Generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e := c.entries[key]; e != nil {
		return e.gen
	}
	return 0
}

// Stale reports whether key was invalidated after it was last marked fresh.
// Keys that were never invalidated are not stale.
func (c *Cache) Stale(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[key]
	return e != nil && e.gen > e.fresh
}

// MarkFresh records that key is current as of now.
func (c *Cache) MarkFresh(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e := c.entries[key]; e != nil {
		e.fresh = e.gen
	}
}

// MarkFreshAt records that key is current as of generation gen, typically
// the value of Generation read before a refetch started. An invalidation that
// arrived during the refetch keeps the key stale. It reports whether the key
// is fresh afterwards.
func (c *Cache) MarkFreshAt(key string, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[key]
	if e == nil {
		return true
	}
	if gen > e.gen {
		gen = e.gen
	}
	if gen > e.fresh {
		e.fresh = gen
	}
	return e.fresh >= e.gen
}

// StaleKeys returns every stale key (in no particular order).
func (c *Cache) StaleKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0)
	for k, e := range c.entries {
		if e.gen > e.fresh {
			out = append(out, k)
		}
	}
	return out
}

// Subscribe registers fn to be called with each key that goes stale.
// The returned function unsubscribes and is safe to call more than once.
func (c *Cache) Subscribe(fn func(key string)) func() {
	if fn == nil {
		return func() {}
	}

	c.subsMu.Lock()
	id := c.nextID
	c.nextID++
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

func (c *Cache) subscribers() []func(string) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	fns := make([]func(string), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	return fns
}
