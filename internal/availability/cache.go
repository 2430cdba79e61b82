package availability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Key addresses one clinic month. Entries are additionally tagged with the
// clinic hours fingerprint, so changing the hours turns old entries into
// misses.
type Key struct {
	ClinicID uuid.UUID
	Year     int
	Month    time.Month
}

func KeyFor(clinicID uuid.UUID, year int, month time.Month) Key {
	return Key{ClinicID: clinicID, Year: year, Month: month}
}

func (k Key) MonthString() string {
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

func (k Key) String() string {
	return "availability:" + k.ClinicID.String() + ":" + k.MonthString()
}

// Cache stores computed months. Implementations log their own failures and
// degrade to misses; a cache problem never fails a request.
//
// Every key carries a generation that Invalidate advances. A caller reads
// the generation before loading bookings and passes it to Set, which drops
// the write if the key was invalidated in between.
type Cache interface {
	Get(ctx context.Context, key Key, fingerprint string) (Response, bool)
	// Generation reports false when the generation cannot be read; the
	// result must then not be cached.
	Generation(ctx context.Context, key Key) (uint64, bool)
	Set(ctx context.Context, key Key, fingerprint string, gen uint64, resp Response)
	Invalidate(ctx context.Context, key Key)
}

// Purger is implemented by caches that can drop every entry at once.
type Purger interface {
	Purge()
}

type NopCache struct{}

func (NopCache) Get(context.Context, Key, string) (Response, bool)  { return Response{}, false }
func (NopCache) Generation(context.Context, Key) (uint64, bool)     { return 0, false }
func (NopCache) Set(context.Context, Key, string, uint64, Response) {}
func (NopCache) Invalidate(context.Context, Key)                    {}

type cacheEntry struct {
	Fingerprint string   `json:"fingerprint"`
	Response    Response `json:"response"`
}

// LRUCache is an in-process cache bounded by entry count and age.
type LRUCache struct {
	cache *expirable.LRU[Key, cacheEntry]
	log   *slog.Logger

	mu sync.Mutex
	// gens holds the generation of recently invalidated keys. Values come
	// from seq, so they are never reused; keys missing from gens are at
	// floor.
	gens    map[Key]uint64
	seq     uint64
	floor   uint64
	maxGens int
}

// NewLRUCache keeps at most size months, each for at most ttl. A zero ttl
// keeps entries until they are evicted or invalidated.
func NewLRUCache(size int, ttl time.Duration, log *slog.Logger) (*LRUCache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("create lru cache: size must be positive, got %d", size)
	}
	if ttl < 0 {
		return nil, fmt.Errorf("create lru cache: ttl must not be negative, got %s", ttl)
	}
	if log == nil {
		log = slog.Default()
	}
	return &LRUCache{
		cache:   expirable.NewLRU[Key, cacheEntry](size, nil, ttl),
		log:     log.With(slog.String("component", "availability.lru_cache")),
		gens:    make(map[Key]uint64),
		maxGens: max(4*size, 1024),
	}, nil
}

func (c *LRUCache) Get(_ context.Context, key Key, fingerprint string) (Response, bool) {
	entry, ok := c.cache.Get(key)
	if !ok {
		return Response{}, false
	}
	if entry.Fingerprint != fingerprint {
		c.log.Debug("cache entry has stale hours", slog.String("key", key.String()))
		c.cache.Remove(key)
		return Response{}, false
	}
	return entry.Response.clone(), true
}

func (c *LRUCache) Generation(_ context.Context, key Key) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation(key), true
}

func (c *LRUCache) generation(key Key) uint64 {
	if g, ok := c.gens[key]; ok {
		return g
	}
	return c.floor
}

func (c *LRUCache) Set(_ context.Context, key Key, fingerprint string, gen uint64, resp Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation(key) != gen {
		c.log.Debug("cache write dropped after invalidation", slog.String("key", key.String()))
		return
	}
	c.cache.Add(key, cacheEntry{Fingerprint: fingerprint, Response: resp.clone()})
}

func (c *LRUCache) Invalidate(_ context.Context, key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.gens) >= c.maxGens {
		// Dropped keys now read as seq, so a write that began before
		// any of their invalidations is still refused.
		clear(c.gens)
		c.floor = c.seq
	}
	c.seq++
	c.gens[key] = c.seq
	if c.cache.Remove(key) {
		c.log.Debug("cache entry invalidated", slog.String("key", key.String()))
	}
}

// Purge drops every entry and refuses writes begun before it.
func (c *LRUCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.gens)
	c.seq++
	c.floor = c.seq
	c.cache.Purge()
}

func (c *LRUCache) Len() int {
	return c.cache.Len()
}
