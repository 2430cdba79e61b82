package availability

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// setIfGeneration writes KEYS[1] only while KEYS[2] still holds ARGV[1].
var setIfGeneration = redis.NewScript(`
if (redis.call("GET", KEYS[2]) or "0") ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// genTTL bounds how long a generation key outlives its last invalidation.
// It must exceed the longest month computation.
const genTTL = 24 * time.Hour

// RedisCache shares computed months between server instances. Each key
// has a companion generation key that Invalidate increments, so an
// invalidation on one instance also refuses writes still in flight on
// another.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
	log    *slog.Logger
}

func NewRedisCache(client redis.Cmdable, ttl time.Duration, log *slog.Logger) *RedisCache {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisCache{
		client: client,
		ttl:    ttl,
		log:    log.With(slog.String("component", "availability.redis_cache")),
	}
}

func genKey(key Key) string {
	return key.String() + ":gen"
}

func (c *RedisCache) Get(ctx context.Context, key Key, fingerprint string) (Response, bool) {
	data, err := c.client.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Response{}, false
	}
	if err != nil {
		c.log.Warn("cache get failed", slog.Any("err", err), slog.String("key", key.String()))
		return Response{}, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.log.Warn("cache entry undecodable", slog.Any("err", err), slog.String("key", key.String()))
		return Response{}, false
	}
	if entry.Fingerprint != fingerprint {
		return Response{}, false
	}
	return entry.Response, true
}

func (c *RedisCache) Generation(ctx context.Context, key Key) (uint64, bool) {
	gen, err := c.client.Get(ctx, genKey(key)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		c.log.Warn("cache generation read failed", slog.Any("err", err), slog.String("key", key.String()))
		return 0, false
	}
	return gen, true
}

func (c *RedisCache) Set(ctx context.Context, key Key, fingerprint string, gen uint64, resp Response) {
	data, err := json.Marshal(cacheEntry{Fingerprint: fingerprint, Response: resp})
	if err != nil {
		c.log.Warn("cache entry unencodable", slog.Any("err", err), slog.String("key", key.String()))
		return
	}
	stored, err := setIfGeneration.Run(ctx, c.client,
		[]string{key.String(), genKey(key)},
		strconv.FormatUint(gen, 10), data, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		c.log.Warn("cache set failed", slog.Any("err", err), slog.String("key", key.String()))
		return
	}
	if stored == 0 {
		c.log.Debug("cache write dropped after invalidation", slog.String("key", key.String()))
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, key Key) {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(key))
		pipe.Expire(ctx, genKey(key), genTTL)
		pipe.Del(ctx, key.String())
		return nil
	})
	if err != nil {
		c.log.Warn("cache invalidate failed", slog.Any("err", err), slog.String("key", key.String()))
	}
}
