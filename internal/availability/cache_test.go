package availability

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"vetclinic/backend/internal/domain"
)

func sampleResponse(clinicID uuid.UUID) Response {
	hours := domain.DefaultClinicHours()
	slots := domain.GenerateMonthGrid(2025, time.January, hours)
	slots[0].Available = false
	return Response{ClinicID: clinicID, Year: 2025, Month: time.January, Slots: slots, Hours: hours}
}

func TestKeyString(t *testing.T) {
	key := KeyFor(uuid.MustParse("00000000-0000-0000-0000-000000000042"), 2025, time.March)
	if got := key.String(); got != "availability:00000000-0000-0000-0000-000000000042:2025-03" {
		t.Fatalf("key = %q", got)
	}
}

func TestLRUCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewLRUCache(2, 0, nil)
	if err != nil {
		t.Fatalf("NewLRUCache error: %v", err)
	}

	clinic := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	key := KeyFor(clinic, 2025, time.January)
	resp := sampleResponse(clinic)
	fp := resp.Hours.Fingerprint()

	t.Run("miss before set", func(t *testing.T) {
		if _, ok := c.Get(ctx, key, fp); ok {
			t.Fatalf("expected miss")
		}
	})

	gen, ok := c.Generation(ctx, key)
	if !ok {
		t.Fatalf("generation unreadable")
	}

	t.Run("hit returns a copy", func(t *testing.T) {
		c.Set(ctx, key, fp, gen, resp)
		got, ok := c.Get(ctx, key, fp)
		if !ok {
			t.Fatalf("expected hit")
		}
		if len(got.Slots) != len(resp.Slots) || got.Slots[0].Available {
			t.Fatalf("cached response differs from stored one")
		}
		got.Slots[1].Available = false
		got.Hours.Lunch.Start = 0

		again, _ := c.Get(ctx, key, fp)
		if !again.Slots[1].Available || again.Hours.Lunch.Start == 0 {
			t.Fatalf("mutation of returned response leaked into cache")
		}
	})

	t.Run("fingerprint mismatch is a miss", func(t *testing.T) {
		c.Set(ctx, key, fp, gen, resp)
		if _, ok := c.Get(ctx, key, "other"); ok {
			t.Fatalf("expected miss for different hours")
		}
		if _, ok := c.Get(ctx, key, fp); ok {
			t.Fatalf("stale entry must be evicted")
		}
	})

	t.Run("invalidate evicts", func(t *testing.T) {
		c.Set(ctx, key, fp, gen, resp)
		c.Invalidate(ctx, key)
		if _, ok := c.Get(ctx, key, fp); ok {
			t.Fatalf("expected miss after invalidate")
		}
	})

	t.Run("set with pre-invalidation generation is dropped", func(t *testing.T) {
		c.Set(ctx, key, fp, gen, resp)
		if _, ok := c.Get(ctx, key, fp); ok {
			t.Fatalf("write raced by an invalidation was stored")
		}
		gen, _ = c.Generation(ctx, key)
		c.Set(ctx, key, fp, gen, resp)
		if _, ok := c.Get(ctx, key, fp); !ok {
			t.Fatalf("expected hit with current generation")
		}
	})

	t.Run("bounded size", func(t *testing.T) {
		for m := time.February; m <= time.May; m++ {
			k := KeyFor(clinic, 2025, m)
			g, _ := c.Generation(ctx, k)
			c.Set(ctx, k, fp, g, resp)
		}
		if c.Len() != 2 {
			t.Fatalf("len = %d, want 2", c.Len())
		}
	})
}

func TestNewLRUCache_RejectsBadArguments(t *testing.T) {
	if _, err := NewLRUCache(0, time.Minute, nil); err == nil {
		t.Fatalf("expected error for zero size")
	}
	if _, err := NewLRUCache(4, -time.Second, nil); err == nil {
		t.Fatalf("expected error for negative ttl")
	}
}

func TestLRUCache_EntriesExpire(t *testing.T) {
	ctx := context.Background()
	c, err := NewLRUCache(4, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewLRUCache error: %v", err)
	}
	clinic := uuid.New()
	key := KeyFor(clinic, 2025, time.January)
	resp := sampleResponse(clinic)
	fp := resp.Hours.Fingerprint()

	gen, _ := c.Generation(ctx, key)
	c.Set(ctx, key, fp, gen, resp)
	if _, ok := c.Get(ctx, key, fp); !ok {
		t.Fatalf("expected hit before ttl")
	}
	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get(ctx, key, fp); ok {
		t.Fatalf("entry outlived its ttl")
	}
}

func TestLRUCache_GenerationsStayBounded(t *testing.T) {
	ctx := context.Background()
	c, err := NewLRUCache(1, 0, nil)
	if err != nil {
		t.Fatalf("NewLRUCache error: %v", err)
	}
	clinic := uuid.New()
	key := KeyFor(clinic, 2000, time.January)
	resp := sampleResponse(clinic)
	fp := resp.Hours.Fingerprint()

	gen, _ := c.Generation(ctx, key)
	c.Invalidate(ctx, key)
	for i := 0; i < 3*c.maxGens; i++ {
		c.Invalidate(ctx, KeyFor(clinic, 2001+i/12, time.Month(i%12+1)))
	}
	if len(c.gens) > c.maxGens {
		t.Fatalf("gens = %d, want at most %d", len(c.gens), c.maxGens)
	}

	c.Set(ctx, key, fp, gen, resp)
	if _, ok := c.Get(ctx, key, fp); ok {
		t.Fatalf("write raced by an invalidation was stored after pruning")
	}
}

func TestRedisCacheIntegration(t *testing.T) {
	addr := strings.TrimSpace(os.Getenv("VETCLINIC_TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("VETCLINIC_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := NewRedisCache(client, time.Minute, nil)
	clinic := uuid.New()
	key := KeyFor(clinic, 2025, time.January)
	resp := sampleResponse(clinic)
	fp := resp.Hours.Fingerprint()
	t.Cleanup(func() { _ = client.Del(context.Background(), key.String(), genKey(key)).Err() })

	gen, ok := c.Generation(ctx, key)
	if !ok {
		t.Fatalf("generation unreadable")
	}
	c.Set(ctx, key, fp, gen, resp)
	got, ok := c.Get(ctx, key, fp)
	if !ok {
		t.Fatalf("expected hit")
	}
	if got.ClinicID != clinic || len(got.Slots) != len(resp.Slots) || got.Slots[0].Available {
		t.Fatalf("decoded response differs: clinic=%s slots=%d", got.ClinicID, len(got.Slots))
	}
	if got.Hours.Lunch == nil || got.Hours.Lunch.Start != resp.Hours.Lunch.Start {
		t.Fatalf("hours not preserved: %+v", got.Hours)
	}
	if _, ok := c.Get(ctx, key, "other"); ok {
		t.Fatalf("expected miss for different hours")
	}

	c.Invalidate(ctx, key)
	if _, ok := c.Get(ctx, key, fp); ok {
		t.Fatalf("expected miss after invalidate")
	}
}

func TestRedisCacheIntegration_InvalidationFromAnotherInstance(t *testing.T) {
	addr := strings.TrimSpace(os.Getenv("VETCLINIC_TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("VETCLINIC_TEST_REDIS_ADDR not set")
	}

	clientA := redis.NewClient(&redis.Options{Addr: addr})
	clientB := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() {
		_ = clientA.Close()
		_ = clientB.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := NewRedisCache(clientA, time.Minute, nil)
	b := NewRedisCache(clientB, time.Minute, nil)
	clinic := uuid.New()
	key := KeyFor(clinic, 2025, time.January)
	resp := sampleResponse(clinic)
	fp := resp.Hours.Fingerprint()
	t.Cleanup(func() { _ = clientA.Del(context.Background(), key.String(), genKey(key)).Err() })

	gen, ok := a.Generation(ctx, key)
	if !ok {
		t.Fatalf("generation unreadable")
	}
	b.Invalidate(ctx, key)
	a.Set(ctx, key, fp, gen, resp)
	if _, ok := b.Get(ctx, key, fp); ok {
		t.Fatalf("write raced by another instance's invalidation was stored")
	}

	gen, _ = a.Generation(ctx, key)
	a.Set(ctx, key, fp, gen, resp)
	if _, ok := b.Get(ctx, key, fp); !ok {
		t.Fatalf("expected other instance to see the entry")
	}
	b.Invalidate(ctx, key)
	if _, ok := a.Get(ctx, key, fp); ok {
		t.Fatalf("entry survived invalidation from another instance")
	}
}
