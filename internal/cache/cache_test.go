package cache

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleListings() []market.Listing {
	return []market.Listing{
		{Source: "vinted", Title: "Nike Air Max 90", Price: 45, Currency: "EUR", URL: "https://www.vinted.fr/items/1"},
		{Source: "vinted", Title: "Nike Air Max 90 blanc", Price: 52.5, Currency: "EUR", URL: "https://www.vinted.fr/items/2"},
	}
}

func TestKey_NormalizesQuery(t *testing.T) {
	a := Key("vinted", "  Nike   Air Max ", 20, 0, 100)
	b := Key("vinted", "nike air max", 20, 0, 100)
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, Key("ebay", "nike air max", 20, 0, 100))
	assert.NotEqual(t, a, Key("vinted", "nike air max", 10, 0, 100))
	assert.NotEqual(t, a, Key("vinted", "nike air max", 20, 5, 100))
}

func TestEntry_Fresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := Entry{StoredAt: now.Add(-59 * time.Minute)}
	assert.True(t, e.Fresh(now, DefaultTTL))

	e.StoredAt = now.Add(-time.Hour)
	assert.False(t, e.Fresh(now, DefaultTTL))
}

func TestMemoryCache_GetPut(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	stored := Entry{Listings: sampleListings(), StoredAt: time.Now()}
	c.Put(ctx, "k", stored)

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, stored.Listings, got.Listings)
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_PutReplacesWholeSnapshot(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	c.Put(ctx, "k", Entry{Listings: sampleListings(), StoredAt: time.Now()})
	c.Put(ctx, "k", Entry{Listings: sampleListings()[:1], StoredAt: time.Now()})

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Len(t, got.Listings, 1)
}

func TestMemoryCache_SnapshotIsolatedFromCaller(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	listings := sampleListings()
	c.Put(ctx, "k", Entry{Listings: listings, StoredAt: time.Now()})
	listings[0].Title = "mutated"

	got, _ := c.Get(ctx, "k")
	assert.Equal(t, "Nike Air Max 90", got.Listings[0].Title)
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Put(ctx, "k", Entry{Listings: sampleListings(), StoredAt: time.Now()})
		}()
		go func() {
			defer wg.Done()
			if e, ok := c.Get(ctx, "k"); ok {
				assert.Len(t, e.Listings, 2)
			}
		}()
	}
	wg.Wait()

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestEncodeDecodeEntry(t *testing.T) {
	stored := Entry{Listings: sampleListings(), StoredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	data, err := encodeEntry(stored)
	require.NoError(t, err)

	got, err := decodeEntry(data)
	require.NoError(t, err)
	assert.Equal(t, stored.Listings, got.Listings)
	assert.True(t, stored.StoredAt.Equal(got.StoredAt))

	_, err = decodeEntry([]byte("not json"))
	assert.Error(t, err)
}

// TestRedisCache runs against a live server when RESALE_TEST_REDIS_ADDR is set.
func TestRedisCache(t *testing.T) {
	addr := os.Getenv("RESALE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RESALE_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	c, err := NewRedisCache(ctx, RedisConfig{Addr: addr, Expiry: time.Minute})
	require.NoError(t, err)
	defer c.Close()

	key := Key("test", t.Name(), 20, 0, 0)
	c.Put(ctx, key, Entry{Listings: sampleListings(), StoredAt: time.Now()})

	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Len(t, got.Listings, 2)

	_, ok = c.Get(ctx, Key("test", "never stored", 1, 0, 0))
	assert.False(t, ok)
}
