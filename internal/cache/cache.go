// Package cache memoizes source search results. Entries are immutable
// snapshots; freshness is decided by the reader, not by the store.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/market"
)

// DefaultTTL is how long a cached search result is considered fresh.
const DefaultTTL = time.Hour

// Entry is a cached search result.
type Entry struct {
	Listings []market.Listing `json:"listings"`
	StoredAt time.Time        `json:"storedAt"`
}

// Fresh reports whether the entry is younger than ttl at time now.
func (e Entry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.StoredAt) < ttl
}

// Cache stores search results by key. Put replaces any existing entry
// whole.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool)
	Put(ctx context.Context, key string, entry Entry)
}

// Key builds the cache key for a source query. The query is normalized
// to lower case with collapsed whitespace.
func Key(source, query string, maxResults int, minPrice, maxPrice float64) string {
	q := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return fmt.Sprintf("%s|%s|%d|%g|%g", source, q, maxResults, minPrice, maxPrice)
}
