// Package resultcache implements the Result Cache (C17): a short-lived
// cache keyed by (normalised_query, relevant_opts), storing the scored
// result list verbatim so a hit returns without re-running retrieval.
package resultcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"memnexus/internal/retrieve"
)

// DefaultTTL is the default cache entry lifetime.
const DefaultTTL = 60 * time.Second

// Key builds the cache key from a query and its relevant options, matching
// on the fields that affect retrieval outcome (strategy, limit, min_score,
// filters), not ephemeral ones (track_access).
func Key(query string, strategy string, limit int, minScore float64, filters map[string]string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var filterParts []string
	for _, k := range keys {
		filterParts = append(filterParts, fmt.Sprintf("%s=%s", k, filters[k]))
	}

	return fmt.Sprintf("q=%s|strategy=%s|limit=%d|min_score=%.4f|%s",
		normalized, strategy, limit, minScore, strings.Join(filterParts, "&"))
}

// Backend is the storage interface a Cache wraps: get/set raw bytes by key.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache wraps a Backend to store/retrieve []retrieve.Result.
type Cache struct {
	backend Backend
	ttl     time.Duration
}

// New constructs a Cache with the default TTL.
func New(backend Backend) *Cache {
	return &Cache{backend: backend, ttl: DefaultTTL}
}

// WithTTL overrides the default entry lifetime.
func (c *Cache) WithTTL(ttl time.Duration) *Cache {
	c.ttl = ttl
	return c
}

// Get returns the cached result list verbatim, if present.
func (c *Cache) Get(ctx context.Context, key string) ([]retrieve.Result, bool, error) {
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	var results []retrieve.Result
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, false, fmt.Errorf("resultcache: decode: %w", err)
	}
	return results, true, nil
}

// Set stores results under key for the cache's TTL.
func (c *Cache) Set(ctx context.Context, key string, results []retrieve.Result) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("resultcache: encode: %w", err)
	}
	return c.backend.Set(ctx, key, raw, c.ttl)
}
