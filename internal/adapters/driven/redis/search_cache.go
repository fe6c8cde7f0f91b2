package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
	"github.com/custodia-labs/flight-catalog/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SearchCache = (*SearchCache)(nil)

const searchCachePrefix = "catalog:search:"

// DefaultSearchCacheTTL keeps pages short-lived so booking updates show up quickly
const DefaultSearchCacheTTL = 30 * time.Second

// SearchCache caches flight pages in Redis, keyed by a hash of the query.
type SearchCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewSearchCache creates a Redis-backed search cache.
func NewSearchCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *SearchCache {
	if ttl <= 0 {
		ttl = DefaultSearchCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchCache{client: client, ttl: ttl, logger: logger}
}

// Get returns a cached page. Any miss, expiry, or decode failure reports false.
func (c *SearchCache) Get(ctx context.Context, query *domain.Query) (*domain.FlightPage, bool) {
	data, err := c.client.Get(ctx, cacheKey(query)).Bytes()
	if err != nil {
		return nil, false
	}

	var page domain.FlightPage
	if err := json.Unmarshal(data, &page); err != nil {
		c.logger.Warn("discarding undecodable cached page", "error", err)
		return nil, false
	}
	return &page, true
}

// Set stores a page for the cache TTL.
func (c *SearchCache) Set(ctx context.Context, query *domain.Query, page *domain.FlightPage) error {
	data, err := json.Marshal(page)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(query), data, c.ttl).Err()
}

func cacheKey(query *domain.Query) string {
	data, _ := json.Marshal(query)
	hash := sha256.Sum256(data)
	return searchCachePrefix + hex.EncodeToString(hash[:])
}
