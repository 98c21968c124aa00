package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache lifetimes. Recommendations for unchanged inputs are valid until new
// filings arrive; the cooldown additionally throttles regeneration per ticker.
const (
	recommendationTTL = 6 * time.Hour
	cooldownTTL       = 15 * time.Minute
)

// RecommendationCache caches narrator output keyed by ticker and a hash of
// the prompt payload, so unchanged signals never re-invoke the LLM.
type RecommendationCache struct {
	redis *RedisClient
}

// NewRecommendationCache creates a recommendation cache. A nil redis client
// yields a cache that always misses.
func NewRecommendationCache(redis *RedisClient) *RecommendationCache {
	return &RecommendationCache{redis: redis}
}

// Get retrieves a cached recommendation for a ticker and payload hash.
func (c *RecommendationCache) Get(ctx context.Context, ticker, dataHash string) (string, bool) {
	if c == nil || c.redis == nil {
		return "", false
	}

	key := fmt.Sprintf("insider:rec:%s:%s", ticker, dataHash)
	var rec string
	if err := c.redis.Get(ctx, key, &rec); err != nil {
		return "", false
	}
	return rec, true
}

// Set caches a recommendation and starts the ticker's cooldown.
func (c *RecommendationCache) Set(ctx context.Context, ticker, dataHash, recommendation string) {
	if c == nil || c.redis == nil {
		return
	}

	key := fmt.Sprintf("insider:rec:%s:%s", ticker, dataHash)
	if err := c.redis.Set(ctx, key, recommendation, recommendationTTL); err != nil {
		return
	}
	cooldownKey := fmt.Sprintf("insider:rec:cooldown:%s", ticker)
	_ = c.redis.Set(ctx, cooldownKey, time.Now().Unix(), cooldownTTL)
}

// InCooldown reports whether a ticker's recommendation was regenerated
// recently.
func (c *RecommendationCache) InCooldown(ctx context.Context, ticker string) bool {
	if c == nil || c.redis == nil {
		return false
	}
	return c.redis.Exists(ctx, fmt.Sprintf("insider:rec:cooldown:%s", ticker))
}
