package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// defaultMarketTTL bounds how long a resolved market is served from cache.
// Token IDs are immutable, but the active/accepting flags drift.
const defaultMarketTTL = 10 * time.Minute

// MarketCache implements domain.MarketCache. Markets are stored as JSON at
// key "market:{conditionID}" with a TTL.
type MarketCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMarketCache creates a MarketCache backed by the given Client. ttl <= 0
// selects the default.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = defaultMarketTTL
	}
	return &MarketCache{rdb: c.Underlying(), ttl: ttl}
}

func marketKey(conditionID string) string {
	return "market:" + conditionID
}

// Get returns the cached market or domain.ErrNotFound on a miss.
func (mc *MarketCache) Get(ctx context.Context, conditionID string) (domain.Market, error) {
	data, err := mc.rdb.Get(ctx, marketKey(conditionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Market{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("redis: get market %s: %w", conditionID, err)
	}

	var m domain.Market
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.Market{}, fmt.Errorf("redis: decode market %s: %w", conditionID, err)
	}
	return m, nil
}

// Set stores the market under its condition ID with the cache TTL.
func (mc *MarketCache) Set(ctx context.Context, market domain.Market) error {
	data, err := json.Marshal(market)
	if err != nil {
		return fmt.Errorf("redis: encode market %s: %w", market.ConditionID, err)
	}
	if err := mc.rdb.Set(ctx, marketKey(market.ConditionID), data, mc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set market %s: %w", market.ConditionID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
