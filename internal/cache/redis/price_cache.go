package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rovshanmuradov/sentinel-bot/internal/market"
)

// DefaultPriceTTL bounds how long a last-known-good price survives in Redis.
const DefaultPriceTTL = 24 * time.Hour

// PriceCache implements market.Cache with one hash per asset at
// "{prefix}:price:{mint}" holding fields "price" and "ts" (Unix nanoseconds).
type PriceCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	if ttl <= 0 {
		ttl = DefaultPriceTTL
	}
	return &PriceCache{rdb: c.rdb, prefix: c.prefix, ttl: ttl}
}

func (pc *PriceCache) key(mint string) string {
	return pc.prefix + ":price:" + mint
}

// setNewer writes only when the stored timestamp is older, so concurrent
// writers never roll a price back.
var setNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'ts')
if cur and tonumber(cur) > tonumber(ARGV[2]) then
  return 0
end
redis.call('HSET', KEYS[1], 'price', ARGV[1], 'ts', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

func (pc *PriceCache) SetPrice(ctx context.Context, mint string, price float64, ts time.Time) error {
	err := setNewer.Run(ctx, pc.rdb, []string{pc.key(mint)},
		strconv.FormatFloat(price, 'f', -1, 64),
		strconv.FormatInt(ts.UnixNano(), 10),
		pc.ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("redis: set price %s: %w", mint, err)
	}
	return nil
}

func (pc *PriceCache) GetPrice(ctx context.Context, mint string) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, pc.key(mint)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", mint, err)
	}
	priceStr, okPrice := vals["price"]
	tsStr, okTS := vals["ts"]
	if !okPrice || !okTS {
		return 0, time.Time{}, market.ErrCacheMiss
	}

	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s: %w", mint, err)
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", mint, err)
	}
	return price, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ market.Cache = (*PriceCache)(nil)
