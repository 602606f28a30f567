// Package cache is a short-TTL hint store in redis keyed by
// (logical key, subscription code). Loss of an entry never produces a
// wrong answer, only an extra Rater round trip.
package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/trunkgate/internal/config"
	"go.uber.org/fx"
)

// Logical key groups. Base-balance entries carry no TTL and are
// invalidated explicitly on every mutation.
const (
	KeyAccountSnapshot  = "account"
	KeyBasePostpaid     = "base_postpaid"
	KeyBasePrepaid      = "base_prepaid"
	KeyBranchMinRate    = "branch_min_rate"
	KeyBranchMaxRate    = "branch_max_rate"
	KeyRuntimeConfig    = "runtime_config"
)

type Cache struct {
	rdb        *redis.Client
	ttl        time.Duration
	accountTTL time.Duration
}

func New(cfg config.Config, rdb *redis.Client) *Cache {
	return &Cache{
		rdb:        rdb,
		ttl:        cfg.CacheTTL,
		accountTTL: cfg.CacheAccountTTL,
	}
}

func fingerprint(logical, subscriptionCode string) string {
	return "cache:" + logical + ":" + subscriptionCode
}

func (c *Cache) Get(ctx context.Context, logical, subscriptionCode string) (string, bool) {
	v, err := c.rdb.Get(ctx, fingerprint(logical, subscriptionCode)).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

func (c *Cache) GetInt64(ctx context.Context, logical, subscriptionCode string) (int64, bool) {
	v, ok := c.Get(ctx, logical, subscriptionCode)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Set writes an entry. ttl == 0 stores without expiry.
func (c *Cache) Set(ctx context.Context, logical, subscriptionCode, value string, ttl time.Duration) {
	_ = c.rdb.Set(ctx, fingerprint(logical, subscriptionCode), value, ttl).Err()
}

func (c *Cache) SetInt64(ctx context.Context, logical, subscriptionCode string, value int64, ttl time.Duration) {
	c.Set(ctx, logical, subscriptionCode, strconv.FormatInt(value, 10), ttl)
}

func (c *Cache) Delete(ctx context.Context, logical, subscriptionCode string) {
	_ = c.rdb.Del(ctx, fingerprint(logical, subscriptionCode)).Err()
}

// DeleteSubscriptionRelated invalidates every entry for a subscription,
// whatever the logical key. Called after each balance mutation.
func (c *Cache) DeleteSubscriptionRelated(ctx context.Context, subscriptionCode string) error {
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, "cache:*:"+subscriptionCode, 100).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (c *Cache) TTL() time.Duration        { return c.ttl }
func (c *Cache) AccountTTL() time.Duration { return c.accountTTL }

var Module = fx.Module("cache",
	fx.Provide(New),
)
