package cache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
)

const keyPrefix = "identity:display:"

type Config struct {
	TTL time.Duration
}

// ConfigFromEnv reads DISPLAY_CACHE_TTL (default 10m).
func ConfigFromEnv() Config {
	ttl := 10 * time.Minute
	if v, err := time.ParseDuration(os.Getenv("DISPLAY_CACHE_TTL")); err == nil && v > 0 {
		ttl = v
	}
	return Config{TTL: ttl}
}

// DisplayCache keeps projected display info per account in Redis. Entries
// expire after the TTL, which bounds how stale a cached snapshot can get.
type DisplayCache struct {
	rdb *goredis.Client
	ttl time.Duration
}

func NewDisplayCache(rdb *goredis.Client, cfg Config) *DisplayCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	return &DisplayCache{rdb: rdb, ttl: cfg.TTL}
}

// Get returns the cached entry; ok is false on a miss.
func (c *DisplayCache) Get(ctx context.Context, accountID string) (entity.DisplayInfo, bool, error) {
	raw, err := c.rdb.Get(ctx, keyPrefix+accountID).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return entity.DisplayInfo{}, false, nil
		}
		return entity.DisplayInfo{}, false, err
	}
	var d entity.DisplayInfo
	if err := json.Unmarshal(raw, &d); err != nil {
		// treat garbage as a miss; the next Set overwrites it
		return entity.DisplayInfo{}, false, nil
	}
	return d, true, nil
}

func (c *DisplayCache) Set(ctx context.Context, accountID string, d entity.DisplayInfo) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, keyPrefix+accountID, raw, c.ttl).Err()
}

func (c *DisplayCache) Invalidate(ctx context.Context, accountIDs ...string) error {
	if len(accountIDs) == 0 {
		return nil
	}
	keys := make([]string, len(accountIDs))
	for i, id := range accountIDs {
		keys[i] = keyPrefix + id
	}
	return c.rdb.Del(ctx, keys...).Err()
}
