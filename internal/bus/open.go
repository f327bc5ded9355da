package bus

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Open builds the bus selected by cfg.Driver. The returned run function
// must be started for drivers that consume in the background; it is a
// no-op for the others.
func Open(ctx context.Context, logger *zap.SugaredLogger, cfg Config) (Bus, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryBus(logger, cfg.Buffer), noop, nil
	case "redis":
		rdb, err := ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return NewRedisBus(logger, rdb, cfg.Buffer), noop, nil
	case "kafka":
		kb, err := NewKafkaBus(logger, cfg)
		if err != nil {
			return nil, nil, err
		}
		return kb, kb.Run, nil
	}
	return nil, nil, fmt.Errorf("unknown bus driver %q", cfg.Driver)
}

// ConnectRedis initializes a Redis client from URL or host:port input and pings it.
func ConnectRedis(ctx context.Context, redisURL string) (*goredis.Client, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("missing REDIS_URL")
	}
	var rdb *goredis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := goredis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb = goredis.NewClient(opt)
	} else {
		rdb = goredis.NewClient(&goredis.Options{Addr: redisURL})
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
