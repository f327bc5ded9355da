package bus

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisChannelPrefix = "identity:"

// RedisBus maps every bus channel onto a Redis pub/sub channel, so
// sessions connected to different replicas see the same events.
type RedisBus struct {
	logger *zap.SugaredLogger
	rdb    *goredis.Client
	buffer int
}

func NewRedisBus(logger *zap.SugaredLogger, rdb *goredis.Client, buffer int) *RedisBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &RedisBus{logger: logger.With("component", "redis_bus"), rdb: rdb, buffer: buffer}
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, redisChannelPrefix+ev.Channel, raw).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	ps := b.rdb.Subscribe(ctx, redisChannelPrefix+channel)
	// ensures subscription actually started
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	sub := newSubscription(channel, b.buffer, func() { _ = ps.Close() })
	sub.cancelWith(ctx)

	go func() {
		defer close(sub.events)
		in := ps.Channel()
		for {
			select {
			case <-sub.done:
				return
			case m, ok := <-in:
				if !ok || m == nil {
					sub.Cancel()
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.logger.Warnw("bad redis bus payload", "channel", channel, "err", err)
					continue
				}
				select {
				case sub.events <- ev:
				case <-sub.done:
					return
				default:
					b.logger.Warnw("bus subscriber lagging, event dropped", "channel", channel, "event", ev.Name, "event_id", ev.ID)
				}
			}
		}
	}()
	return sub, nil
}

// Close closes the underlying client; open subscriptions end with it.
func (b *RedisBus) Close() error {
	return b.rdb.Close()
}
