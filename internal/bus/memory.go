package bus

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// MemoryBus fans events out inside one process. A subscriber whose buffer
// is full misses the event rather than blocking the publisher.
type MemoryBus struct {
	logger *zap.SugaredLogger
	buffer int

	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

func NewMemoryBus(logger *zap.SugaredLogger, buffer int) *MemoryBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryBus{logger: logger, buffer: buffer, subs: map[string]map[*Subscription]struct{}{}}
}

func (b *MemoryBus) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for sub := range b.subs[ev.Channel] {
		select {
		case sub.events <- ev.clone():
		default:
			b.logger.Warnw("bus subscriber lagging, event dropped", "channel", ev.Channel, "event", ev.Name, "event_id", ev.ID)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	var sub *Subscription
	sub = newSubscription(channel, b.buffer, func() { b.remove(sub) })
	if b.subs[channel] == nil {
		b.subs[channel] = map[*Subscription]struct{}{}
	}
	b.subs[channel][sub] = struct{}{}
	sub.cancelWith(ctx)
	return sub, nil
}

func (b *MemoryBus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[sub.Channel]
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, sub.Channel)
	}
	close(sub.events)
}

// Close ends every subscription.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*Subscription
	for _, set := range b.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	b.mu.Unlock()
	for _, sub := range all {
		sub.Cancel()
	}
	return nil
}
