// Package bus fans account and content change notifications out to
// interested sessions. Delivery is best effort and at least once; payloads
// are hints, subscribers refetch authoritative state.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-identity-go/pkg/utilities"
)

var ErrClosed = errors.New("bus closed")

type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event is a single change notification. Treat it as immutable.
type Event struct {
	ID         string          `json:"id"`
	Channel    string          `json:"channel"`
	Name       string          `json:"name"`
	Type       EventType       `json:"type"`
	Table      string          `json:"table"`
	Record     json.RawMessage `json:"record,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewEvent builds an event for channel with record marshalled as the payload.
func NewEvent(channel, name string, typ EventType, table string, record any) (Event, error) {
	ev := Event{
		ID:         utilities.NewKSUID(),
		Channel:    channel,
		Name:       name,
		Type:       typ,
		Table:      table,
		OccurredAt: time.Now().UTC(),
	}
	if record != nil {
		raw, err := json.Marshal(record)
		if err != nil {
			return Event{}, fmt.Errorf("marshal %s record: %w", name, err)
		}
		ev.Record = raw
	}
	return ev, nil
}

func (e Event) clone() Event {
	if e.Record != nil {
		e.Record = append(json.RawMessage(nil), e.Record...)
	}
	return e
}

// TableChannel names the stream of changes to rows of table whose column
// equals value, e.g. "accounts:owner_user_id=42".
func TableChannel(table, column, value string) string {
	return table + ":" + column + "=" + value
}

// UserChannel carries account changes for everything a user owns.
func UserChannel(userID string) string {
	return TableChannel("accounts", "owner_user_id", userID)
}

// AccountContentChannel carries content created under an account.
func AccountContentChannel(accountID string) string {
	return TableChannel("content_items", "account_id", accountID)
}

// Bus is a publish/subscribe channel primitive.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, channel string) (*Subscription, error)
	Close() error
}

// Subscription is a cancellable handle on one channel. Events is closed
// once the subscription ends; Cancel may be called any number of times.
type Subscription struct {
	Channel string

	events   chan Event
	done     chan struct{}
	once     sync.Once
	onCancel func()
}

func newSubscription(channel string, buffer int, onCancel func()) *Subscription {
	return &Subscription{
		Channel:  channel,
		events:   make(chan Event, buffer),
		done:     make(chan struct{}),
		onCancel: onCancel,
	}
}

func (s *Subscription) Events() <-chan Event { return s.events }

func (s *Subscription) Cancel() {
	s.once.Do(func() {
		close(s.done)
		if s.onCancel != nil {
			s.onCancel()
		}
	})
}

// cancelWith ends the subscription when ctx is done.
func (s *Subscription) cancelWith(ctx context.Context) {
	done := ctx.Done()
	if done == nil {
		return
	}
	go func() {
		select {
		case <-done:
			s.Cancel()
		case <-s.done:
		}
	}()
}

type Config struct {
	Driver       string
	RedisURL     string
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string
	Buffer       int
}

// ConfigFromEnv reads BUS_* settings. The memory driver is the default.
func ConfigFromEnv() Config {
	cfg := Config{
		Driver:     strings.ToLower(strings.TrimSpace(os.Getenv("BUS_DRIVER"))),
		RedisURL:   os.Getenv("REDIS_URL"),
		KafkaTopic: os.Getenv("KAFKA_TOPIC"),
		KafkaGroup: os.Getenv("KAFKA_GROUP"),
		Buffer:     64,
	}
	if cfg.Driver == "" {
		cfg.Driver = "memory"
	}
	if b := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); b != "" {
		for _, p := range strings.Split(b, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, p)
			}
		}
	}
	if cfg.KafkaTopic == "" {
		cfg.KafkaTopic = "identity-events"
	}
	return cfg
}
