package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-identity-go/pkg/utilities"
)

// KafkaBus publishes every event to one topic keyed by channel. Each
// process consumes the topic under its own group and fans events out to
// its local subscribers.
type KafkaBus struct {
	logger *zap.SugaredLogger
	writer *kafka.Writer
	reader *kafka.Reader
	local  *MemoryBus
}

func NewKafkaBus(logger *zap.SugaredLogger, cfg Config) (*KafkaBus, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("kafka bus requires at least one broker")
	}
	group := cfg.KafkaGroup
	if group == "" {
		// one group per process: every replica must see every event
		group = "identity-bus-" + utilities.NewKSUID()
	}
	lg := logger.With("component", "kafka_bus", "topic", cfg.KafkaTopic, "group", group)
	return &KafkaBus{
		logger: lg,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.KafkaBrokers...),
			Topic:        cfg.KafkaTopic,
			RequiredAcks: kafka.RequireOne,
			Balancer:     &kafka.Hash{},
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.KafkaBrokers,
			GroupID:     group,
			Topic:       cfg.KafkaTopic,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     500 * time.Millisecond,
			StartOffset: kafka.LastOffset,
		}),
		local: NewMemoryBus(lg, cfg.Buffer),
	}, nil
}

func (b *KafkaBus) Publish(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.Channel), Value: raw})
}

func (b *KafkaBus) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	return b.local.Subscribe(ctx, channel)
}

// Run consumes the topic until ctx is done.
func (b *KafkaBus) Run(ctx context.Context) error {
	for {
		msg, err := b.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("kafka read: %w", err)
		}
		var ev Event
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			b.logger.Warnw("bad kafka bus payload", "offset", msg.Offset, "err", err)
			continue
		}
		_ = b.local.Publish(ctx, ev)
	}
}

func (b *KafkaBus) Close() error {
	return errors.Join(b.local.Close(), b.reader.Close(), b.writer.Close())
}
