package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
	"github.com/custodia-labs/flight-catalog/internal/core/ports/driven"
)

const (
	// Key prefixes
	streamPrefix = "catalog:stream:"
	deadPrefix   = "catalog:dead:"

	// Stream entry fields
	fieldKey      = "key"
	fieldPayload  = "payload"
	fieldAttempts = "attempts"

	// Default consumer name prefix
	consumerPrefix = "consumer-"
)

// Verify interface compliance
var (
	_ driven.EventPublisher  = (*EventBus)(nil)
	_ driven.EventSubscriber = (*EventBus)(nil)
)

// EventBusConfig holds Redis Streams bus settings.
type EventBusConfig struct {
	// Topic is the stream this bus consumes. Empty for publish-only use.
	Topic string

	// Group is the consumer group shared by every worker of the service
	Group string

	// Consumer should be unique per worker instance (e.g., hostname + PID)
	Consumer string

	// ClaimTimeout is how long a delivered record may stay unacknowledged
	// before another consumer claims it
	ClaimTimeout time.Duration

	// MaxDeliveries is how many times a record is delivered before it is
	// moved to the dead stream
	MaxDeliveries int

	// MaxLen caps each stream's length (approximate trimming)
	MaxLen int64
}

// DefaultEventBusConfig returns settings for the booking-events consumer.
func DefaultEventBusConfig() EventBusConfig {
	return EventBusConfig{
		Topic:         domain.TopicBookingEvents,
		Group:         "product-service",
		ClaimTimeout:  5 * time.Minute,
		MaxDeliveries: 5,
		MaxLen:        100000,
	}
}

// EventBus implements EventPublisher and EventSubscriber using Redis Streams.
// Each topic is a stream; consumers of one service share a consumer group so
// every record is handled by one worker at a time.
type EventBus struct {
	client *redis.Client
	cfg    EventBusConfig
}

// NewEventBus creates a Redis Streams bus and, when a topic is set, its consumer group.
func NewEventBus(ctx context.Context, client *redis.Client, cfg EventBusConfig) (*EventBus, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.Consumer == "" {
		cfg.Consumer = consumerPrefix + uuid.NewString()
	}
	if cfg.ClaimTimeout <= 0 {
		cfg.ClaimTimeout = 5 * time.Minute
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = 5
	}

	b := &EventBus{client: client, cfg: cfg}

	if cfg.Topic != "" {
		if cfg.Group == "" {
			return nil, errors.New("consumer group is required")
		}
		err := client.XGroupCreateMkStream(ctx, streamKey(cfg.Topic), cfg.Group, "0").Err()
		if err != nil && !isGroupExistsError(err) {
			return nil, fmt.Errorf("failed to create consumer group: %w", err)
		}
	}

	return b, nil
}

func streamKey(topic string) string { return streamPrefix + topic }

func deadKey(topic string) string { return deadPrefix + topic }

// Publish appends one record to the topic's stream.
func (b *EventBus) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if err := b.client.XAdd(ctx, b.addArgs(topic, key, payload, 0)).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w: %v", topic, domain.ErrServiceUnavailable, err)
	}
	return nil
}

// PublishBatch appends records in one pipeline.
func (b *EventBus) PublishBatch(ctx context.Context, topic string, msgs []*domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	pipe := b.client.Pipeline()
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		pipe.XAdd(ctx, b.addArgs(topic, msg.Key, msg.Payload, 0))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish batch to %s: %w: %v", topic, domain.ErrServiceUnavailable, err)
	}
	return nil
}

func (b *EventBus) addArgs(topic, key string, payload []byte, attempts int) *redis.XAddArgs {
	args := &redis.XAddArgs{
		Stream: streamKey(topic),
		Values: map[string]interface{}{
			fieldKey:      key,
			fieldPayload:  string(payload),
			fieldAttempts: attempts,
		},
	}
	if b.cfg.MaxLen > 0 {
		args.MaxLen = b.cfg.MaxLen
		args.Approx = true
	}
	return args
}

// Receive returns the next record for this consumer, waiting up to timeoutSeconds.
// Records abandoned by crashed consumers are claimed before new ones are read.
func (b *EventBus) Receive(ctx context.Context, timeoutSeconds int) (*domain.Message, error) {
	if b.cfg.Topic == "" {
		return nil, errors.New("event bus has no subscribed topic")
	}

	if msg, err := b.claimAbandoned(ctx); err == nil && msg != nil {
		return msg, nil
	}

	blockDuration := time.Duration(timeoutSeconds) * time.Second
	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.cfg.Group,
		Consumer: b.cfg.Consumer,
		Streams:  []string{streamKey(b.cfg.Topic), ">"},
		Count:    1,
		Block:    blockDuration,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("read from stream: %w: %v", domain.ErrServiceUnavailable, err)
	}

	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}
	return b.toMessage(streams[0].Messages[0]), nil
}

// Ack acknowledges a record; it stays in the stream until trimmed.
func (b *EventBus) Ack(ctx context.Context, msg *domain.Message) error {
	if err := b.client.XAck(ctx, streamKey(b.cfg.Topic), b.cfg.Group, msg.ID).Err(); err != nil {
		return fmt.Errorf("ack %s: %w", msg.ID, err)
	}
	return nil
}

// Nack re-appends a failed record with its delivery count, or moves it to the
// dead stream once MaxDeliveries is reached. The original delivery is acknowledged.
func (b *EventBus) Nack(ctx context.Context, msg *domain.Message, reason string) error {
	pipe := b.client.TxPipeline()
	pipe.XAck(ctx, streamKey(b.cfg.Topic), b.cfg.Group, msg.ID)

	if msg.Attempts >= b.cfg.MaxDeliveries {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: deadKey(b.cfg.Topic),
			Values: map[string]interface{}{
				fieldKey:      msg.Key,
				fieldPayload:  string(msg.Payload),
				fieldAttempts: msg.Attempts,
				"reason":      reason,
			},
		})
	} else {
		pipe.XAdd(ctx, b.addArgs(b.cfg.Topic, msg.Key, msg.Payload, msg.Attempts))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("nack %s: %w", msg.ID, err)
	}
	return nil
}

// Stats returns stream statistics.
func (b *EventBus) Stats(ctx context.Context) (*driven.BusStats, error) {
	stats := &driven.BusStats{Topic: b.cfg.Topic}

	length, err := b.client.XLen(ctx, streamKey(b.cfg.Topic)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get stream length: %w", err)
	}
	stats.Length = length

	pending, err := b.client.XPending(ctx, streamKey(b.cfg.Topic), b.cfg.Group).Result()
	if err == nil {
		stats.PendingCount = pending.Count
	}

	dead, err := b.client.XLen(ctx, deadKey(b.cfg.Topic)).Result()
	if err == nil {
		stats.DeadCount = dead
	}

	return stats, nil
}

// Ping checks if the bus backend is healthy.
func (b *EventBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close cleans up resources.
func (b *EventBus) Close() error {
	// Redis client is shared, don't close it here
	return nil
}

// claimAbandoned claims a record another consumer left unacknowledged past ClaimTimeout.
func (b *EventBus) claimAbandoned(ctx context.Context) (*domain.Message, error) {
	pending, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: streamKey(b.cfg.Topic),
		Group:  b.cfg.Group,
		Start:  "-",
		End:    "+",
		Count:  10,
		Idle:   b.cfg.ClaimTimeout,
	}).Result()
	if err != nil {
		return nil, err
	}

	for _, p := range pending {
		claimed, err := b.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   streamKey(b.cfg.Topic),
			Group:    b.cfg.Group,
			Consumer: b.cfg.Consumer,
			MinIdle:  b.cfg.ClaimTimeout,
			Messages: []string{p.ID},
		}).Result()
		if err != nil || len(claimed) == 0 {
			continue
		}
		msg := b.toMessage(claimed[0])
		if delivered := int(p.RetryCount); delivered > msg.Attempts {
			msg.Attempts = delivered
		}
		return msg, nil
	}

	return nil, nil
}

func (b *EventBus) toMessage(entry redis.XMessage) *domain.Message {
	key, _ := entry.Values[fieldKey].(string)
	payload, _ := entry.Values[fieldPayload].(string)

	attempts := 0
	if raw, ok := entry.Values[fieldAttempts].(string); ok {
		attempts, _ = strconv.Atoi(raw)
	}

	return &domain.Message{
		ID:       entry.ID,
		Topic:    b.cfg.Topic,
		Key:      key,
		Payload:  []byte(payload),
		Attempts: attempts + 1,
	}
}

// Helper functions

func isGroupExistsError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
