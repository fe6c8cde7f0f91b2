package driven

import (
	"context"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
)

// EventPublisher writes records to an ordered, at-least-once topic.
// Implementations can use Redis Streams (preferred) or Postgres (fallback).
type EventPublisher interface {
	// Publish appends one record keyed by entity id
	Publish(ctx context.Context, topic, key string, payload []byte) error

	// PublishBatch appends several records to one topic.
	// Records are written in order; the batch is not atomic.
	PublishBatch(ctx context.Context, topic string, msgs []*domain.Message) error
}

// EventSubscriber reads records from a topic through a shared consumer group.
// Every worker of the group pulls from the same logical subscription; each
// record is delivered to one worker at a time.
type EventSubscriber interface {
	// Receive returns the next record, waiting up to timeoutSeconds.
	// Returns nil, nil when nothing arrived in time or ctx was cancelled.
	Receive(ctx context.Context, timeoutSeconds int) (*domain.Message, error)

	// Ack marks a record as handled; it will not be redelivered
	Ack(ctx context.Context, msg *domain.Message) error

	// Nack returns a record for redelivery after a handling failure
	Nack(ctx context.Context, msg *domain.Message, reason string) error

	// Stats returns subscription statistics
	Stats(ctx context.Context) (*BusStats, error)

	// Ping checks if the bus backend is healthy
	Ping(ctx context.Context) error

	// Close cleans up resources
	Close() error
}

// BusStats contains subscription statistics
type BusStats struct {
	// Topic is the subscribed topic
	Topic string `json:"topic"`

	// Length is the number of records retained on the topic
	Length int64 `json:"length"`

	// PendingCount is the number of delivered but unacknowledged records
	PendingCount int64 `json:"pending_count"`

	// DeadCount is the number of records dropped after exhausting redeliveries
	DeadCount int64 `json:"dead_count"`
}
