package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
	"github.com/custodia-labs/flight-catalog/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.EventPublisher  = (*EventBus)(nil)
	_ driven.EventSubscriber = (*EventBus)(nil)
)

// Bus event statuses
const (
	eventStatusPending    = "pending"
	eventStatusProcessing = "processing"
	eventStatusDead       = "dead"
)

// EventBusConfig holds Postgres bus settings.
type EventBusConfig struct {
	// Topic is the topic this bus consumes. Empty for publish-only use.
	Topic string

	// ClaimTimeout is how long a received event may stay unacknowledged
	// before it becomes receivable again
	ClaimTimeout time.Duration

	// MaxDeliveries is how many times an event is delivered before it is marked dead
	MaxDeliveries int

	// PollInterval is how often Receive re-checks an empty topic while waiting
	PollInterval time.Duration

	// Retention is how long rows of other topics and dead rows are kept.
	// Nothing in this process consumes flight-events from Postgres, so
	// without it those rows accumulate. Zero disables purging.
	Retention time.Duration

	// PurgeInterval spaces the purges that publishing triggers
	PurgeInterval time.Duration

	Logger *slog.Logger
}

// DefaultEventBusConfig returns settings for the booking-events consumer.
func DefaultEventBusConfig() EventBusConfig {
	return EventBusConfig{
		Topic:         domain.TopicBookingEvents,
		ClaimTimeout:  5 * time.Minute,
		MaxDeliveries: 5,
		PollInterval:  500 * time.Millisecond,
		Retention:     24 * time.Hour,
		PurgeInterval: 10 * time.Minute,
	}
}

// EventBus implements EventPublisher and EventSubscriber on the bus_events table,
// using SELECT FOR UPDATE SKIP LOCKED so each event goes to one worker at a time.
// This is the fallback bus when Redis is not available.
type EventBus struct {
	db     *DB
	cfg    EventBusConfig
	now    func() time.Time
	logger *slog.Logger

	// unix nanos of the last purge
	lastPurge atomic.Int64
}

// NewEventBus creates a PostgreSQL-backed event bus.
// Assumes the bus_events table exists (see InitSchema).
func NewEventBus(db *DB, cfg EventBusConfig) *EventBus {
	if cfg.ClaimTimeout <= 0 {
		cfg.ClaimTimeout = 5 * time.Minute
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = 10 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &EventBus{db: db, cfg: cfg, now: time.Now, logger: logger}
	b.lastPurge.Store(time.Now().UnixNano())
	return b
}

const insertEventSQL = `
	INSERT INTO bus_events (topic, event_key, payload, status, attempts, created_at, updated_at, scheduled_for)
	VALUES ($1, $2, $3, $4, 0, $5, $5, $5)
`

// Publish inserts one event
func (b *EventBus) Publish(ctx context.Context, topic, key string, payload []byte) error {
	_, err := b.db.ExecContext(ctx, insertEventSQL, topic, key, payload, eventStatusPending, b.now())
	if err != nil {
		return storeError("publish to "+topic, err)
	}
	b.maybePurge(ctx)
	return nil
}

// PublishBatch inserts events atomically
func (b *EventBus) PublishBatch(ctx context.Context, topic string, msgs []*domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	now := b.now()
	err := b.db.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertEventSQL)
		if err != nil {
			return fmt.Errorf("prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, msg := range msgs {
			if msg == nil {
				continue
			}
			if _, err := stmt.ExecContext(ctx, topic, msg.Key, msg.Payload, eventStatusPending, now); err != nil {
				return fmt.Errorf("insert event %s: %w", msg.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return storeError("publish batch to "+topic, err)
	}
	b.maybePurge(ctx)
	return nil
}

const purgeEventsSQL = `
	DELETE FROM bus_events
	WHERE created_at < $1 AND (topic <> $2 OR status = $3)
`

// Purge deletes rows older than Retention that no consumer of this bus will
// read: rows of other topics and dead rows of the consumed topic.
// Pending and in-flight rows of the consumed topic are never touched.
func (b *EventBus) Purge(ctx context.Context) (int64, error) {
	if b.cfg.Retention <= 0 {
		return 0, nil
	}
	cutoff := b.now().Add(-b.cfg.Retention)
	res, err := b.db.ExecContext(ctx, purgeEventsSQL, cutoff, b.cfg.Topic, eventStatusDead)
	if err != nil {
		return 0, storeError("purge events", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeError("purge events", err)
	}
	return n, nil
}

// maybePurge runs Purge at most once per PurgeInterval across all publishers
// sharing this bus. A failed purge is logged and retried after the next interval.
func (b *EventBus) maybePurge(ctx context.Context) {
	if b.cfg.Retention <= 0 {
		return
	}
	now := b.now().UnixNano()
	last := b.lastPurge.Load()
	if now-last < b.cfg.PurgeInterval.Nanoseconds() || !b.lastPurge.CompareAndSwap(last, now) {
		return
	}

	n, err := b.Purge(ctx)
	if err != nil {
		b.logger.Warn("bus event purge failed", "error", err)
		return
	}
	if n > 0 {
		b.logger.Info("purged bus events", "rows", n, "retention", b.cfg.Retention)
	}
}

// Receive returns the next event, polling up to timeoutSeconds while the topic is empty.
// Events whose claim expired are receivable again. Returns nil, nil on timeout or cancel.
func (b *EventBus) Receive(ctx context.Context, timeoutSeconds int) (*domain.Message, error) {
	if b.cfg.Topic == "" {
		return nil, errors.New("event bus has no subscribed topic")
	}

	deadline := b.now().Add(time.Duration(timeoutSeconds) * time.Second)
	for {
		msg, err := b.receiveOne(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil
			}
			return nil, err
		}
		if msg != nil {
			return msg, nil
		}

		if !b.now().Before(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, nil
		case <-time.After(b.cfg.PollInterval):
		}
	}
}

func (b *EventBus) receiveOne(ctx context.Context) (*domain.Message, error) {
	var msg *domain.Message

	err := b.db.inTx(ctx, func(tx *sql.Tx) error {
		now := b.now()

		var id int64
		var key string
		var payload []byte
		var attempts int

		err := tx.QueryRowContext(ctx, `
			SELECT id, event_key, payload, attempts
			FROM bus_events
			WHERE topic = $1
			  AND ((status = $2 AND scheduled_for <= $4)
			    OR (status = $3 AND locked_until <= $4))
			ORDER BY id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`, b.cfg.Topic, eventStatusPending, eventStatusProcessing, now).Scan(&id, &key, &payload, &attempts)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("select event: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE bus_events
			SET status = $1, attempts = attempts + 1, locked_until = $2, updated_at = $3
			WHERE id = $4
		`, eventStatusProcessing, now.Add(b.cfg.ClaimTimeout), now, id)
		if err != nil {
			return fmt.Errorf("claim event: %w", err)
		}

		msg = &domain.Message{
			ID:       strconv.FormatInt(id, 10),
			Topic:    b.cfg.Topic,
			Key:      key,
			Payload:  payload,
			Attempts: attempts + 1,
		}
		return nil
	})
	if err != nil {
		return nil, storeError("receive from "+b.cfg.Topic, err)
	}
	return msg, nil
}

// Ack removes a handled event
func (b *EventBus) Ack(ctx context.Context, msg *domain.Message) error {
	result, err := b.db.ExecContext(ctx, `DELETE FROM bus_events WHERE id = $1`, msg.ID)
	if err != nil {
		return storeError("ack "+msg.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Nack schedules a failed event for redelivery with exponential backoff,
// or marks it dead once MaxDeliveries is reached.
func (b *EventBus) Nack(ctx context.Context, msg *domain.Message, reason string) error {
	now := b.now()

	var err error
	if msg.Attempts >= b.cfg.MaxDeliveries {
		_, err = b.db.ExecContext(ctx, `
			UPDATE bus_events
			SET status = $1, error = $2, updated_at = $3, locked_until = NULL
			WHERE id = $4
		`, eventStatusDead, reason, now, msg.ID)
	} else {
		_, err = b.db.ExecContext(ctx, `
			UPDATE bus_events
			SET status = $1, error = $2, updated_at = $3, scheduled_for = $4, locked_until = NULL
			WHERE id = $5
		`, eventStatusPending, reason, now, now.Add(retryBackoff(msg.Attempts)), msg.ID)
	}
	if err != nil {
		return storeError("nack "+msg.ID, err)
	}
	return nil
}

// retryBackoff doubles per attempt, capped at five minutes
func retryBackoff(attempts int) time.Duration {
	if attempts > 8 {
		return 5 * time.Minute
	}
	backoff := time.Duration(1<<attempts) * time.Second
	if backoff > 5*time.Minute {
		backoff = 5 * time.Minute
	}
	return backoff
}

// Stats returns counts for the subscribed topic
func (b *EventBus) Stats(ctx context.Context) (*driven.BusStats, error) {
	stats := &driven.BusStats{Topic: b.cfg.Topic}

	rows, err := b.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM bus_events WHERE topic = $1 GROUP BY status
	`, b.cfg.Topic)
	if err != nil {
		return nil, storeError("query stats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}

		switch status {
		case eventStatusPending:
			stats.Length += count
		case eventStatusProcessing:
			stats.Length += count
			stats.PendingCount = count
		case eventStatusDead:
			stats.DeadCount = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}

	return stats, nil
}

// Ping checks database connectivity
func (b *EventBus) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Close is a no-op (db connection managed externally)
func (b *EventBus) Close() error {
	return nil
}
