package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
	"github.com/custodia-labs/flight-catalog/internal/core/ports/driven"
)

// MockEventBus is an in-memory implementation of EventPublisher and EventSubscriber.
// Published records on the subscribed topic become receivable; every record
// published on any topic is kept for assertions.
type MockEventBus struct {
	mu        sync.Mutex
	topic     string
	published map[string][]*domain.Message
	ready     []*domain.Message
	pending   map[string]*domain.Message
	acked     []string
	nacked    []string
	closed    bool

	// Custom behavior hooks (optional)
	PublishFn func(topic, key string) error
}

// NewMockEventBus creates a bus whose subscriber reads topic
func NewMockEventBus(topic string) *MockEventBus {
	return &MockEventBus{
		topic:     topic,
		published: make(map[string][]*domain.Message),
		pending:   make(map[string]*domain.Message),
	}
}

func (m *MockEventBus) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if m.PublishFn != nil {
		if err := m.PublishFn(topic, key); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.append(&domain.Message{Topic: topic, Key: key, Payload: payload})
	return nil
}

func (m *MockEventBus) PublishBatch(ctx context.Context, topic string, msgs []*domain.Message) error {
	for _, msg := range msgs {
		if err := m.Publish(ctx, topic, msg.Key, msg.Payload); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockEventBus) append(msg *domain.Message) {
	msg.ID = uuid.New().String()
	m.published[msg.Topic] = append(m.published[msg.Topic], msg)
	if msg.Topic == m.topic {
		m.ready = append(m.ready, msg)
	}
}

func (m *MockEventBus) Receive(ctx context.Context, timeoutSeconds int) (*domain.Message, error) {
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	for {
		m.mu.Lock()
		if len(m.ready) > 0 {
			msg := m.ready[0]
			m.ready = m.ready[1:]
			msg.Attempts++
			m.pending[msg.ID] = msg
			m.mu.Unlock()
			return msg, nil
		}
		m.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, nil
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (m *MockEventBus) Ack(ctx context.Context, msg *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, msg.ID)
	m.acked = append(m.acked, msg.ID)
	return nil
}

func (m *MockEventBus) Nack(ctx context.Context, msg *domain.Message, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, msg.ID)
	m.nacked = append(m.nacked, msg.ID)
	m.ready = append(m.ready, msg)
	return nil
}

func (m *MockEventBus) Stats(ctx context.Context) (*driven.BusStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &driven.BusStats{
		Topic:        m.topic,
		Length:       int64(len(m.published[m.topic])),
		PendingCount: int64(len(m.pending)),
	}, nil
}

func (m *MockEventBus) Ping(ctx context.Context) error {
	return nil
}

func (m *MockEventBus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Published returns records published on topic (for test assertions)
func (m *MockEventBus) Published(topic string) []*domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Message, len(m.published[topic]))
	copy(out, m.published[topic])
	return out
}

// AckedCount returns how many records were acknowledged
func (m *MockEventBus) AckedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.acked)
}

// NackedCount returns how many records were returned for redelivery
func (m *MockEventBus) NackedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nacked)
}
