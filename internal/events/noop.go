package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// NoopPublisher is a Publisher that does nothing (used when NATS is not configured).
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, topic string, event any) error {
	return nil
}

func (n *NoopPublisher) Close() error {
	return nil
}

// Published is one event captured by a MemoryPublisher.
type Published struct {
	Topic string
	Data  []byte
}

// MemoryPublisher keeps JSON-encoded events in memory. Useful for embedding
// the server in tests and single-process setups.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Published
}

func (m *MemoryPublisher) Publish(_ context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	m.mu.Lock()
	m.events = append(m.events, Published{Topic: topic, Data: data})
	m.mu.Unlock()
	return nil
}

// Events returns a copy of everything published so far.
func (m *MemoryPublisher) Events() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Published, len(m.events))
	copy(out, m.events)
	return out
}

func (m *MemoryPublisher) Close() error {
	return nil
}
