package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// HeaderTopic carries the unscoped topic of a published event.
const HeaderTopic = "Dealboard-Topic"

// NATSPublisher publishes JSON-encoded events on company-scoped subjects
// (see Subject).
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to NATS at url. The connection is named
// "dealboard" unless opts override it.
func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, append([]nats.Option{nats.Name("dealboard")}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	msg := nats.NewMsg(Subject(topic, event))
	msg.Header.Set(HeaderTopic, topic)
	msg.Data = data
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing %s: %w", msg.Subject, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// NATSSubscriber receives events from NATS subjects. Its connection
// reconnects forever so a long-running watch survives broker restarts.
type NATSSubscriber struct {
	conn   *nats.Conn
	buffer int
}

// NewNATSSubscriber connects to NATS with automatic reconnection support.
// Extra nats.Option values (e.g. disconnect/reconnect handlers) can be appended.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	defaults := []nats.Option{
		nats.Name("dealboard-watch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSSubscriber{conn: nc, buffer: 64}, nil
}

// subscription bridges a NATS callback subscription to a channel. Messages
// arriving while the channel is full are dropped; a board refresh reloads
// everything anyway.
type subscription struct {
	sub *nats.Subscription
	ch  chan []byte

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func (s *subscription) deliver(msg *nats.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- msg.Data:
	default:
	}
}

func (s *subscription) cancel() {
	s.once.Do(func() {
		if s.sub != nil {
			_ = s.sub.Unsubscribe()
		}
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

// Subscribe returns a channel that receives raw event payloads for subject,
// which may use NATS wildcards (see CompanyFilter). The returned cancel
// function unsubscribes and closes the channel; it is safe to call twice.
func (s *NATSSubscriber) Subscribe(subject string) (<-chan []byte, func(), error) {
	sub := &subscription{ch: make(chan []byte, s.buffer)}

	ns, err := s.conn.Subscribe(subject, sub.deliver)
	if err != nil {
		sub.cancel()
		return nil, nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	sub.sub = ns
	// The subscription must reach the server before publishers on other
	// connections can be routed to it.
	if err := s.conn.Flush(); err != nil {
		sub.cancel()
		return nil, nil, fmt.Errorf("flushing subscription to %s: %w", subject, err)
	}
	return sub.ch, sub.cancel, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
