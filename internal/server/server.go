// Package server implements the dealboard REST backend: deal and stage
// queries, stage moves, and a server-sent event stream of pipeline changes.
package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/dealboard/internal/events"
	"github.com/alfredjeanlab/dealboard/internal/model"
	"github.com/alfredjeanlab/dealboard/internal/store"
)

// DealServer serves the pipeline API over a Store.
type DealServer struct {
	store     store.Store
	publisher events.Publisher
	sseHub    *sseHub
	logger    *slog.Logger
	now       func() time.Time

	sseKeepalive time.Duration
}

// NewDealServer returns a new DealServer backed by the given store and publisher.
func NewDealServer(s store.Store, p events.Publisher) *DealServer {
	if p == nil {
		p = &events.NoopPublisher{}
	}
	return &DealServer{
		store:     s,
		publisher: p,
		sseHub:    newSSEHub(sseReplayCapacity),
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },

		sseKeepalive: sseKeepaliveInterval,
	}
}

// SetLogger replaces the server's logger.
func (s *DealServer) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// recordAndPublish publishes an event to NATS and fans it out to SSE
// clients. Both are best-effort; failures are logged but do not block the
// caller. Stage history rows are written inside the move's transaction, not
// here.
func (s *DealServer) recordAndPublish(ctx context.Context, topic string, deal *model.Deal, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("failed to publish event", "topic", topic, "deal_id", deal.ID, "error", err)
	}
	s.broadcastEvent(topic, deal.CompanyID, event)
}

// inputError indicates invalid user input.
// Transport layers map this to 400.
type inputError string

func (e inputError) Error() string { return string(e) }

// conflictError indicates the request is valid but the deal's state forbids
// it. Mapped to 409.
type conflictError string

func (e conflictError) Error() string { return string(e) }

// notFoundError is mapped to 404.
type notFoundError string

func (e notFoundError) Error() string { return string(e) }
