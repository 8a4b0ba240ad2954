package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// sseReplayCapacity is how many recent events a reconnecting client
	// can catch up on with Last-Event-ID.
	sseReplayCapacity = 1000

	// sseKeepaliveInterval is how often idle streams get a comment line.
	sseKeepaliveInterval = 15 * time.Second

	// topicReset tells a client its Last-Event-ID fell out of the replay
	// window and the board must be reloaded from the API.
	topicReset = "deals.reset"
)

// sseEvent is one pipeline event as streamed to clients.
type sseEvent struct {
	ID        uint64
	Topic     string
	CompanyID int64 // owning company, 0 for events visible to every client
	Data      []byte
}

// replayLog keeps the most recent events, oldest first.
type replayLog struct {
	events []sseEvent
	limit  int
}

func (l *replayLog) add(evt sseEvent) {
	if l.limit <= 0 {
		return
	}
	if len(l.events) == l.limit {
		copy(l.events, l.events[1:])
		l.events = l.events[:l.limit-1]
	}
	l.events = append(l.events, evt)
}

// since returns the logged events after lastID. complete is false when
// events after lastID were already evicted.
func (l *replayLog) since(lastID uint64) (evts []sseEvent, complete bool) {
	if len(l.events) == 0 {
		return nil, true
	}
	if oldest := l.events[0].ID; lastID+1 < oldest {
		return append([]sseEvent(nil), l.events...), false
	}
	for i, e := range l.events {
		if e.ID > lastID {
			return append([]sseEvent(nil), l.events[i:]...), true
		}
	}
	return nil, true
}

// streamFilter selects the events a client receives.
type streamFilter struct {
	topics    []string // NATS-style patterns, empty for all
	companyID int64    // 0 for every company
}

// parseStreamFilter reads ?topics=a,b and ?company=N.
func parseStreamFilter(q url.Values) (streamFilter, error) {
	var f streamFilter
	for _, t := range strings.Split(q.Get("topics"), ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !validTopicPattern(t) {
			return f, inputError("invalid topic pattern " + strconv.Quote(t))
		}
		f.topics = append(f.topics, t)
	}
	if v := q.Get("company"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id < 0 {
			return f, inputError("invalid company " + strconv.Quote(v))
		}
		f.companyID = id
	}
	return f, nil
}

func validTopicPattern(p string) bool {
	parts := strings.Split(p, ".")
	for i, part := range parts {
		if part == "" || (part == ">" && i != len(parts)-1) {
			return false
		}
	}
	return true
}

func (f streamFilter) matches(evt *sseEvent) bool {
	if evt.Topic == topicReset {
		return true
	}
	if f.companyID != 0 && evt.CompanyID != 0 && evt.CompanyID != f.companyID {
		return false
	}
	if len(f.topics) == 0 {
		return true
	}
	for _, p := range f.topics {
		if matchTopicPattern(p, evt.Topic) {
			return true
		}
	}
	return false
}

// matchTopicPattern matches a dot-separated topic with NATS wildcards: "*"
// stands for one segment and a trailing ">" for one or more.
func matchTopicPattern(pattern, topic string) bool {
	pat := strings.Split(pattern, ".")
	top := strings.Split(topic, ".")
	for len(pat) > 0 {
		switch {
		case pat[0] == ">":
			return len(top) > 0
		case len(top) == 0:
			return false
		case pat[0] != "*" && pat[0] != top[0]:
			return false
		}
		pat, top = pat[1:], top[1:]
	}
	return len(top) == 0
}

// sseClient is one connected stream.
type sseClient struct {
	filter streamFilter
	ch     chan *sseEvent
}

// sseHub fans pipeline events out to stream clients and remembers recent
// ones for reconnects.
type sseHub struct {
	mu      sync.Mutex
	clients map[*sseClient]struct{}
	lastID  uint64
	log     replayLog
}

func newSSEHub(capacity int) *sseHub {
	return &sseHub{
		clients: make(map[*sseClient]struct{}),
		log:     replayLog{limit: capacity},
	}
}

// broadcast assigns the next event ID and delivers to matching clients.
// Slow clients miss events rather than block the move that raised them.
func (h *sseHub) broadcast(topic string, companyID int64, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	evt := sseEvent{ID: h.lastID, Topic: topic, CompanyID: companyID, Data: payload}
	h.log.add(evt)

	for c := range h.clients {
		if !c.filter.matches(&evt) {
			continue
		}
		select {
		case c.ch <- &evt:
		default:
		}
	}
}

// subscribe registers a client. With resume set, it also returns the
// events the client missed after lastID, or a reset event when some were
// evicted or lastID is from before a server restart. Registration and replay happen under one lock so no event is
// both replayed and delivered live.
func (h *sseHub) subscribe(f streamFilter, resume bool, lastID uint64) (*sseClient, []*sseEvent) {
	c := &sseClient{filter: f, ch: make(chan *sseEvent, 64)}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	if !resume {
		return c, nil
	}

	evts, complete := h.log.since(lastID)
	if !complete || lastID > h.lastID {
		return c, []*sseEvent{{ID: h.lastID, Topic: topicReset, Data: []byte(`{"reason":"replay window exceeded"}`)}}
	}
	var missed []*sseEvent
	for i := range evts {
		if f.matches(&evts[i]) {
			missed = append(missed, &evts[i])
		}
	}
	return c, missed
}

func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// handleEventStream handles GET /v1/events/stream.
func (s *DealServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	filter, err := parseStreamFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		resume bool
		lastID uint64
	)
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			resume, lastID = true, id
		}
	}

	client, missed := s.sseHub.subscribe(filter, resume, lastID)
	defer s.sseHub.unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	for _, evt := range missed {
		writeSSEEvent(w, evt)
	}
	flusher.Flush()

	keepalive := time.NewTicker(s.sseKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-client.ch:
			writeSSEEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, evt *sseEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, evt.Topic, evt.Data)
}

// broadcastEvent fans event out to stream clients.
func (s *DealServer) broadcastEvent(topic string, companyID int64, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to marshal event for SSE broadcast", "topic", topic, "error", err)
		return
	}
	s.sseHub.broadcast(topic, companyID, payload)
}
