// Package notify carries user-visible toasts raised by the board. Delivery
// is fire-and-forget: senders never learn whether a toast was shown or
// dismissed.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/dealboard/internal/events"
	"github.com/alfredjeanlab/dealboard/internal/ui"
)

// Kind is the severity of a notification.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// Notification is one toast. A later notification with the same ID replaces
// an earlier one (e.g. "moving…" becomes "moved").
type Notification struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	DealID    int64     `json:"deal_id,omitempty"`
	CompanyID int64     `json:"company_id,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Company scopes the notification's bus subject.
func (n Notification) Company() int64 { return n.CompanyID }

// Notifier receives notifications.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a plain function to Notifier.
type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// Discard drops every notification.
var Discard Notifier = Func(func(Notification) {})

// Multi fans a notification out to several notifiers in order.
type Multi []Notifier

func (m Multi) Notify(n Notification) {
	for _, x := range m {
		x.Notify(n)
	}
}

// Recorder keeps every notification in memory, in arrival order.
type Recorder struct {
	mu  sync.Mutex
	all []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	r.all = append(r.all, n)
	r.mu.Unlock()
}

// All returns a copy of everything recorded so far.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.all))
	copy(out, r.all)
	return out
}

// Current returns the latest notification per ID, in order of first
// appearance: what a toast stack would show after replacements.
func (r *Recorder) Current() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		order []string
		last  = make(map[string]Notification)
	)
	for _, n := range r.all {
		if _, ok := last[n.ID]; !ok {
			order = append(order, n.ID)
		}
		last[n.ID] = n
	}
	out := make([]Notification, len(order))
	for i, id := range order {
		out[i] = last[id]
	}
	return out
}

// Kinds returns the kinds of all recorded notifications, in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.all))
	for i, n := range r.all {
		out[i] = n.Kind
	}
	return out
}

// Writer prints notifications as single coloured lines.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter returns a Writer printing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Notify(n Notification) {
	var label string
	switch n.Kind {
	case KindSuccess:
		label = ui.RenderSuccess("✓")
	case KindWarning:
		label = ui.RenderWarning("!")
	case KindError:
		label = ui.RenderError("✗")
	default:
		label = ui.RenderAccent("…")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.w, "%s %s\n", label, n.Message)
}

// Publisher forwards notifications to the event bus so other board
// sessions can mirror them.
type Publisher struct {
	pub       events.Publisher
	companyID int64
	logger    *slog.Logger
}

// NewPublisher returns a notifier that publishes on events.TopicNotification.
// Notifications without a company are stamped with companyID.
func NewPublisher(pub events.Publisher, companyID int64, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{pub: pub, companyID: companyID, logger: logger}
}

func (p *Publisher) Notify(n Notification) {
	if n.CompanyID == 0 {
		n.CompanyID = p.companyID
	}
	if err := p.pub.Publish(context.Background(), events.TopicNotification, n); err != nil {
		p.logger.Warn("failed to publish notification", "id", n.ID, "kind", n.Kind, "err", err)
	}
}
