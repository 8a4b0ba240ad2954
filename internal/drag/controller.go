// Package drag tracks drag-and-drop gestures on the pipeline board. One
// Controller runs at most one session at a time; a completed drop is handed
// to a DropHandler as (deal id, stage name).
package drag

import (
	"errors"
	"sort"
	"sync"

	"github.com/alfredjeanlab/dealboard/internal/idgen"
	"github.com/alfredjeanlab/dealboard/internal/model"
)

// DefaultActivationDistance is how far a pointer must travel after being
// pressed on a card before a drag begins.
const DefaultActivationDistance = 8

var (
	ErrSessionActive = errors.New("a drag session is already active")
	ErrNoSession     = errors.New("no drag session is active")
	ErrUnknownDeal   = errors.New("deal is not on the board")
)

// State is the controller's position in the drag lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateDragging  State = "dragging"
	StateDropped   State = "dropped"
	StateCancelled State = "cancelled"
)

// DealSource looks up the deal being lifted. *board.Board implements it.
type DealSource interface {
	Deal(id int64) (*model.Deal, bool)
}

// DropHandler receives completed drops.
type DropHandler interface {
	OnDrop(dealID int64, stage string)
}

// DropFunc adapts a function to DropHandler.
type DropFunc func(dealID int64, stage string)

func (f DropFunc) OnDrop(dealID int64, stage string) { f(dealID, stage) }

// Coordinator observes a session. Any UI toolkit's drag primitives can be
// bridged through it.
type Coordinator interface {
	OnDragStart(s Session)
	OnDragOver(s Session)
	OnDragEnd(o Outcome)
}

// NopCoordinator ignores every callback. Embed it to implement a subset.
type NopCoordinator struct{}

func (NopCoordinator) OnDragStart(Session) {}
func (NopCoordinator) OnDragOver(Session)  {}
func (NopCoordinator) OnDragEnd(Outcome)   {}

// Session is a snapshot of the active drag.
type Session struct {
	ID       string
	DealID   int64
	Deal     *model.Deal // copy taken at lift time, used for the overlay
	Keyboard bool
	Pointer  Point
	Rect     Rect    // dragged card rectangle, following the pointer
	Over     *Region // current drop target, nil when none
}

// Outcome reports how a session ended.
type Outcome struct {
	SessionID string
	DealID    int64
	State     State  // StateDropped or StateCancelled
	Stage     string // target stage when dropped
}

// Overlay is what a renderer draws while a card is lifted.
type Overlay struct {
	Deal *model.Deal
	Rect Rect
}

// Options configures a Controller.
type Options struct {
	ActivationDistance float64     // default DefaultActivationDistance
	Strategy           Strategy    // default ClosestCorners{}
	Coordinator        Coordinator // default NopCoordinator
}

// Controller is the drag session state machine for one board.
type Controller struct {
	deals   DealSource
	handler DropHandler
	opts    Options

	mu      sync.Mutex
	regions map[string]Region
	state   State
	session *Session

	// pointer pressed on a card, drag not yet activated
	armed     bool
	armDeal   int64
	armOrigin Point

	origin Point // pointer position at activation
	start  Rect  // card rectangle at activation
}

// NewController returns an idle controller.
func NewController(deals DealSource, handler DropHandler, opts Options) *Controller {
	if opts.ActivationDistance <= 0 {
		opts.ActivationDistance = DefaultActivationDistance
	}
	if opts.Strategy == nil {
		opts.Strategy = ClosestCorners{}
	}
	if opts.Coordinator == nil {
		opts.Coordinator = NopCoordinator{}
	}
	return &Controller{
		deals:   deals,
		handler: handler,
		opts:    opts,
		regions: make(map[string]Region),
		state:   StateIdle,
	}
}

// Register adds or replaces a droppable region.
func (c *Controller) Register(r Region) {
	c.mu.Lock()
	c.regions[r.ID] = r
	c.mu.Unlock()
}

// Unregister removes a droppable region.
func (c *Controller) Unregister(id string) {
	c.mu.Lock()
	delete(c.regions, id)
	c.mu.Unlock()
}

// SetRegions replaces all droppable regions, typically after a re-render.
func (c *Controller) SetRegions(regions []Region) {
	c.mu.Lock()
	c.regions = make(map[string]Region, len(regions))
	for _, r := range regions {
		c.regions[r.ID] = r
	}
	c.mu.Unlock()
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a copy of the active session.
func (c *Controller) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, false
	}
	return c.copySession(), true
}

// Overlay returns the lifted card and where to draw it, while dragging.
func (c *Controller) Overlay() (Overlay, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateDragging {
		return Overlay{}, false
	}
	return Overlay{Deal: c.session.Deal.Clone(), Rect: c.session.Rect}, true
}

// PointerDown arms a pointer gesture on a card. The drag starts once the
// pointer moves past the activation distance.
func (c *Controller) PointerDown(dealID int64, p Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDragging {
		return ErrSessionActive
	}
	if _, ok := c.deals.Deal(dealID); !ok {
		return ErrUnknownDeal
	}
	c.armed = true
	c.armDeal = dealID
	c.armOrigin = p
	return nil
}

// PointerMove feeds a pointer position. It reports whether this move
// started a drag.
func (c *Controller) PointerMove(p Point) bool {
	c.mu.Lock()
	switch {
	case c.state == StateDragging:
		c.session.Pointer = p
		c.session.Rect = c.start.Translate(p.X-c.origin.X, p.Y-c.origin.Y)
		c.resolveLocked()
		s := c.copySession()
		c.mu.Unlock()
		c.opts.Coordinator.OnDragOver(s)
		return false

	case c.armed && p.Dist(c.armOrigin) >= c.opts.ActivationDistance:
		c.armed = false
		ok := c.beginLocked(c.armDeal, c.armOrigin, false)
		if !ok {
			c.mu.Unlock()
			return false
		}
		c.session.Pointer = p
		c.session.Rect = c.start.Translate(p.X-c.origin.X, p.Y-c.origin.Y)
		c.resolveLocked()
		s := c.copySession()
		c.mu.Unlock()
		c.opts.Coordinator.OnDragStart(s)
		c.opts.Coordinator.OnDragOver(s)
		return true
	}
	c.mu.Unlock()
	return false
}

// PointerUp releases the pointer. A press that never activated is a click
// and does nothing.
func (c *Controller) PointerUp() (Outcome, error) {
	c.mu.Lock()
	if c.state != StateDragging {
		c.armed = false
		c.mu.Unlock()
		return Outcome{}, ErrNoSession
	}
	c.mu.Unlock()
	return c.Drop()
}

// KeyboardLift starts a keyboard drag on a card immediately. The initial
// target is the deal's own column.
func (c *Controller) KeyboardLift(dealID int64) error {
	c.mu.Lock()
	if c.state == StateDragging {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.armed = false
	rect := c.cardRectLocked(dealID)
	center := Point{X: rect.X + rect.W/2, Y: rect.Y + rect.H/2}
	if !c.beginLocked(dealID, center, true) {
		c.mu.Unlock()
		return ErrUnknownDeal
	}
	if col, ok := c.columnLocked(c.session.Deal.Stage); ok {
		c.session.Over = &col
	}
	s := c.copySession()
	c.mu.Unlock()
	c.opts.Coordinator.OnDragStart(s)
	c.opts.Coordinator.OnDragOver(s)
	return nil
}

// KeyboardMove steps the target by delta columns in left-to-right order,
// clamped at the ends.
func (c *Controller) KeyboardMove(delta int) error {
	c.mu.Lock()
	if c.state != StateDragging {
		c.mu.Unlock()
		return ErrNoSession
	}
	cols := c.columnsLocked()
	if len(cols) == 0 {
		c.mu.Unlock()
		return nil
	}
	idx := -1
	if c.session.Over != nil {
		for i, col := range cols {
			if col.Stage == c.session.Over.Stage {
				idx = i
				break
			}
		}
	}
	next := idx + delta
	if idx < 0 && delta < 0 {
		next = len(cols) + delta
	}
	if next < 0 {
		next = 0
	}
	if next >= len(cols) {
		next = len(cols) - 1
	}
	col := cols[next]
	c.session.Over = &col
	c.session.Rect = Rect{X: col.Rect.X, Y: col.Rect.Y, W: c.start.W, H: c.start.H}
	s := c.copySession()
	c.mu.Unlock()
	c.opts.Coordinator.OnDragOver(s)
	return nil
}

// Drop ends the session over its current target. With no target the
// session is cancelled instead. The controller is idle again before the
// drop handler runs, so a new drag may begin while the move is committed.
func (c *Controller) Drop() (Outcome, error) {
	c.mu.Lock()
	if c.state != StateDragging {
		c.mu.Unlock()
		return Outcome{}, ErrNoSession
	}
	s := c.session
	out := Outcome{SessionID: s.ID, DealID: s.DealID, State: StateCancelled}
	if s.Over != nil {
		out.State = StateDropped
		out.Stage = s.Over.Stage
	}
	c.endLocked(out.State)
	c.mu.Unlock()

	c.opts.Coordinator.OnDragEnd(out)
	if out.State == StateDropped && c.handler != nil {
		c.handler.OnDrop(out.DealID, out.Stage)
	}
	return out, nil
}

// Cancel abandons the session with no side effects.
func (c *Controller) Cancel() (Outcome, error) {
	c.mu.Lock()
	c.armed = false
	if c.state != StateDragging {
		c.mu.Unlock()
		return Outcome{}, ErrNoSession
	}
	out := Outcome{SessionID: c.session.ID, DealID: c.session.DealID, State: StateCancelled}
	c.endLocked(StateCancelled)
	c.mu.Unlock()

	c.opts.Coordinator.OnDragEnd(out)
	return out, nil
}

func (c *Controller) beginLocked(dealID int64, origin Point, keyboard bool) bool {
	deal, ok := c.deals.Deal(dealID)
	if !ok {
		return false
	}
	c.start = c.cardRectLocked(dealID)
	c.origin = origin
	c.state = StateDragging
	c.session = &Session{
		ID:       idgen.Session(),
		DealID:   dealID,
		Deal:     deal,
		Keyboard: keyboard,
		Pointer:  origin,
		Rect:     c.start,
	}
	return true
}

// endLocked passes through the terminal state and settles back to idle.
func (c *Controller) endLocked(final State) {
	c.state = final
	c.session = nil
	c.state = StateIdle
}

func (c *Controller) resolveLocked() {
	regions := make([]Region, 0, len(c.regions))
	for _, r := range c.sortedRegionsLocked() {
		if r.Kind == RegionCard && r.DealID == c.session.DealID {
			continue
		}
		regions = append(regions, r)
	}
	if r, ok := c.opts.Strategy.Resolve(c.session.Rect, regions); ok {
		c.session.Over = &r
	} else {
		c.session.Over = nil
	}
}

func (c *Controller) sortedRegionsLocked() []Region {
	out := make([]Region, 0, len(c.regions))
	for _, r := range c.regions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Controller) cardRectLocked(dealID int64) Rect {
	for _, r := range c.regions {
		if r.Kind == RegionCard && r.DealID == dealID {
			return r.Rect
		}
	}
	return Rect{}
}

func (c *Controller) columnsLocked() []Region {
	var cols []Region
	for _, r := range c.sortedRegionsLocked() {
		if r.Kind == RegionColumn {
			cols = append(cols, r)
		}
	}
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].Rect.X < cols[j].Rect.X })
	return cols
}

func (c *Controller) columnLocked(stage string) (Region, bool) {
	for _, r := range c.columnsLocked() {
		if r.Stage == stage {
			return r, true
		}
	}
	return Region{}, false
}

func (c *Controller) copySession() Session {
	s := *c.session
	s.Deal = c.session.Deal.Clone()
	if c.session.Over != nil {
		over := *c.session.Over
		s.Over = &over
	}
	return s
}
