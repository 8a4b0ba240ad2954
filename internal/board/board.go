package board

import (
	"sync"

	"github.com/alfredjeanlab/dealboard/internal/model"
)

// ChangeKind identifies what kind of mutation a Board went through.
type ChangeKind string

const (
	ChangeLoaded     ChangeKind = "loaded"
	ChangeStage      ChangeKind = "stage"      // optimistic move of one deal
	ChangeReconciled ChangeKind = "reconciled" // deal collection replaced by a refetch
	ChangeStages     ChangeKind = "stages"
	ChangeSearch     ChangeKind = "search"
)

// Change describes a mutation, delivered to subscribers after it is applied.
type Change struct {
	Kind   ChangeKind
	DealID int64  // set for ChangeStage
	From   string // set for ChangeStage
	To     string // set for ChangeStage
}

// Board owns the deal collection of one pipeline board. Only the transition
// committer (optimistic apply) and reconciliation refetches write deal
// stages. All methods are safe for concurrent use; deals handed out are
// copies.
type Board struct {
	mu     sync.RWMutex
	deals  []*model.Deal
	byID   map[int64]*model.Deal
	stages []*model.Stage // active only, position order
	search string

	subMu  sync.Mutex
	subs   map[int]func(Change)
	nextID int
}

// New returns an empty board.
func New() *Board {
	return &Board{
		byID: make(map[int64]*model.Deal),
		subs: make(map[int]func(Change)),
	}
}

// Load replaces both the deal collection and the stage list, as done when a
// board is first mounted.
func (b *Board) Load(deals []*model.Deal, stages []*model.Stage) {
	b.mu.Lock()
	b.setDealsLocked(deals)
	b.stages = model.ActiveStages(stages)
	b.mu.Unlock()
	b.notify(Change{Kind: ChangeLoaded})
}

// ReplaceDeals swaps in an authoritative deal collection fetched from the
// server. Any optimistic stage still held locally is discarded.
func (b *Board) ReplaceDeals(deals []*model.Deal) {
	b.mu.Lock()
	b.setDealsLocked(deals)
	b.mu.Unlock()
	b.notify(Change{Kind: ChangeReconciled})
}

func (b *Board) setDealsLocked(deals []*model.Deal) {
	b.deals = make([]*model.Deal, 0, len(deals))
	b.byID = make(map[int64]*model.Deal, len(deals))
	for _, d := range deals {
		if d == nil {
			continue
		}
		c := d.Clone()
		b.deals = append(b.deals, c)
		b.byID[c.ID] = c
	}
}

// SetStages replaces the stage list. Inactive stages are dropped.
func (b *Board) SetStages(stages []*model.Stage) {
	b.mu.Lock()
	b.stages = model.ActiveStages(stages)
	b.mu.Unlock()
	b.notify(Change{Kind: ChangeStages})
}

// SetSearch sets the text filter applied before grouping. An empty string
// clears it.
func (b *Board) SetSearch(q string) {
	b.mu.Lock()
	b.search = q
	b.mu.Unlock()
	b.notify(Change{Kind: ChangeSearch})
}

// Search returns the current text filter.
func (b *Board) Search() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.search
}

// Deal returns a copy of the deal with the given id.
func (b *Board) Deal(id int64) (*model.Deal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.byID[id]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// Deals returns a copy of the full, unfiltered collection in board order.
func (b *Board) Deals() []*model.Deal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return model.CloneDeals(b.deals)
}

// Stages returns the active stages in position order.
func (b *Board) Stages() []*model.Stage {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return model.CloneStages(b.stages)
}

// ApplyStage sets the stage of one deal in place and returns the previous
// stage. It reports false when the deal is not on the board.
func (b *Board) ApplyStage(id int64, stage string) (string, bool) {
	b.mu.Lock()
	d, ok := b.byID[id]
	if !ok {
		b.mu.Unlock()
		return "", false
	}
	prev := d.Stage
	d.Stage = stage
	b.mu.Unlock()

	b.notify(Change{Kind: ChangeStage, DealID: id, From: prev, To: stage})
	return prev, true
}

// Columns groups the filtered deal collection into stage columns. It is
// recomputed from current state on every call.
func (b *Board) Columns() Grouping {
	b.mu.RLock()
	deals := model.CloneDeals(FilterDeals(b.deals, b.search))
	stages := model.CloneStages(b.stages)
	b.mu.RUnlock()
	return Group(deals, stages)
}

// Subscribe registers fn to be called after every mutation. Calls happen on
// the mutating goroutine, outside the board lock. The returned function
// removes the subscription.
func (b *Board) Subscribe(fn func(Change)) func() {
	b.subMu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.subMu.Unlock()

	return func() {
		b.subMu.Lock()
		delete(b.subs, id)
		b.subMu.Unlock()
	}
}

func (b *Board) notify(c Change) {
	b.subMu.Lock()
	fns := make([]func(Change), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.subMu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}
