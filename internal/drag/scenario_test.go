package drag_test

import (
	"context"
	"sync"
	"testing"

	"github.com/alfredjeanlab/dealboard/internal/board"
	"github.com/alfredjeanlab/dealboard/internal/drag"
	"github.com/alfredjeanlab/dealboard/internal/model"
	"github.com/alfredjeanlab/dealboard/internal/notify"
	"github.com/alfredjeanlab/dealboard/internal/transition"
)

type countingRemote struct {
	mu      sync.Mutex
	updates int
	lists   int
	stageID int64
}

func (r *countingRemote) UpdateStage(_ context.Context, _, stageID, _, _ int64) error {
	r.mu.Lock()
	r.updates++
	r.stageID = stageID
	r.mu.Unlock()
	return nil
}

func (r *countingRemote) ListDeals(context.Context, int64) ([]*model.Deal, error) {
	r.mu.Lock()
	r.lists++
	r.mu.Unlock()
	return nil, nil
}

func TestDragToClosedCommitsOptimistically(t *testing.T) {
	b := board.New()
	b.Load(
		[]*model.Deal{{ID: 1, CompanyID: 7, Name: "Acme", Stage: "Negotiation"}},
		[]*model.Stage{
			{ID: 11, CompanyID: 7, Name: "Negotiation", Position: 0, Active: true},
			{ID: 12, CompanyID: 7, Name: "Closed", Position: 1, Active: true},
		},
	)

	remote := &countingRemote{}
	rec := &notify.Recorder{}
	committer := transition.New(b, remote, rec, transition.Config{CompanyID: 7, ActingUserID: 3, CanWrite: true})

	var (
		mu      sync.Mutex
		visible string
	)
	handler := drag.DropFunc(func(dealID int64, stage string) {
		committer.OnDrop(dealID, stage)
		// The board must already show the move when the drop returns.
		d, _ := b.Deal(dealID)
		mu.Lock()
		visible = d.Stage
		mu.Unlock()
	})

	ctl := drag.NewController(b, handler, drag.Options{})
	ctl.SetRegions(drag.DefaultLayout.Regions(b.Columns()))

	if err := ctl.KeyboardLift(1); err != nil {
		t.Fatalf("KeyboardLift: %v", err)
	}
	if err := ctl.KeyboardMove(1); err != nil {
		t.Fatalf("KeyboardMove: %v", err)
	}
	out, err := ctl.Drop()
	if err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if out.State != drag.StateDropped || out.Stage != "Closed" {
		t.Fatalf("outcome = %+v", out)
	}
	mu.Lock()
	if visible != "Closed" {
		t.Errorf("stage right after drop = %q, want Closed", visible)
	}
	mu.Unlock()

	committer.Wait()

	g := b.Columns()
	if got := g.Column("Closed").Deals; len(got) != 1 || got[0].ID != 1 {
		t.Errorf("Closed column = %v, want [1]", got)
	}
	if got := g.Column("Negotiation").Deals; len(got) != 0 {
		t.Errorf("Negotiation column = %v, want empty", got)
	}

	remote.mu.Lock()
	if remote.updates != 1 || remote.stageID != 12 {
		t.Errorf("updates = %d stage id = %d, want 1 call for stage 12", remote.updates, remote.stageID)
	}
	if remote.lists != 0 {
		t.Errorf("ListDeals called %d times after a successful move", remote.lists)
	}
	remote.mu.Unlock()

	cur := rec.Current()
	if len(cur) != 1 || cur[0].Kind != notify.KindSuccess {
		t.Errorf("current notifications = %+v, want one success", cur)
	}
}
