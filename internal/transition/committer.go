// Package transition commits stage moves made on the board. A move is
// applied to the local board first, then persisted remotely; if the remote
// update fails the board is reloaded from the server.
package transition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/dealboard/internal/board"
	"github.com/alfredjeanlab/dealboard/internal/idgen"
	"github.com/alfredjeanlab/dealboard/internal/model"
	"github.com/alfredjeanlab/dealboard/internal/notify"
)

// Guard failures. ErrStaleDeal is never surfaced to the user.
var (
	ErrStaleDeal    = errors.New("deal is not on the board")
	ErrReadOnly     = errors.New("moving deals is not permitted")
	ErrLocked       = errors.New("deal is locked")
	ErrInvalidStage = errors.New("invalid stage")
)

// Remote is the server side of a commit.
type Remote interface {
	UpdateStage(ctx context.Context, dealID, stageID, actingUserID, companyID int64) error
	ListDeals(ctx context.Context, companyID int64) ([]*model.Deal, error)
}

// Config holds the identity and capabilities the committer acts with.
type Config struct {
	CompanyID    int64
	ActingUserID int64
	CanWrite     bool

	// Timeout bounds each remote call. Zero means no timeout.
	Timeout time.Duration

	Logger *slog.Logger
}

// Committer validates and applies stage moves for one board.
type Committer struct {
	board    *board.Board
	remote   Remote
	notifier notify.Notifier
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	wg sync.WaitGroup
}

// New returns a committer for b.
func New(b *board.Board, remote Remote, n notify.Notifier, cfg Config) *Committer {
	if n == nil {
		n = notify.Discard
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Committer{
		board:    b,
		remote:   remote,
		notifier: n,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Pending tracks the remote half of an accepted move.
type Pending struct {
	DealID         int64
	From           string
	To             string
	StageID        int64
	NotificationID string

	done chan struct{}
	err  error
}

// Done is closed once the remote update, and any reload it triggered,
// has finished.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the move has settled and returns the remote error, if any.
func (p *Pending) Wait() error {
	<-p.done
	return p.err
}

// Commit moves a deal to the named stage. Checks run in order and stop at
// the first failure:
//
//   - the deal must be on the board (ErrStaleDeal, silent)
//   - the deal must not be locked (ErrLocked)
//   - a move to the current stage does nothing and returns (nil, nil)
//   - the caller must be allowed to write (ErrReadOnly)
//   - the stage must be one of the board's active stages (ErrInvalidStage)
//
// When all pass, the board shows the new stage before Commit returns and
// the remote update runs in the background. The returned Pending reports
// its outcome. Cancelling ctx does not abort the remote update.
func (c *Committer) Commit(ctx context.Context, dealID int64, target string) (*Pending, error) {
	deal, ok := c.board.Deal(dealID)
	if !ok {
		c.logger.Debug("drop on stale deal ignored", "deal_id", dealID)
		return nil, ErrStaleDeal
	}

	if deal.Locked {
		c.notify(idgen.Notification(), notify.KindWarning, deal, target,
			fmt.Sprintf("%s is locked and cannot be moved", deal.Name))
		return nil, ErrLocked
	}

	if target == deal.Stage {
		return nil, nil
	}

	if !c.cfg.CanWrite {
		c.notify(idgen.Notification(), notify.KindWarning, deal, target, "You do not have permission to move deals")
		return nil, ErrReadOnly
	}

	stage := model.FindStage(c.board.Stages(), target)
	if stage == nil {
		c.notify(idgen.Notification(), notify.KindError, deal, target,
			fmt.Sprintf("Stage %q does not exist", target))
		return nil, fmt.Errorf("%w: %q", ErrInvalidStage, target)
	}

	prev, ok := c.board.ApplyStage(dealID, target)
	if !ok {
		// Reconciled away between the lookup and the apply.
		return nil, ErrStaleDeal
	}

	p := &Pending{
		DealID:         dealID,
		From:           prev,
		To:             target,
		StageID:        stage.ID,
		NotificationID: idgen.Notification(),
		done:           make(chan struct{}),
	}
	c.notify(p.NotificationID, notify.KindInfo, deal, target,
		fmt.Sprintf("Moving %s to %s", deal.Name, target))

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(p.done)
		p.err = c.persist(context.WithoutCancel(ctx), deal, p)
	}()
	return p, nil
}

// OnDrop commits a drag-and-drop move. Guard failures have already been
// reported to the user, so the error is only logged.
func (c *Committer) OnDrop(dealID int64, stage string) {
	if _, err := c.Commit(context.Background(), dealID, stage); err != nil && !errors.Is(err, ErrStaleDeal) {
		c.logger.Info("drop rejected", "deal_id", dealID, "stage", stage, "err", err)
	}
}

// Wait blocks until every in-flight commit has settled.
func (c *Committer) Wait() {
	c.wg.Wait()
}

// Reconcile replaces the board's deals with the server's.
func (c *Committer) Reconcile(ctx context.Context) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	deals, err := c.remote.ListDeals(ctx, c.cfg.CompanyID)
	if err != nil {
		return fmt.Errorf("reloading deals: %w", err)
	}
	c.board.ReplaceDeals(deals)
	return nil
}

func (c *Committer) persist(ctx context.Context, deal *model.Deal, p *Pending) error {
	callCtx, cancel := c.callContext(ctx)
	err := c.remote.UpdateStage(callCtx, p.DealID, p.StageID, c.cfg.ActingUserID, c.cfg.CompanyID)
	cancel()

	if err == nil {
		c.notify(p.NotificationID, notify.KindSuccess, deal, p.To,
			fmt.Sprintf("Moved %s to %s", deal.Name, p.To))
		return nil
	}

	c.logger.Warn("stage update failed, reloading board",
		"deal_id", p.DealID, "stage", p.To, "err", err)
	c.notify(p.NotificationID, notify.KindError, deal, p.To,
		fmt.Sprintf("Failed to move %s to %s", deal.Name, p.To))

	if rerr := c.Reconcile(ctx); rerr != nil {
		c.logger.Error("board reload failed", "deal_id", p.DealID, "err", rerr)
		c.notify(idgen.Notification(), notify.KindError, deal, p.To, "Failed to reload deals")
	}
	return fmt.Errorf("updating stage of deal %d: %w", p.DealID, err)
}

func (c *Committer) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, c.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func (c *Committer) notify(id string, kind notify.Kind, deal *model.Deal, stage, msg string) {
	c.notifier.Notify(notify.Notification{
		ID:        id,
		Kind:      kind,
		Message:   msg,
		DealID:    deal.ID,
		Stage:     stage,
		CreatedAt: c.now(),
	})
}
