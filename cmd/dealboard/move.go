package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/alfredjeanlab/dealboard/internal/board"
	"github.com/alfredjeanlab/dealboard/internal/drag"
	"github.com/alfredjeanlab/dealboard/internal/events"
	"github.com/alfredjeanlab/dealboard/internal/notify"
	"github.com/alfredjeanlab/dealboard/internal/transition"
	"github.com/spf13/cobra"
)

// moveRemote is what a move needs from the server.
type moveRemote interface {
	boardSource
	UpdateStage(ctx context.Context, dealID, stageID, actingUserID, companyID int64) error
}

type moveOptions struct {
	DealID    int64
	Stage     string
	CompanyID int64
	UserID    int64
	ReadOnly  bool
	Pointer   bool // drag with pointer gestures instead of the keyboard
	Timeout   time.Duration
}

// errMoveNotApplied is returned when a move was refused or rolled back.
var errMoveNotApplied = errors.New("deal was not moved")

// runMove loads the board and drags the deal onto the target column the
// same way an interactive front end would, then waits for the server to
// confirm. Notifications go to n as they happen.
func runMove(ctx context.Context, remote moveRemote, n notify.Notifier, opts moveOptions, logger *slog.Logger) error {
	b, err := loadBoard(ctx, remote, opts.CompanyID)
	if err != nil {
		return err
	}

	committer := transition.New(b, remote, n, transition.Config{
		CompanyID:    opts.CompanyID,
		ActingUserID: opts.UserID,
		CanWrite:     !opts.ReadOnly,
		Timeout:      opts.Timeout,
		Logger:       logger,
	})

	var (
		pending   *transition.Pending
		commitErr error
	)
	handler := drag.DropFunc(func(dealID int64, stage string) {
		pending, commitErr = committer.Commit(ctx, dealID, stage)
	})

	ctl := drag.NewController(b, handler, drag.Options{})
	g := b.Columns()
	ctl.SetRegions(drag.DefaultLayout.Regions(g))

	deal, ok := b.Deal(opts.DealID)
	if !ok {
		return fmt.Errorf("deal %d is not on the board", opts.DealID)
	}

	// No column to drop on; let the committer report why.
	target := columnIndex(g, opts.Stage)
	if target < 0 {
		pending, commitErr = committer.Commit(ctx, opts.DealID, opts.Stage)
	} else if opts.Pointer {
		err = pointerDrag(ctl, g, opts.DealID, target)
	} else {
		err = keyboardDrag(ctl, opts.DealID, columnIndex(g, deal.Stage), target)
	}
	if err != nil {
		return err
	}

	if commitErr != nil {
		return fmt.Errorf("%w: %w", errMoveNotApplied, commitErr)
	}
	if pending == nil {
		return nil // already there
	}
	if err := pending.Wait(); err != nil {
		return fmt.Errorf("%w: %w", errMoveNotApplied, err)
	}
	return nil
}

func columnIndex(g board.Grouping, stage string) int {
	for i, col := range g.Columns {
		if col.Stage.Name == stage {
			return i
		}
	}
	return -1
}

// keyboardDrag lifts the card and steps it from column from to column to.
// A deal outside every column starts with no target (from = -1).
func keyboardDrag(ctl *drag.Controller, dealID int64, from, to int) error {
	if err := ctl.KeyboardLift(dealID); err != nil {
		return err
	}
	if delta := to - from; delta != 0 {
		if err := ctl.KeyboardMove(delta); err != nil {
			_, _ = ctl.Cancel()
			return err
		}
	}
	_, err := ctl.Drop()
	return err
}

// pointerDrag presses on the card and releases it over the first card slot
// of column to.
func pointerDrag(ctl *drag.Controller, g board.Grouping, dealID int64, to int) error {
	l := drag.DefaultLayout
	var card drag.Rect
	for _, r := range l.Regions(g) {
		if r.Kind == drag.RegionCard && r.DealID == dealID {
			card = r.Rect
		}
	}
	start := drag.Point{X: card.X + card.W/2, Y: card.Y + card.H/2}
	end := drag.Point{
		X: float64(to)*(l.ColumnWidth+l.Gap) + l.Gap/2 + card.W/2,
		Y: l.HeaderH + card.H/2,
	}

	if err := ctl.PointerDown(dealID, start); err != nil {
		return err
	}
	ctl.PointerMove(end)
	_, err := ctl.PointerUp()
	if errors.Is(err, drag.ErrNoSession) {
		// Never left the starting slot: a click, not a drag.
		return nil
	}
	return err
}

var moveCmd = &cobra.Command{
	Use:     "move <deal-id> <stage>",
	Short:   "Drag a deal to another stage",
	GroupID: "board",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireCompany(); err != nil {
			return err
		}
		dealID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid deal id %q", args[0])
		}
		pointer, _ := cmd.Flags().GetBool("pointer")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		}

		notifiers := notify.Multi{notify.NewWriter(os.Stderr)}
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				logger.Warn("notifications will not be shared", "err", err)
			} else {
				defer pub.Close()
				notifiers = append(notifiers, notify.NewPublisher(pub, cfg.CompanyID, logger))
			}
		}

		err = runMove(cmd.Context(), dealsClient, notifiers, moveOptions{
			DealID:    dealID,
			Stage:     args[1],
			CompanyID: cfg.CompanyID,
			UserID:    cfg.UserID,
			ReadOnly:  cfg.ReadOnly,
			Pointer:   pointer,
			Timeout:   timeout,
		}, logger)
		if err != nil {
			return err
		}

		if jsonOutput {
			deal, err := dealsClient.GetDeal(cmd.Context(), dealID)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, deal)
		}
		return nil
	},
}

func init() {
	moveCmd.Flags().Bool("pointer", false, "simulate a pointer drag instead of keyboard navigation")
	moveCmd.Flags().Duration("timeout", 15*time.Second, "timeout for each server call")
	moveCmd.Flags().BoolP("verbose", "v", false, "log drag and commit details to stderr")
}
