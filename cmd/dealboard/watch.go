package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/alfredjeanlab/dealboard/internal/board"
	"github.com/alfredjeanlab/dealboard/internal/events"
	"github.com/alfredjeanlab/dealboard/internal/model"
	"github.com/alfredjeanlab/dealboard/internal/notify"
	"github.com/alfredjeanlab/dealboard/internal/ui"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

// stageMove is one deal that changed stage between two refreshes.
type stageMove struct {
	DealID int64  `json:"deal_id"`
	Name   string `json:"name"`
	From   string `json:"from,omitempty"` // empty for a deal seen for the first time
	To     string `json:"to"`
}

// diffStages returns deals whose stage differs from seen, in id order, and
// updates seen in place.
func diffStages(deals []*model.Deal, seen map[int64]string) []stageMove {
	var moves []stageMove
	for _, d := range deals {
		prev, ok := seen[d.ID]
		if !ok || prev != d.Stage {
			moves = append(moves, stageMove{DealID: d.ID, Name: d.Name, From: prev, To: d.Stage})
		}
		seen[d.ID] = d.Stage
	}
	sort.Slice(moves, func(i, j int) bool { return moves[i].DealID < moves[j].DealID })
	return moves
}

// boardWatcher keeps a board in step with the server and prints what moved.
type boardWatcher struct {
	board     *board.Board
	src       boardSource
	companyID int64
	out       io.Writer
	json      bool
	width     int

	seen map[int64]string
}

func newBoardWatcher(b *board.Board, src boardSource, companyID int64, out io.Writer) *boardWatcher {
	w := &boardWatcher{
		board:     b,
		src:       src,
		companyID: companyID,
		out:       out,
		width:     ui.TerminalWidth(),
		seen:      make(map[int64]string),
	}
	diffStages(b.Deals(), w.seen)
	return w
}

func (w *boardWatcher) render() {
	if w.json {
		_ = printJSON(w.out, w.board.Columns())
		return
	}
	renderBoard(w.out, w.board.Columns(), w.width)
}

// refresh reloads the deals and reports the moves since the last refresh.
func (w *boardWatcher) refresh(ctx context.Context) ([]stageMove, error) {
	deals, err := w.src.ListDeals(ctx, w.companyID)
	if err != nil {
		return nil, err
	}
	moves := diffStages(deals, w.seen)
	w.board.ReplaceDeals(deals)
	if len(moves) == 0 {
		return nil, nil
	}

	if w.json {
		for _, m := range moves {
			_ = json.NewEncoder(w.out).Encode(m)
		}
		return moves, nil
	}
	fmt.Fprintln(w.out)
	for _, m := range moves {
		from := m.From
		if from == "" {
			from = "new"
		}
		fmt.Fprintf(w.out, "%s #%d %s: %s → %s\n",
			ui.RenderMuted(time.Now().Format("15:04:05")), m.DealID, m.Name, from, ui.RenderAccent(m.To))
	}
	w.render()
	return moves, nil
}

// refreshOrLog keeps watching through transient errors.
func (w *boardWatcher) refreshOrLog(ctx context.Context) {
	if _, err := w.refresh(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderError("refresh failed:"), err)
	}
}

// watchNATS refreshes on stage events for this company, debounced, and
// mirrors notifications raised by other board sessions.
func (w *boardWatcher) watchNATS(ctx context.Context, natsURL string) error {
	// reconnectCh receives a signal when the NATS client reconnects after
	// a disconnect, so we can immediately re-query for missed events.
	reconnectCh := make(chan struct{}, 1)

	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats: reconnected")
			select {
			case reconnectCh <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	dealCh, cancelDeals, err := sub.Subscribe(events.CompanyFilter(events.TopicDealEvents, w.companyID))
	if err != nil {
		return fmt.Errorf("subscribing to deal events: %w", err)
	}
	defer cancelDeals()

	noteCh, cancelNotes, err := sub.Subscribe(events.CompanyFilter(events.TopicNotification, w.companyID))
	if err != nil {
		return fmt.Errorf("subscribing to notifications: %w", err)
	}
	defer cancelNotes()
	toasts := notify.NewWriter(os.Stderr)

	debounce := time.NewTimer(0)
	debounce.Stop()
	// Drain the timer channel in case it fired between NewTimer and Stop.
	select {
	case <-debounce.C:
	default:
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-dealCh:
			if !ok {
				return nil
			}
			if rej, err := events.DecodeMoveRejected(data); err == nil && !w.json {
				fmt.Fprintf(os.Stderr, "%s #%d: %s\n", ui.RenderError("move rejected"), rej.DealID, rej.Reason)
			}
			debounce.Reset(200 * time.Millisecond)
		case data, ok := <-noteCh:
			if !ok {
				return nil
			}
			var n notify.Notification
			if err := json.Unmarshal(data, &n); err == nil && !w.json {
				toasts.Notify(n)
			}
		case <-reconnectCh:
			debounce.Reset(0) // immediate re-query
		case <-debounce.C:
			w.refreshOrLog(ctx)
		}
	}
}

// watchPoll refreshes at the given interval.
func (w *boardWatcher) watchPoll(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.refreshOrLog(ctx)
		}
	}
}

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Show the board and follow stage changes",
	GroupID: "board",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireCompany(); err != nil {
			return err
		}
		interval, _ := cmd.Flags().GetDuration("interval")
		search, _ := cmd.Flags().GetString("search")
		if interval <= 0 {
			return fmt.Errorf("--interval must be positive")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		b, err := loadBoard(ctx, dealsClient, cfg.CompanyID)
		if err != nil {
			return err
		}
		b.SetSearch(search)

		w := newBoardWatcher(b, dealsClient, cfg.CompanyID, os.Stdout)
		w.json = jsonOutput
		w.render()

		if cfg.NATSURL != "" {
			return w.watchNATS(ctx, cfg.NATSURL)
		}
		return w.watchPoll(ctx, interval)
	},
}

func init() {
	watchCmd.Flags().Duration("interval", 5*time.Second, "poll interval when NATS is not configured")
	watchCmd.Flags().StringP("search", "s", "", "only show deals matching this text")
}
