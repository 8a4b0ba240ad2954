package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/dealboard/internal/board"
	"github.com/alfredjeanlab/dealboard/internal/model"
	"github.com/alfredjeanlab/dealboard/internal/ui"
)

const (
	minColumnWidth = 16
	maxColumnWidth = 32
	columnGap      = "  "
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// columnWidth splits the terminal width across n columns.
func columnWidth(termWidth, n int) int {
	if n == 0 {
		return maxColumnWidth
	}
	w := (termWidth - (n-1)*len(columnGap)) / n
	return max(minColumnWidth, min(maxColumnWidth, w))
}

// cardLabel is the one-line text of a deal card.
func cardLabel(d *model.Deal) string {
	label := fmt.Sprintf("#%d %s", d.ID, d.Name)
	if d.Locked {
		label += " [locked]"
	}
	return label
}

// renderBoard prints the columns side by side, one card per row, followed
// by any deals whose stage has no column.
func renderBoard(w io.Writer, g board.Grouping, termWidth int) {
	if len(g.Columns) == 0 {
		fmt.Fprintln(w, ui.RenderMuted("no active stages"))
	} else {
		renderColumns(w, g, termWidth)
	}

	if len(g.Orphans) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, ui.RenderWarning(fmt.Sprintf("%d deal(s) in stages not on the board:", len(g.Orphans))))
		for _, d := range g.Orphans {
			fmt.Fprintf(w, "  %s  %s\n", cardLabel(d), ui.RenderMuted("stage "+d.Stage))
		}
	}
}

func renderColumns(w io.Writer, g board.Grouping, termWidth int) {
	width := columnWidth(termWidth, len(g.Columns))

	rows := 0
	for _, col := range g.Columns {
		rows = max(rows, len(col.Deals))
	}

	var line []string
	for _, col := range g.Columns {
		head := ui.Pad(fmt.Sprintf("%s (%d)", col.Stage.Name, len(col.Deals)), width)
		line = append(line, ui.RenderAccent(head))
	}
	writeRow(w, line)

	line = line[:0]
	for range g.Columns {
		line = append(line, ui.RenderMuted(strings.Repeat("─", width)))
	}
	writeRow(w, line)

	for i := range rows {
		line = line[:0]
		for _, col := range g.Columns {
			if i >= len(col.Deals) {
				line = append(line, strings.Repeat(" ", width))
				continue
			}
			d := col.Deals[i]
			cell := ui.Pad(cardLabel(d), width)
			if d.Locked {
				cell = ui.RenderMuted(cell)
			}
			line = append(line, cell)
		}
		writeRow(w, line)
	}
}

func writeRow(w io.Writer, cells []string) {
	fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, columnGap), " "))
}

func printHistory(w io.Writer, changes []*model.StageChange) error {
	if len(changes) == 0 {
		fmt.Fprintln(w, "no stage changes")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tFROM\tTO\tACTOR")
	for _, c := range changes {
		actor := "-"
		if c.ActorID != 0 {
			actor = fmt.Sprintf("%d", c.ActorID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			c.CreatedAt.Local().Format("2006-01-02 15:04:05"), c.FromStage, c.ToStage, actor)
	}
	return tw.Flush()
}
