package drag

import (
	"fmt"

	"github.com/alfredjeanlab/dealboard/internal/board"
)

// Layout places a grouping on a simple grid: columns side by side, cards
// stacked top-down inside them. Headless front ends (the CLI, tests) use it
// to register droppables without a real renderer.
type Layout struct {
	ColumnWidth float64
	CardHeight  float64
	Gap         float64
	HeaderH     float64
}

// DefaultLayout matches the terminal renderer's proportions.
var DefaultLayout = Layout{ColumnWidth: 240, CardHeight: 64, Gap: 16, HeaderH: 40}

// Regions returns a column region per column and a card region per deal.
func (l Layout) Regions(g board.Grouping) []Region {
	var out []Region
	for i, col := range g.Columns {
		x := float64(i) * (l.ColumnWidth + l.Gap)
		height := l.HeaderH + float64(len(col.Deals))*(l.CardHeight+l.Gap) + l.CardHeight
		out = append(out, Region{
			ID:    "column:" + col.Stage.Name,
			Kind:  RegionColumn,
			Stage: col.Stage.Name,
			Rect:  Rect{X: x, Y: 0, W: l.ColumnWidth, H: height},
		})
		for j, d := range col.Deals {
			out = append(out, Region{
				ID:     fmt.Sprintf("card:%d", d.ID),
				Kind:   RegionCard,
				Stage:  col.Stage.Name,
				DealID: d.ID,
				Rect: Rect{
					X: x + l.Gap/2,
					Y: l.HeaderH + float64(j)*(l.CardHeight+l.Gap),
					W: l.ColumnWidth - l.Gap,
					H: l.CardHeight,
				},
			})
		}
	}
	return out
}
