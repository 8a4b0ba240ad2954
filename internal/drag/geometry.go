package drag

import (
	"math"
	"sort"
)

// Point is a position in board coordinates.
type Point struct {
	X, Y float64
}

// Dist returns the euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Rect is an axis-aligned rectangle with its origin at the top-left corner.
type Rect struct {
	X, Y, W, H float64
}

// Corners returns the top-left, top-right, bottom-left and bottom-right corners.
func (r Rect) Corners() [4]Point {
	return [4]Point{
		{r.X, r.Y},
		{r.X + r.W, r.Y},
		{r.X, r.Y + r.H},
		{r.X + r.W, r.Y + r.H},
	}
}

// Translate returns r moved by (dx, dy).
func (r Rect) Translate(dx, dy float64) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, W: r.W, H: r.H}
}

// Contains reports whether p lies inside r (edges included).
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

// Intersects reports whether r and o overlap. Touching edges count.
func (r Rect) Intersects(o Rect) bool {
	return r.X <= o.X+o.W && o.X <= r.X+r.W && r.Y <= o.Y+o.H && o.Y <= r.Y+r.H
}

// RegionKind distinguishes column drop zones from card drop zones.
type RegionKind string

const (
	RegionColumn RegionKind = "column"
	RegionCard   RegionKind = "card"
)

// Region is a registered droppable area. Card regions carry the stage of
// the column that owns the card, so a drop on a card lands in that column.
type Region struct {
	ID     string
	Kind   RegionKind
	Stage  string
	DealID int64 // card regions only
	Rect   Rect
}

// Strategy picks the droppable nearest to the dragged rectangle.
type Strategy interface {
	Resolve(active Rect, regions []Region) (Region, bool)
}

// ClosestCorners ranks the regions the dragged rectangle overlaps by the
// summed distance between its four corners and the region's four corners.
// On a tie a column beats a card. A rectangle that overlaps no region has
// no target, so releasing it cancels the drag.
type ClosestCorners struct {
	// MaxDistance, when positive, rejects regions whose average corner
	// distance exceeds it, so a release far from every droppable resolves
	// to no target.
	MaxDistance float64
}

type candidate struct {
	region Region
	score  float64
}

// Resolve implements Strategy.
func (s ClosestCorners) Resolve(active Rect, regions []Region) (Region, bool) {
	ac := active.Corners()
	cands := make([]candidate, 0, len(regions))
	for _, r := range regions {
		if !active.Intersects(r.Rect) {
			continue
		}
		rc := r.Rect.Corners()
		var sum float64
		for i := range ac {
			sum += ac[i].Dist(rc[i])
		}
		if s.MaxDistance > 0 && sum/4 > s.MaxDistance {
			continue
		}
		cands = append(cands, candidate{region: r, score: sum})
	}
	if len(cands) == 0 {
		return Region{}, false
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score < cands[j].score
		}
		return cands[i].region.Kind == RegionColumn && cands[j].region.Kind != RegionColumn
	})
	return cands[0].region, true
}
