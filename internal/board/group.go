// Package board holds the client-side pipeline board: the deal collection,
// the active stage list, and the grouping of deals into stage columns.
package board

import "github.com/alfredjeanlab/dealboard/internal/model"

// Column is one stage bucket of the board.
type Column struct {
	Stage *model.Stage  `json:"stage"`
	Deals []*model.Deal `json:"deals"`
}

// Grouping is the rendered partition of a deal collection.
type Grouping struct {
	Columns []Column `json:"columns"`

	// Orphans are deals whose stage matches no active stage. They are not
	// shown in any column but are kept so nothing is silently lost.
	Orphans []*model.Deal `json:"orphans,omitempty"`
}

// Column returns the column for the named stage, or nil.
func (g *Grouping) Column(stage string) *Column {
	for i := range g.Columns {
		if g.Columns[i].Stage.Name == stage {
			return &g.Columns[i]
		}
	}
	return nil
}

// ByStage maps stage name to the deals in that column.
func (g *Grouping) ByStage() map[string][]*model.Deal {
	out := make(map[string][]*model.Deal, len(g.Columns))
	for _, c := range g.Columns {
		out[c.Stage.Name] = c.Deals
	}
	return out
}

// Total returns the number of deals in all columns plus orphans.
func (g *Grouping) Total() int {
	n := len(g.Orphans)
	for _, c := range g.Columns {
		n += len(c.Deals)
	}
	return n
}

// Group partitions deals into one column per active stage, in stage position
// order. Deals keep their input order within a column. Stages without deals
// still get an empty column so they remain drop targets.
//
// Group does not modify its inputs and returns the same structure for the
// same inputs.
func Group(deals []*model.Deal, stages []*model.Stage) Grouping {
	active := model.ActiveStages(stages)

	g := Grouping{Columns: make([]Column, len(active))}
	index := make(map[string]int, len(active))
	for i, s := range active {
		g.Columns[i] = Column{Stage: s, Deals: []*model.Deal{}}
		// First stage wins if names collide.
		if _, dup := index[s.Name]; !dup {
			index[s.Name] = i
		}
	}

	for _, d := range deals {
		if d == nil {
			continue
		}
		i, ok := index[d.Stage]
		if !ok {
			g.Orphans = append(g.Orphans, d)
			continue
		}
		g.Columns[i].Deals = append(g.Columns[i].Deals, d)
	}
	return g
}
