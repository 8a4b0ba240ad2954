package model

import "sort"

// Stage is one column of the pipeline.
type Stage struct {
	ID        int64  `json:"id"`
	CompanyID int64  `json:"company_id"`
	Name      string `json:"name"`
	Position  int    `json:"position"`
	Active    bool   `json:"active"`
}

// CloneStages copies every stage in the slice, preserving order.
func CloneStages(stages []*Stage) []*Stage {
	if stages == nil {
		return nil
	}
	out := make([]*Stage, len(stages))
	for i, s := range stages {
		c := *s
		out[i] = &c
	}
	return out
}

// ActiveStages returns the active stages ordered by Position. Stages sharing a
// position keep their input order.
func ActiveStages(stages []*Stage) []*Stage {
	out := make([]*Stage, 0, len(stages))
	for _, s := range stages {
		if s != nil && s.Active {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Position < out[j].Position
	})
	return out
}

// FindStage returns the stage with the given name, or nil.
func FindStage(stages []*Stage, name string) *Stage {
	for _, s := range stages {
		if s != nil && s.Name == name {
			return s
		}
	}
	return nil
}
