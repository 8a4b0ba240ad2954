package model

import "time"

// Deal is a sales opportunity on the pipeline board.
type Deal struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact,omitempty"`
	Email     string    `json:"email,omitempty"`
	Industry  string    `json:"industry,omitempty"`
	Owner     string    `json:"owner,omitempty"`
	Revenue   float64   `json:"revenue,omitempty"`
	Stage     string    `json:"stage"`
	Locked    bool      `json:"locked"` // handed off downstream; stage is frozen for drag moves
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a shallow copy of the deal. Deal has no reference fields,
// so the copy is fully independent.
func (d *Deal) Clone() *Deal {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// CloneDeals copies every deal in the slice, preserving order.
func CloneDeals(deals []*Deal) []*Deal {
	if deals == nil {
		return nil
	}
	out := make([]*Deal, len(deals))
	for i, d := range deals {
		out[i] = d.Clone()
	}
	return out
}
