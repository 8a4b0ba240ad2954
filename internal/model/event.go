package model

import "time"

// StageChange is the audit record written for every accepted stage update.
type StageChange struct {
	ID        int64     `json:"id"`
	DealID    int64     `json:"deal_id"`
	CompanyID int64     `json:"company_id"`
	FromStage string    `json:"from_stage"`
	ToStage   string    `json:"to_stage"`
	ActorID   int64     `json:"actor_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
