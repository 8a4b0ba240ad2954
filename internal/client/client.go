// Package client provides a transport-agnostic interface for the dealboard
// service and an HTTP/JSON implementation that talks to its REST API.
package client

import (
	"context"

	"github.com/alfredjeanlab/dealboard/internal/model"
)

// DealsClient is the interface the board and the CLI commands use to
// communicate with the dealboard server. It is implemented by HTTPClient and
// can be backed by any transport.
type DealsClient interface {
	// Deals
	ListDeals(ctx context.Context, companyID int64) ([]*model.Deal, error)
	ListDealsFiltered(ctx context.Context, req *ListDealsRequest) (*ListDealsResponse, error)
	GetDeal(ctx context.Context, id int64) (*model.Deal, error)

	// Stages
	ListStages(ctx context.Context, companyID int64) ([]*model.Stage, error)
	ListAllStages(ctx context.Context, companyID int64) ([]*model.Stage, error)

	// Stage moves
	UpdateStage(ctx context.Context, dealID, stageID, actingUserID, companyID int64) error
	MoveDeal(ctx context.Context, dealID int64, req *UpdateStageRequest) (*model.Deal, error)
	GetStageHistory(ctx context.Context, dealID int64) ([]*model.StageChange, error)

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// ListDealsRequest holds parameters for listing a company's deals.
type ListDealsRequest struct {
	CompanyID int64    `json:"company_id"`
	Search    string   `json:"search,omitempty"`
	Stage     []string `json:"stage,omitempty"`
	Limit     int      `json:"limit,omitempty"`
	Offset    int      `json:"offset,omitempty"`
}

// ListDealsResponse is the response from ListDealsFiltered.
type ListDealsResponse struct {
	Deals []*model.Deal `json:"deals"`
	Total int           `json:"total"`
}

// UpdateStageRequest is the body of a stage move.
type UpdateStageRequest struct {
	StageID      int64 `json:"stage_id"`
	ActingUserID int64 `json:"acting_user_id"`
	CompanyID    int64 `json:"company_id"`
}
