package store

import (
	"context"
	"time"

	"github.com/alfredjeanlab/dealboard/internal/model"
)

// Store defines the persistence interface for deals and their pipeline
// stages. A company ID of zero in list calls means every company.
type Store interface {
	// Deals
	CreateDeal(ctx context.Context, deal *model.Deal) error
	GetDeal(ctx context.Context, id int64) (*model.Deal, error)
	// LockDeal reads a deal and holds its row until the surrounding
	// transaction ends. Outside a transaction it behaves like GetDeal.
	LockDeal(ctx context.Context, id int64) (*model.Deal, error)
	ListDeals(ctx context.Context, filter model.DealFilter) ([]*model.Deal, int, error) // returns deals, total count, error
	UpdateDealStage(ctx context.Context, id int64, stage string, at time.Time) error

	// Stages
	CreateStage(ctx context.Context, stage *model.Stage) error
	GetStage(ctx context.Context, id int64) (*model.Stage, error)
	ListStages(ctx context.Context, companyID int64, includeInactive bool) ([]*model.Stage, error)

	// Stage history
	RecordStageChange(ctx context.Context, change *model.StageChange) error
	GetStageHistory(ctx context.Context, dealID int64) ([]*model.StageChange, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
