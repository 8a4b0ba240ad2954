package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/dealboard/internal/events"
	"github.com/alfredjeanlab/dealboard/internal/model"
	"github.com/alfredjeanlab/dealboard/internal/store"
)

// moveStageInput holds transport-agnostic parameters for a stage move.
type moveStageInput struct {
	StageID      int64 `json:"stage_id"`
	ActingUserID int64 `json:"acting_user_id"`
	CompanyID    int64 `json:"company_id"`
}

// getDeal loads a deal, mapping a missing row to notFoundError.
func (s *DealServer) getDeal(ctx context.Context, id int64) (*model.Deal, error) {
	deal, err := s.store.GetDeal(ctx, id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && deal == nil) {
		return nil, notFoundError("deal not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deal: %w", err)
	}
	return deal, nil
}

// moveDeal validates and applies a stage move. Checks run in order: the
// deal exists, the caller's company owns it, it is not locked, and the
// target is an active stage of the same company. A move to the deal's
// current stage succeeds without writing anything. The locked and
// current-stage checks are repeated on the locked row inside the
// transaction.
func (s *DealServer) moveDeal(ctx context.Context, dealID int64, in moveStageInput) (*model.Deal, error) {
	if in.StageID == 0 {
		return nil, inputError("stage_id is required")
	}

	deal, err := s.getDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}

	if in.CompanyID != 0 && in.CompanyID != deal.CompanyID {
		return nil, s.reject(ctx, deal, in, inputError("deal does not belong to this company"))
	}

	if deal.Locked {
		return nil, s.reject(ctx, deal, in, conflictError(fmt.Sprintf("deal %d is locked", deal.ID)))
	}

	stage, err := s.store.GetStage(ctx, in.StageID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && stage == nil) {
		return nil, s.reject(ctx, deal, in, inputError(fmt.Sprintf("stage %d does not exist", in.StageID)))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stage: %w", err)
	}
	if stage.CompanyID != deal.CompanyID {
		return nil, s.reject(ctx, deal, in, inputError(fmt.Sprintf("stage %d does not exist", in.StageID)))
	}
	if !stage.Active {
		return nil, s.reject(ctx, deal, in, inputError(fmt.Sprintf("stage %q is inactive", stage.Name)))
	}

	if stage.Name == deal.Stage {
		return deal, nil
	}

	// The row is re-read under lock so a deal locked or moved since the
	// checks above is judged on its current state.
	now := s.now()
	var (
		current *model.Deal
		from    string
	)
	err = s.store.RunInTransaction(ctx, func(tx store.Store) error {
		d, err := tx.LockDeal(ctx, deal.ID)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && d == nil) {
			return notFoundError("deal not found")
		}
		if err != nil {
			return fmt.Errorf("failed to lock deal: %w", err)
		}
		current = d
		if d.Locked {
			return conflictError(fmt.Sprintf("deal %d is locked", d.ID))
		}
		from = d.Stage
		if from == stage.Name {
			return nil
		}
		if err := tx.UpdateDealStage(ctx, d.ID, stage.Name, now); err != nil {
			return fmt.Errorf("failed to update deal stage: %w", err)
		}
		if err := tx.RecordStageChange(ctx, &model.StageChange{
			DealID:    d.ID,
			CompanyID: d.CompanyID,
			FromStage: from,
			ToStage:   stage.Name,
			ActorID:   in.ActingUserID,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("failed to record stage change: %w", err)
		}
		return nil
	})
	var conflict conflictError
	if errors.As(err, &conflict) {
		return nil, s.reject(ctx, current, in, err)
	}
	if err != nil {
		return nil, err
	}
	if from == stage.Name {
		return current, nil
	}

	deal = current
	deal.Stage = stage.Name
	deal.UpdatedAt = now

	s.logger.Info("deal moved", "deal_id", deal.ID, "from", from, "to", stage.Name, "actor_id", in.ActingUserID)
	s.recordAndPublish(ctx, events.TopicDealStageChanged, deal, events.DealStageChanged{
		Deal:      deal,
		FromStage: from,
		ToStage:   stage.Name,
		ActorID:   in.ActingUserID,
	})

	return deal, nil
}

// reject publishes a DealMoveRejected event and returns err unchanged.
func (s *DealServer) reject(ctx context.Context, deal *model.Deal, in moveStageInput, err error) error {
	s.recordAndPublish(ctx, events.TopicDealMoveRejected, deal, events.DealMoveRejected{
		DealID:    deal.ID,
		CompanyID: deal.CompanyID,
		StageID:   in.StageID,
		ActorID:   in.ActingUserID,
		Reason:    err.Error(),
	})
	return err
}

// listStages returns a company's stages, active only unless all is set.
func (s *DealServer) listStages(ctx context.Context, companyID int64, all bool) ([]*model.Stage, error) {
	stages, err := s.store.ListStages(ctx, companyID, all)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	if !all {
		stages = model.ActiveStages(stages)
	}
	if stages == nil {
		stages = []*model.Stage{}
	}
	return stages, nil
}
