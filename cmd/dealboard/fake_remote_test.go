package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/alfredjeanlab/dealboard/internal/model"
)

// fakeRemote is an in-memory server for one company's board.
type fakeRemote struct {
	mu        sync.Mutex
	stages    []*model.Stage
	deals     []*model.Deal
	updateErr error
	listErr   error

	updates   []stageUpdate
	listCalls int
}

type stageUpdate struct {
	DealID, StageID, ActorID, CompanyID int64
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		stages: []*model.Stage{
			{ID: 10, CompanyID: 1, Name: "Lead", Position: 1, Active: true},
			{ID: 11, CompanyID: 1, Name: "Qualified", Position: 2, Active: true},
			{ID: 12, CompanyID: 1, Name: "Won", Position: 3, Active: true},
		},
		deals: []*model.Deal{
			{ID: 1, CompanyID: 1, Name: "Acme", Stage: "Lead"},
			{ID: 2, CompanyID: 1, Name: "Globex", Stage: "Qualified"},
			{ID: 3, CompanyID: 1, Name: "Initech", Stage: "Lead", Locked: true},
		},
	}
}

func (f *fakeRemote) ListDeals(_ context.Context, companyID int64) ([]*model.Deal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*model.Deal
	for _, d := range f.deals {
		if d.CompanyID == companyID {
			out = append(out, d.Clone())
		}
	}
	return out, nil
}

func (f *fakeRemote) ListStages(_ context.Context, companyID int64) ([]*model.Stage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Stage
	for _, s := range f.stages {
		if s.CompanyID == companyID {
			c := *s
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeRemote) UpdateStage(_ context.Context, dealID, stageID, actingUserID, companyID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, stageUpdate{dealID, stageID, actingUserID, companyID})
	if f.updateErr != nil {
		return f.updateErr
	}
	var name string
	for _, s := range f.stages {
		if s.ID == stageID {
			name = s.Name
		}
	}
	for _, d := range f.deals {
		if d.ID == dealID {
			d.Stage = name
			return nil
		}
	}
	return fmt.Errorf("deal %d not found", dealID)
}

func (f *fakeRemote) stageOf(dealID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deals {
		if d.ID == dealID {
			return d.Stage
		}
	}
	return ""
}

func (f *fakeRemote) setStage(dealID int64, stage string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deals {
		if d.ID == dealID {
			d.Stage = stage
		}
	}
}

func (f *fakeRemote) recordedUpdates() []stageUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stageUpdate(nil), f.updates...)
}
