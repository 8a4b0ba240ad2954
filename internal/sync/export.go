package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/dealboard/internal/model"
)

// Source is the read side of the store a snapshot is taken from.
// store.Store satisfies it.
type Source interface {
	ListStages(ctx context.Context, companyID int64, includeInactive bool) ([]*model.Stage, error)
	ListDeals(ctx context.Context, filter model.DealFilter) ([]*model.Deal, int, error)
	GetStageHistory(ctx context.Context, dealID int64) ([]*model.StageChange, error)
}

// Record types written after the header.
const (
	RecordStage       = "stage"
	RecordDeal        = "deal"
	RecordStageChange = "stage_change"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version      string    `json:"version"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	CompanyCount int       `json:"company_count"`
	StageCount   int       `json:"stage_count"`
	DealCount    int       `json:"deal_count"`
	ChangeCount  int       `json:"change_count"`
}

// Summary describes what an export contained.
type Summary struct {
	TakenAt   time.Time
	Companies int // distinct companies owning a stage or a deal
	Stages    int
	Deals     int
	Changes   int
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes every company's stages, deals and stage history from
// src as JSONL to w. Stages are ordered by company and position, deals by
// ID, and each deal's history follows in the order it happened.
func ExportJSONL(ctx context.Context, src Source, w io.Writer) (Summary, error) {
	stages, err := src.ListStages(ctx, 0, true)
	if err != nil {
		return Summary{}, fmt.Errorf("list stages: %w", err)
	}
	sort.SliceStable(stages, func(i, j int) bool {
		if stages[i].CompanyID != stages[j].CompanyID {
			return stages[i].CompanyID < stages[j].CompanyID
		}
		if stages[i].Position != stages[j].Position {
			return stages[i].Position < stages[j].Position
		}
		return stages[i].ID < stages[j].ID
	})

	deals, _, err := src.ListDeals(ctx, model.DealFilter{})
	if err != nil {
		return Summary{}, fmt.Errorf("list deals: %w", err)
	}
	sort.Slice(deals, func(i, j int) bool {
		return deals[i].ID < deals[j].ID
	})

	var changes []*model.StageChange
	for _, d := range deals {
		h, err := src.GetStageHistory(ctx, d.ID)
		if err != nil {
			return Summary{}, fmt.Errorf("get stage history for deal %d: %w", d.ID, err)
		}
		changes = append(changes, h...)
	}

	companies := make(map[int64]struct{})
	for _, s := range stages {
		companies[s.CompanyID] = struct{}{}
	}
	for _, d := range deals {
		companies[d.CompanyID] = struct{}{}
	}
	sum := Summary{
		TakenAt:   time.Now().UTC(),
		Companies: len(companies),
		Stages:    len(stages),
		Deals:     len(deals),
		Changes:   len(changes),
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:      "1",
		Type:         "header",
		Timestamp:    sum.TakenAt,
		CompanyCount: sum.Companies,
		StageCount:   sum.Stages,
		DealCount:    sum.Deals,
		ChangeCount:  sum.Changes,
	}); err != nil {
		return Summary{}, fmt.Errorf("encode header: %w", err)
	}

	for _, s := range stages {
		if err := enc.Encode(record{Type: RecordStage, Data: s}); err != nil {
			return Summary{}, fmt.Errorf("encode stage %d: %w", s.ID, err)
		}
	}
	for _, d := range deals {
		if err := enc.Encode(record{Type: RecordDeal, Data: d}); err != nil {
			return Summary{}, fmt.Errorf("encode deal %d: %w", d.ID, err)
		}
	}
	for _, c := range changes {
		if err := enc.Encode(record{Type: RecordStageChange, Data: c}); err != nil {
			return Summary{}, fmt.Errorf("encode stage change %d: %w", c.ID, err)
		}
	}

	return sum, nil
}

// records returns data without its header line, so two snapshots of the
// same pipeline taken at different times compare equal.
func records(data []byte) []byte {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return data[i+1:]
	}
	return nil
}
