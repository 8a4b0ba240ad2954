// Package events defines the pipeline event topics and the publisher and
// subscriber abstractions used to move them over NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/alfredjeanlab/dealboard/internal/model"
)

// Event topic constants
const (
	// TopicAll matches every pipeline topic.
	TopicAll = "deals.>"

	// TopicDealEvents matches every deal topic.
	TopicDealEvents = "deals.deal.*"

	TopicDealStageChanged = "deals.deal.stage_changed"
	TopicDealMoveRejected = "deals.deal.move_rejected"

	// TopicNotification carries board toasts so other sessions can mirror them.
	TopicNotification = "deals.notification"
)

// DealStageChanged is published after the server accepts a stage update.
type DealStageChanged struct {
	Deal      *model.Deal `json:"deal"`
	FromStage string      `json:"from_stage"`
	ToStage   string      `json:"to_stage"`
	ActorID   int64       `json:"actor_id,omitempty"`
}

// Company returns the company owning the moved deal.
func (e DealStageChanged) Company() int64 {
	if e.Deal == nil {
		return 0
	}
	return e.Deal.CompanyID
}

// DealMoveRejected is published when the server refuses a stage update.
type DealMoveRejected struct {
	DealID    int64  `json:"deal_id"`
	CompanyID int64  `json:"company_id"`
	StageID   int64  `json:"stage_id"`
	ActorID   int64  `json:"actor_id,omitempty"`
	Reason    string `json:"reason"`
}

// Company returns the company owning the rejected deal.
func (e DealMoveRejected) Company() int64 { return e.CompanyID }

// Scoped is implemented by events that belong to one company. Bus
// publishers append the company to the subject so subscribers can filter
// on it.
type Scoped interface {
	Company() int64
}

// Subject returns the bus subject for event on topic: the topic followed by
// the event's company, or the bare topic for unscoped events.
func Subject(topic string, event any) string {
	if s, ok := event.(Scoped); ok && s.Company() > 0 {
		return topic + "." + strconv.FormatInt(s.Company(), 10)
	}
	return topic
}

// CompanyFilter returns a subscription subject matching topic for one
// company. A companyID of 0 matches every company.
func CompanyFilter(topic string, companyID int64) string {
	if companyID <= 0 {
		return topic + ".*"
	}
	return topic + "." + strconv.FormatInt(companyID, 10)
}

// DecodeMoveRejected parses a raw DealMoveRejected payload.
func DecodeMoveRejected(data []byte) (*DealMoveRejected, error) {
	var e DealMoveRejected
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decoding move rejection: %w", err)
	}
	if e.DealID == 0 {
		return nil, fmt.Errorf("decoding move rejection: missing deal id")
	}
	return &e, nil
}

// DecodeStageChanged parses a raw DealStageChanged payload.
func DecodeStageChanged(data []byte) (*DealStageChanged, error) {
	var e DealStageChanged
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decoding stage change: %w", err)
	}
	if e.Deal == nil {
		return nil, fmt.Errorf("decoding stage change: missing deal")
	}
	return &e, nil
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
