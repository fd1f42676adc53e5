package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RoutingOutcome is the routing decision for a document
type RoutingOutcome string

const (
	OutcomeAutoApprove RoutingOutcome = "auto_approve"
	OutcomeReview      RoutingOutcome = "review"
)

// ReasonList is an ordered list of machine-readable reason codes.
type ReasonList []string

// Value implements driver.Valuer for JSONB
func (r ReasonList) Value() (driver.Value, error) {
	if r == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal([]string(r))
}

// Scan implements sql.Scanner for JSONB
func (r *ReasonList) Scan(value interface{}) error {
	if value == nil {
		*r = ReasonList{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	if len(bytes) == 0 {
		*r = ReasonList{}
		return nil
	}
	return json.Unmarshal(bytes, (*[]string)(r))
}

// RoutingDecision is attached to a document once all fields are validated.
// Decisions are immutable; applying a correction produces a new decision
// that references the prior one via PriorID.
type RoutingDecision struct {
	ID                uuid.UUID      `json:"id"`
	DocumentID        uuid.UUID      `json:"document_id"`
	Outcome           RoutingOutcome `json:"outcome"`
	STP               bool           `json:"stp"`
	OverallConfidence float64        `json:"overall_confidence"`
	LowConfFields     []string       `json:"low_conf_fields"`
	Reasons           ReasonList     `json:"reasons"`
	PriorID           *uuid.UUID     `json:"prior_id,omitempty"`
	DecidedAt         time.Time      `json:"decided_at"`
}

// StageRecord is one audit-ledger row for a completed pipeline stage,
// carrying the stage's intermediate artifact as recorded.
type StageRecord struct {
	ID         int64           `json:"id"`
	DocumentID uuid.UUID       `json:"document_id"`
	Stage      string          `json:"stage"`
	Payload    json.RawMessage `json:"payload"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// CorrectionEvent is a human override of one field's value on one document.
// Events are append-only and feed template refinement downstream.
type CorrectionEvent struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	Field      string    `json:"field"`
	Before     *string   `json:"before"`
	After      string    `json:"after"`
	ReviewerID string    `json:"reviewer_id"`
	Reason     *string   `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}
