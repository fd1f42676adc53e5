package models

import (
	"time"

	"github.com/google/uuid"
)

// DocumentStatus represents the lifecycle status of a cheque document
type DocumentStatus string

const (
	StatusReceived        DocumentStatus = "received"
	StatusRejected        DocumentStatus = "rejected"
	StatusLocated         DocumentStatus = "located"
	StatusExtracted       DocumentStatus = "extracted"
	StatusParsed          DocumentStatus = "parsed"
	StatusValidated       DocumentStatus = "validated"
	StatusAutoApproved    DocumentStatus = "auto_approved"
	StatusUnderReview     DocumentStatus = "under_review"
	StatusCorrected       DocumentStatus = "corrected"
	StatusFinalized       DocumentStatus = "finalized"
	StatusProcessingError DocumentStatus = "processing_error"
)

// BankUnknown is the bank code assigned when the classifier confidence is
// below the acceptance threshold and the generic template path is used.
const BankUnknown = "UNKNOWN"

// Terminal reports whether no further pipeline work will happen on a
// document in this status.
func (s DocumentStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusAutoApproved, StatusFinalized, StatusProcessingError:
		return true
	}
	return false
}

// Exportable reports whether a document in this status may be exported.
func (s DocumentStatus) Exportable() bool {
	return s == StatusAutoApproved || s == StatusFinalized
}

// Document represents one physical cheque instance moving through the pipeline
type Document struct {
	ID               uuid.UUID        `json:"id"`
	Bank             string           `json:"bank"`
	BankConfidence   float64          `json:"bank_confidence"`
	TemplateVersion  int              `json:"template_version"`
	Status           DocumentStatus   `json:"status"`
	RejectReason     *string          `json:"reject_reason,omitempty"`
	OriginalFilename string           `json:"original_filename"`
	ImagePath        string           `json:"image_path"`
	Fields           FieldList        `json:"fields"`
	Decision         *RoutingDecision `json:"decision,omitempty"`
	IngestedAt       time.Time        `json:"ingested_at"`
	ProcessedAt      *time.Time       `json:"processed_at,omitempty"`
	ExportedAt       *time.Time       `json:"exported_at,omitempty"`
}

// Field returns the field record with the given name, or nil.
func (d *Document) Field(name string) *FieldRecord {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return &d.Fields[i]
		}
	}
	return nil
}
