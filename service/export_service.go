package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AbdallahFarid/ocr2/models"
)

// ErrNotExportable indicates the document has not reached a terminal
// approved state
var ErrNotExportable = errors.New("document is not exportable")

// ExportRecord is the downstream payload for one approved document. Field
// order is fixed by the struct and every slice is emitted in canonical field
// order, so exporting the same document twice yields byte-identical JSON.
// Processing timestamps are deliberately excluded.
type ExportRecord struct {
	DocumentID        string        `json:"document_id"`
	Bank              string        `json:"bank"`
	TemplateVersion   int           `json:"template_version"`
	Status            string        `json:"status"`
	Outcome           string        `json:"outcome"`
	STP               bool          `json:"stp"`
	OverallConfidence float64       `json:"overall_confidence"`
	Fields            []ExportField `json:"fields"`
	Reasons           []string      `json:"reasons"`
	AuditRef          string        `json:"audit_ref"`
}

// ExportField is one extracted field in the export payload.
type ExportField struct {
	Name       string  `json:"name"`
	Value      *string `json:"value"`
	Confidence float64 `json:"confidence"`
	Valid      bool    `json:"valid"`
	Corrected  bool    `json:"corrected"`
}

// ExportService serializes approved documents for downstream systems.
type ExportService struct {
	docs DocumentStore
}

// NewExportService creates a new export service
func NewExportService(docs DocumentStore) *ExportService {
	return &ExportService{docs: docs}
}

// Export builds the payload for one document. Only auto-approved and
// finalized documents may leave the system. The first successful export
// stamps ExportedAt; re-exporting returns the same bytes without touching
// the record again.
func (s *ExportService) Export(ctx context.Context, id uuid.UUID) ([]byte, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	if !doc.Status.Exportable() {
		return nil, fmt.Errorf("%w: status %s", ErrNotExportable, doc.Status)
	}

	payload, err := json.Marshal(buildExportRecord(doc))
	if err != nil {
		return nil, fmt.Errorf("marshal export record: %w", err)
	}

	if doc.ExportedAt == nil {
		now := time.Now().UTC()
		doc.ExportedAt = &now
		if err := s.docs.Update(ctx, doc); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

func buildExportRecord(doc *models.Document) ExportRecord {
	rec := ExportRecord{
		DocumentID:      doc.ID.String(),
		Bank:            doc.Bank,
		TemplateVersion: doc.TemplateVersion,
		Status:          string(doc.Status),
		Fields:          make([]ExportField, 0, len(doc.Fields)),
		Reasons:         []string{},
		AuditRef:        "/api/documents/" + doc.ID.String() + "/audit",
	}
	if doc.Decision != nil {
		rec.Outcome = string(doc.Decision.Outcome)
		rec.STP = doc.Decision.STP
		rec.OverallConfidence = doc.Decision.OverallConfidence
		if len(doc.Decision.Reasons) > 0 {
			rec.Reasons = append(rec.Reasons, doc.Decision.Reasons...)
		}
	}
	for _, f := range doc.Fields {
		rec.Fields = append(rec.Fields, ExportField{
			Name:       f.Name,
			Value:      f.NormalizedValue,
			Confidence: f.FieldConfidence,
			Valid:      f.Validation.OK,
			Corrected:  f.Corrected,
		})
	}
	return rec
}
