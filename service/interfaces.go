package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/AbdallahFarid/ocr2/models"
)

// DocumentStore persists documents with their field records and latest
// decision. The service layer depends on this interface, not on a concrete
// implementation.
type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	Update(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	List(ctx context.Context, status *models.DocumentStatus, limit, offset int) ([]*models.Document, error)
}

// AuditLedger is the append-only side-channel sink that records every
// intermediate artifact and decision. Implementations never overwrite; a
// correction appends a new snapshot.
type AuditLedger interface {
	AppendStage(ctx context.Context, docID uuid.UUID, stage string, payload interface{}) error
	AppendDecision(ctx context.Context, decision *models.RoutingDecision) error
	AppendCorrection(ctx context.Context, event *models.CorrectionEvent) error
	ListStages(ctx context.Context, docID uuid.UUID) ([]*models.StageRecord, error)
	ListDecisions(ctx context.Context, docID uuid.UUID) ([]*models.RoutingDecision, error)
	ListCorrections(ctx context.Context, docID uuid.UUID) ([]*models.CorrectionEvent, error)
}

// TemplateStore persists published template versions (append-only history).
type TemplateStore interface {
	SaveVersion(ctx context.Context, tpl *models.BankTemplate) error
	ListVersions(ctx context.Context) ([]*models.BankTemplate, error)
}
