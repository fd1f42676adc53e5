package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AbdallahFarid/ocr2/config"
	"github.com/AbdallahFarid/ocr2/models"
	"github.com/AbdallahFarid/ocr2/validation"
)

var (
	// ErrDocumentNotFound indicates the requested document does not exist
	ErrDocumentNotFound = errors.New("document not found")
	// ErrNotReviewable indicates the document is not in a correctable state
	ErrNotReviewable = errors.New("document is not under review")
	// ErrUnknownField indicates a correction targets a field the document
	// does not carry
	ErrUnknownField = errors.New("unknown field")
)

// Correction is one reviewer-supplied replacement value for a field.
type Correction struct {
	Field    string  `json:"field"`
	Value    string  `json:"value"`
	Reviewer string  `json:"reviewer"`
	Reason   *string `json:"reason,omitempty"`
}

// ReviewService serves the human review queue: listing, inspecting,
// correcting and finalizing documents that routing sent to review.
type ReviewService struct {
	docs      DocumentStore
	ledger    AuditLedger
	templates *TemplateRegistry
	cfg       config.Config
}

// ReviewServiceOption is a functional option for ReviewService
type ReviewServiceOption func(*ReviewService)

// ReviewWithDocumentStore sets the document store
func ReviewWithDocumentStore(d DocumentStore) ReviewServiceOption {
	return func(s *ReviewService) { s.docs = d }
}

// ReviewWithLedger sets the audit ledger
func ReviewWithLedger(l AuditLedger) ReviewServiceOption {
	return func(s *ReviewService) { s.ledger = l }
}

// ReviewWithTemplates sets the template registry
func ReviewWithTemplates(r *TemplateRegistry) ReviewServiceOption {
	return func(s *ReviewService) { s.templates = r }
}

// ReviewWithConfig sets the routing configuration
func ReviewWithConfig(cfg config.Config) ReviewServiceOption {
	return func(s *ReviewService) { s.cfg = cfg }
}

// NewReviewService creates a new review service
func NewReviewService(opts ...ReviewServiceOption) *ReviewService {
	s := &ReviewService{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListReviewQueue returns documents currently waiting on a reviewer.
func (s *ReviewService) ListReviewQueue(ctx context.Context, limit, offset int) ([]*models.Document, error) {
	status := models.StatusUnderReview
	return s.docs.List(ctx, &status, limit, offset)
}

// GetDocument returns one document with all field records and its latest
// decision.
func (s *ReviewService) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// Corrections returns the correction history for one document, oldest first,
// so downstream template-curation consumers can read the event stream.
func (s *ReviewService) Corrections(ctx context.Context, id uuid.UUID) ([]*models.CorrectionEvent, error) {
	if _, err := s.GetDocument(ctx, id); err != nil {
		return nil, err
	}
	return s.ledger.ListCorrections(ctx, id)
}

// AuditTrail is the full append-only history for one document: every stage
// artifact, the decision chain and the correction events.
type AuditTrail struct {
	Stages      []*models.StageRecord     `json:"stages"`
	Decisions   []*models.RoutingDecision `json:"decisions"`
	Corrections []*models.CorrectionEvent `json:"corrections"`
}

// GetAuditTrail assembles the recorded trail for one document.
func (s *ReviewService) GetAuditTrail(ctx context.Context, id uuid.UUID) (*AuditTrail, error) {
	if _, err := s.GetDocument(ctx, id); err != nil {
		return nil, err
	}
	stages, err := s.ledger.ListStages(ctx, id)
	if err != nil {
		return nil, err
	}
	decisions, err := s.ledger.ListDecisions(ctx, id)
	if err != nil {
		return nil, err
	}
	corrections, err := s.ledger.ListCorrections(ctx, id)
	if err != nil {
		return nil, err
	}
	return &AuditTrail{Stages: stages, Decisions: decisions, Corrections: corrections}, nil
}

// ApplyCorrections replaces field values on a document under review and
// re-runs validation and routing. Only the corrected fields are touched:
// their confidences become 1.0 (a human asserted the value) and they are
// re-validated against the exact template version the document was
// originally classified with, so a later template publish cannot change the
// outcome. Untouched fields keep their machine confidences and validation
// results. The new decision chains to the prior one.
func (s *ReviewService) ApplyCorrections(ctx context.Context, id uuid.UUID, corrections []Correction) (*models.Document, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.StatusUnderReview && doc.Status != models.StatusCorrected {
		return nil, ErrNotReviewable
	}
	if len(corrections) == 0 {
		return doc, nil
	}

	tpl := s.templates.ResolveVersion(doc.Bank, doc.TemplateVersion)
	gates, err := validation.CompileParams(tpl.Rules)
	if err != nil {
		return nil, fmt.Errorf("compile gate params: %w", err)
	}

	// Events are staged and appended only after the corrected document is
	// persisted, so the ledger never carries corrections that were never
	// applied to the stored document.
	now := time.Now().UTC()
	events := make([]*models.CorrectionEvent, 0, len(corrections))
	for _, c := range corrections {
		f := doc.Field(c.Field)
		if f == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, c.Field)
		}

		before := f.NormalizedValue
		value := c.Value
		f.NormalizedValue = &value
		f.Corrected = true
		f.ParseErr = ""
		f.LocatorConfidence = 1.0
		f.RecognitionConfidence = 1.0
		f.ParseConfidence = 1.0

		res := validation.ValidateField(f.Name, value, gates)
		f.Validation = models.ValidationResult{OK: res.OK, Code: string(res.Code)}
		f.FieldConfidence = validation.FieldConfidence(
			f.LocatorConfidence, f.RecognitionConfidence, f.ParseConfidence)

		events = append(events, &models.CorrectionEvent{
			ID:         uuid.New(),
			DocumentID: doc.ID,
			Field:      c.Field,
			Before:     before,
			After:      value,
			ReviewerID: c.Reviewer,
			Reason:     c.Reason,
			At:         now,
		})
	}

	required := tpl.Required
	if len(required) == 0 {
		required = DefaultRequired
	}
	route := DecideRoute(doc, required, s.cfg.GlobalThreshold)
	decision := &models.RoutingDecision{
		ID:                uuid.New(),
		DocumentID:        doc.ID,
		Outcome:           route.Outcome,
		STP:               false, // touched by a human, never straight-through
		OverallConfidence: route.OverallConfidence,
		LowConfFields:     route.LowConfFields,
		Reasons:           route.Reasons,
		DecidedAt:         now,
	}
	if doc.Decision != nil {
		prior := doc.Decision.ID
		decision.PriorID = &prior
	}
	doc.Decision = decision
	doc.Status = models.StatusCorrected

	if err := s.docs.Update(ctx, doc); err != nil {
		return nil, err
	}
	if s.ledger != nil {
		for _, event := range events {
			if err := s.ledger.AppendCorrection(ctx, event); err != nil {
				return nil, fmt.Errorf("append correction: %w", err)
			}
		}
		if err := s.ledger.AppendDecision(ctx, decision); err != nil {
			return nil, fmt.Errorf("append decision: %w", err)
		}
	}
	return doc, nil
}

// Finalize marks a reviewed document as done, making it exportable.
// Finalizing an already finalized document is a no-op.
func (s *ReviewService) Finalize(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status == models.StatusFinalized {
		return doc, nil
	}
	if doc.Status != models.StatusUnderReview && doc.Status != models.StatusCorrected {
		return nil, ErrNotReviewable
	}
	doc.Status = models.StatusFinalized
	if err := s.docs.Update(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}
