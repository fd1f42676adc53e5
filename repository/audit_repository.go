package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AbdallahFarid/ocr2/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository persists the append-only audit ledger. None of the tables
// it writes are ever updated or deleted from.
type AuditRepository struct {
	db *pgxpool.Pool
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

// AppendStage records one completed pipeline stage with its intermediate
// artifact
func (r *AuditRepository) AppendStage(ctx context.Context, docID uuid.UUID, stage string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal stage payload: %w", err)
	}

	query := `
		INSERT INTO audit_stages (document_id, stage, payload, recorded_at)
		VALUES ($1, $2, $3, NOW())`

	_, err = r.db.Exec(ctx, query, docID, stage, data)
	return err
}

// AppendDecision records one routing decision
func (r *AuditRepository) AppendDecision(ctx context.Context, decision *models.RoutingDecision) error {
	query := `
		INSERT INTO routing_decisions (
			id, document_id, outcome, stp, overall_confidence,
			low_conf_fields, reasons, prior_id, decided_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(
		ctx, query,
		decision.ID,
		decision.DocumentID,
		decision.Outcome,
		decision.STP,
		decision.OverallConfidence,
		models.ReasonList(decision.LowConfFields),
		decision.Reasons,
		decision.PriorID,
		decision.DecidedAt,
	)

	return err
}

// AppendCorrection records one reviewer correction event
func (r *AuditRepository) AppendCorrection(ctx context.Context, event *models.CorrectionEvent) error {
	query := `
		INSERT INTO correction_events (
			id, document_id, field, before_value, after_value,
			reviewer_id, reason, corrected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(
		ctx, query,
		event.ID,
		event.DocumentID,
		event.Field,
		event.Before,
		event.After,
		event.ReviewerID,
		event.Reason,
		event.At,
	)

	return err
}

// ListStages retrieves the recorded stage artifacts for one document, oldest
// first
func (r *AuditRepository) ListStages(ctx context.Context, docID uuid.UUID) ([]*models.StageRecord, error) {
	query := `
		SELECT id, document_id, stage, payload, recorded_at
		FROM audit_stages
		WHERE document_id = $1
		ORDER BY recorded_at ASC, id ASC`

	rows, err := r.db.Query(ctx, query, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stages []*models.StageRecord
	for rows.Next() {
		rec := &models.StageRecord{}
		var payload []byte
		err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.Stage, &payload, &rec.RecordedAt)
		if err != nil {
			return nil, err
		}
		rec.Payload = json.RawMessage(payload)
		stages = append(stages, rec)
	}

	return stages, rows.Err()
}

// ListDecisions retrieves the decision chain for one document, oldest first
func (r *AuditRepository) ListDecisions(ctx context.Context, docID uuid.UUID) ([]*models.RoutingDecision, error) {
	query := `
		SELECT id, document_id, outcome, stp, overall_confidence,
			low_conf_fields, reasons, prior_id, decided_at
		FROM routing_decisions
		WHERE document_id = $1
		ORDER BY decided_at ASC`

	rows, err := r.db.Query(ctx, query, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decisions []*models.RoutingDecision
	for rows.Next() {
		d := &models.RoutingDecision{}
		var lowConf models.ReasonList
		err := rows.Scan(
			&d.ID,
			&d.DocumentID,
			&d.Outcome,
			&d.STP,
			&d.OverallConfidence,
			&lowConf,
			&d.Reasons,
			&d.PriorID,
			&d.DecidedAt,
		)
		if err != nil {
			return nil, err
		}
		d.LowConfFields = []string(lowConf)
		decisions = append(decisions, d)
	}

	return decisions, rows.Err()
}

// ListCorrections retrieves the correction history for one document, oldest
// first
func (r *AuditRepository) ListCorrections(ctx context.Context, docID uuid.UUID) ([]*models.CorrectionEvent, error) {
	query := `
		SELECT id, document_id, field, before_value, after_value,
			reviewer_id, reason, corrected_at
		FROM correction_events
		WHERE document_id = $1
		ORDER BY corrected_at ASC`

	rows, err := r.db.Query(ctx, query, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.CorrectionEvent
	for rows.Next() {
		event := &models.CorrectionEvent{}
		err := rows.Scan(
			&event.ID,
			&event.DocumentID,
			&event.Field,
			&event.Before,
			&event.After,
			&event.ReviewerID,
			&event.Reason,
			&event.At,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, rows.Err()
}
