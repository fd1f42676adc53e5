package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AbdallahFarid/ocr2/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentRepository handles database operations for cheque documents
type DocumentRepository struct {
	db *pgxpool.Pool
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a new document
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	decision, err := marshalDecision(doc.Decision)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO documents (
			id, bank, bank_confidence, template_version, status, reject_reason,
			original_filename, image_path, fields, decision,
			ingested_at, processed_at, exported_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = r.db.Exec(
		ctx, query,
		doc.ID,
		doc.Bank,
		doc.BankConfidence,
		doc.TemplateVersion,
		doc.Status,
		doc.RejectReason,
		doc.OriginalFilename,
		doc.ImagePath,
		doc.Fields,
		decision,
		doc.IngestedAt,
		doc.ProcessedAt,
		doc.ExportedAt,
	)

	return err
}

// Update replaces the mutable columns of a document
func (r *DocumentRepository) Update(ctx context.Context, doc *models.Document) error {
	decision, err := marshalDecision(doc.Decision)
	if err != nil {
		return err
	}

	query := `
		UPDATE documents SET
			bank = $2,
			bank_confidence = $3,
			template_version = $4,
			status = $5,
			reject_reason = $6,
			fields = $7,
			decision = $8,
			processed_at = $9,
			exported_at = $10
		WHERE id = $1`

	_, err = r.db.Exec(
		ctx, query,
		doc.ID,
		doc.Bank,
		doc.BankConfidence,
		doc.TemplateVersion,
		doc.Status,
		doc.RejectReason,
		doc.Fields,
		decision,
		doc.ProcessedAt,
		doc.ExportedAt,
	)

	return err
}

// GetByID retrieves a document by ID, or nil when it does not exist
func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc := &models.Document{}
	var decision []byte

	query := `
		SELECT id, bank, bank_confidence, template_version, status, reject_reason,
			original_filename, image_path, fields, decision,
			ingested_at, processed_at, exported_at
		FROM documents
		WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&doc.ID,
		&doc.Bank,
		&doc.BankConfidence,
		&doc.TemplateVersion,
		&doc.Status,
		&doc.RejectReason,
		&doc.OriginalFilename,
		&doc.ImagePath,
		&doc.Fields,
		&decision,
		&doc.IngestedAt,
		&doc.ProcessedAt,
		&doc.ExportedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := unmarshalDecision(decision, doc); err != nil {
		return nil, err
	}

	return doc, nil
}

// List retrieves documents, optionally filtered by status, newest first
func (r *DocumentRepository) List(ctx context.Context, status *models.DocumentStatus, limit, offset int) ([]*models.Document, error) {
	query := `
		SELECT id, bank, bank_confidence, template_version, status, reject_reason,
			original_filename, image_path, fields, decision,
			ingested_at, processed_at, exported_at
		FROM documents`

	args := []interface{}{}
	argIndex := 1

	if status != nil {
		query += fmt.Sprintf(" WHERE status = $%d", argIndex)
		args = append(args, *status)
		argIndex++
	}

	query += " ORDER BY ingested_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, limit)
		argIndex++
		if offset > 0 {
			query += fmt.Sprintf(" OFFSET $%d", argIndex)
			args = append(args, offset)
		}
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc := &models.Document{}
		var decision []byte
		err := rows.Scan(
			&doc.ID,
			&doc.Bank,
			&doc.BankConfidence,
			&doc.TemplateVersion,
			&doc.Status,
			&doc.RejectReason,
			&doc.OriginalFilename,
			&doc.ImagePath,
			&doc.Fields,
			&decision,
			&doc.IngestedAt,
			&doc.ProcessedAt,
			&doc.ExportedAt,
		)
		if err != nil {
			return nil, err
		}
		if err := unmarshalDecision(decision, doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

func marshalDecision(d *models.RoutingDecision) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

func unmarshalDecision(raw []byte, doc *models.Document) error {
	if len(raw) == 0 {
		return nil
	}
	doc.Decision = &models.RoutingDecision{}
	return json.Unmarshal(raw, doc.Decision)
}
