package repository

import (
	"context"

	"github.com/AbdallahFarid/ocr2/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TemplateRepository persists published template versions. The table is
// append-only: one row per (bank, version), never updated.
type TemplateRepository struct {
	db *pgxpool.Pool
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// SaveVersion inserts one published template version
func (r *TemplateRepository) SaveVersion(ctx context.Context, tpl *models.BankTemplate) error {
	payload := models.TemplatePayload{
		Fields:   tpl.Fields,
		Required: tpl.Required,
		Rules:    tpl.Rules,
	}

	query := `
		INSERT INTO bank_templates (bank, version, payload, published_at)
		VALUES ($1, $2, $3, $4)`

	_, err := r.db.Exec(ctx, query, tpl.Bank, tpl.Version, payload, tpl.PublishedAt)
	return err
}

// ListVersions retrieves all published template versions in publish order
func (r *TemplateRepository) ListVersions(ctx context.Context) ([]*models.BankTemplate, error) {
	query := `
		SELECT bank, version, payload, published_at
		FROM bank_templates
		ORDER BY bank ASC, version ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []*models.BankTemplate
	for rows.Next() {
		tpl := &models.BankTemplate{}
		payload := models.TemplatePayload{}
		err := rows.Scan(&tpl.Bank, &tpl.Version, &payload, &tpl.PublishedAt)
		if err != nil {
			return nil, err
		}
		tpl.Fields = payload.Fields
		tpl.Required = payload.Required
		tpl.Rules = payload.Rules
		templates = append(templates, tpl)
	}

	return templates, rows.Err()
}
