package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AbdallahFarid/ocr2/config"
	"github.com/AbdallahFarid/ocr2/models"
	"github.com/AbdallahFarid/ocr2/validation"
)

// ErrTemplateInvalid is returned when a template is rejected at publish
// time. Malformed templates are never encountered mid-pipeline.
var ErrTemplateInvalid = errors.New("template invalid")

var knownGrammars = map[string]bool{
	"date": true, "amount": true, "amount_words": true, "cheque_number": true,
	"name": true, "currency": true, "iban": true, "bank_name": true,
}

// TemplateRegistry holds the published BankTemplate versions as an immutable
// snapshot behind an atomic pointer. Reads never block on a concurrent
// publish; a document resolves its template once at classification time and
// keeps that snapshot for its entire run.
type TemplateRegistry struct {
	snap  atomic.Pointer[templateSnapshot]
	store TemplateStore // optional persistence, nil in tests
	mu    sync.Mutex    // serializes publishes
}

type templateSnapshot struct {
	// versions holds the full append-only history per bank, oldest first.
	versions map[string][]*models.BankTemplate
	generic  *models.BankTemplate
}

// NewTemplateRegistry creates a registry seeded with the built-in generic
// template, so the generic path can always process any cheque.
func NewTemplateRegistry(store TemplateStore) *TemplateRegistry {
	r := &TemplateRegistry{store: store}
	r.snap.Store(&templateSnapshot{
		versions: map[string][]*models.BankTemplate{},
		generic:  GenericTemplate(),
	})
	return r
}

// LoadPersisted replays the persisted version history into the snapshot.
func (r *TemplateRegistry) LoadPersisted(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	versions, err := r.store.ListVersions(ctx)
	if err != nil {
		return fmt.Errorf("load template versions: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.snap.Load()
	next := cur.clone()
	for _, tpl := range versions {
		next.versions[tpl.Bank] = append(next.versions[tpl.Bank], tpl)
	}
	r.snap.Store(next)
	return nil
}

// Publish validates and appends a new template version. The new version
// takes effect only for documents ingested after publication; in-flight
// documents keep the snapshot they resolved.
func (r *TemplateRegistry) Publish(ctx context.Context, tpl models.BankTemplate) (*models.BankTemplate, error) {
	if err := validateTemplate(&tpl); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateInvalid, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	tpl.Version = len(cur.versions[tpl.Bank]) + 1
	tpl.PublishedAt = time.Now().UTC()

	if r.store != nil {
		if err := r.store.SaveVersion(ctx, &tpl); err != nil {
			return nil, fmt.Errorf("persist template version: %w", err)
		}
	}

	next := cur.clone()
	next.versions[tpl.Bank] = append(next.versions[tpl.Bank], &tpl)
	r.snap.Store(next)
	return &tpl, nil
}

// Resolve returns the latest version for the bank, or the generic template
// when the bank is unknown or has no published template.
func (r *TemplateRegistry) Resolve(bank string) *models.BankTemplate {
	snap := r.snap.Load()
	if vs := snap.versions[bank]; len(vs) > 0 {
		return vs[len(vs)-1]
	}
	return snap.generic
}

// ResolveVersion returns one specific published version, used when
// re-validating corrected documents against the template they were
// processed with.
func (r *TemplateRegistry) ResolveVersion(bank string, version int) *models.BankTemplate {
	snap := r.snap.Load()
	vs := snap.versions[bank]
	for _, tpl := range vs {
		if tpl.Version == version {
			return tpl
		}
	}
	return snap.generic
}

// Banks lists the banks with at least one published template.
func (r *TemplateRegistry) Banks() []string {
	snap := r.snap.Load()
	banks := make([]string, 0, len(snap.versions))
	for b := range snap.versions {
		banks = append(banks, b)
	}
	return banks
}

func (s *templateSnapshot) clone() *templateSnapshot {
	next := &templateSnapshot{
		versions: make(map[string][]*models.BankTemplate, len(s.versions)),
		generic:  s.generic,
	}
	for bank, vs := range s.versions {
		next.versions[bank] = append([]*models.BankTemplate(nil), vs...)
	}
	return next
}

func validateTemplate(tpl *models.BankTemplate) error {
	if tpl.Bank == "" {
		return errors.New("bank code required")
	}
	if len(tpl.Fields) == 0 {
		return errors.New("at least one field required")
	}
	for name, spec := range tpl.Fields {
		if !knownGrammars[spec.Grammar] {
			return fmt.Errorf("field %s: unknown grammar %q", name, spec.Grammar)
		}
		if spec.Anchor != nil {
			for _, v := range spec.Anchor {
				if v < 0 || v > 1 {
					return fmt.Errorf("field %s: anchor coordinates must be normalized to [0,1]", name)
				}
			}
		}
	}
	for _, req := range tpl.Required {
		if _, ok := tpl.Fields[req]; !ok {
			return fmt.Errorf("required field %s not defined", req)
		}
	}
	if _, err := validation.CompileParams(tpl.Rules); err != nil {
		return fmt.Errorf("rules: %v", err)
	}
	return nil
}

// DefaultRequired is the required-field set used when a template does not
// override it.
var DefaultRequired = []string{
	models.FieldDate,
	models.FieldAmountNumeric,
	models.FieldChequeNumber,
	models.FieldPayeeName,
}

// GenericTemplate is the anchor-free fallback used for unknown banks. The
// locator searches by key phrase and content shape instead of fixed
// geometry.
func GenericTemplate() *models.BankTemplate {
	return &models.BankTemplate{
		Bank:    models.BankUnknown,
		Version: 1,
		Fields: map[string]models.FieldSpec{
			models.FieldDate: {
				Grammar:    "date",
				KeyPhrases: []string{"date", "التاريخ"},
			},
			models.FieldAmountNumeric: {
				Grammar:    "amount",
				KeyPhrases: []string{"egp", "amount", "المبلغ"},
			},
			models.FieldAmountWords: {
				Grammar:    "amount_words",
				KeyPhrases: []string{"the sum of", "مبلغ وقدره"},
			},
			models.FieldChequeNumber: {
				Grammar:    "cheque_number",
				Engine:     "numeric",
				KeyPhrases: []string{"no.", "cheque no", "رقم الشيك"},
			},
			models.FieldPayeeName: {
				Grammar:    "name",
				KeyPhrases: []string{"pay to", "pay against this cheque", "ادفعوا بموجب هذا الشيك"},
			},
			models.FieldCurrency: {
				Grammar:    "currency",
				KeyPhrases: []string{"egp", "currency"},
			},
		},
		Required: DefaultRequired,
		Rules: models.ValidationParams{
			DateMinYear:    2000,
			DateMaxYear:    2100,
			MinAmount:      "0.01",
			MaxAmount:      "1000000000",
			ChequeLenMin:   6,
			ChequeLenMax:   16,
			Currencies:     []string{"EGP", "USD", "EUR", "AED", "SAR"},
			PayeeThreshold: 0.85,
		},
	}
}

// chequeNumberPatterns are the per-bank machine-readable line formats used
// to seed templates for the supported banks.
var chequeNumberPatterns = map[string]string{
	"QNB":         `^\d{8,12}$`,
	"FABMISR":     `^\d{8,12}$`,
	"BANQUE_MISR": `^\d{6,}$`,
	"CIB":         `^\d{12}$`,
	"AAIB":        `^\d{9,10}$`,
	"NBE":         `^\d{14}$`,
}

// DefaultRules builds the baseline gate parameters from the configured
// operating knobs.
func DefaultRules(cfg config.Config) models.ValidationParams {
	return models.ValidationParams{
		DateMinYear:    cfg.DateMinYear,
		DateMaxYear:    cfg.DateMaxYear,
		MinAmount:      "0.01",
		MaxAmount:      cfg.MaxAmount,
		ChequeLenMin:   6,
		ChequeLenMax:   16,
		Currencies:     cfg.Currencies,
		PayeeThreshold: cfg.PayeeThreshold,
	}
}

// SeedTemplates publishes a first template version for every supported bank
// when the registry is empty. Anchors mirror the standard cheque layout for
// each bank's current stationery; rules are the configured baseline plus the
// bank's machine-line pattern.
func SeedTemplates(ctx context.Context, r *TemplateRegistry, rules models.ValidationParams) error {
	anchor := func(x, y, w, h float64) *models.RegionNorm {
		rn := models.RegionNorm{x, y, w, h}
		return &rn
	}
	for bank, pattern := range chequeNumberPatterns {
		if len(r.snap.Load().versions[bank]) > 0 {
			continue
		}
		bankRules := rules
		bankRules.ChequePattern = pattern
		tpl := models.BankTemplate{
			Bank: bank,
			Fields: map[string]models.FieldSpec{
				models.FieldBankName:      {Grammar: "bank_name", Anchor: anchor(0.02, 0.02, 0.25, 0.12)},
				models.FieldDate:          {Grammar: "date", Anchor: anchor(0.68, 0.05, 0.28, 0.12)},
				models.FieldAmountNumeric: {Grammar: "amount", Anchor: anchor(0.66, 0.38, 0.30, 0.14)},
				models.FieldAmountWords:   {Grammar: "amount_words", Anchor: anchor(0.08, 0.40, 0.55, 0.16)},
				models.FieldChequeNumber:  {Grammar: "cheque_number", Engine: "numeric", Anchor: anchor(0.30, 0.82, 0.40, 0.14)},
				models.FieldPayeeName:     {Grammar: "name", Anchor: anchor(0.12, 0.22, 0.60, 0.14)},
				models.FieldCurrency:      {Grammar: "currency", Anchor: anchor(0.90, 0.38, 0.09, 0.12)},
			},
			Required: DefaultRequired,
			Rules:    bankRules,
		}
		if _, err := r.Publish(ctx, tpl); err != nil {
			return fmt.Errorf("seed template %s: %w", bank, err)
		}
	}
	return nil
}
