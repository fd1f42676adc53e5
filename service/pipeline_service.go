package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AbdallahFarid/ocr2/config"
	"github.com/AbdallahFarid/ocr2/models"
	"github.com/AbdallahFarid/ocr2/ocr"
	"github.com/AbdallahFarid/ocr2/parser"
	"github.com/AbdallahFarid/ocr2/validation"
)

// ErrModelExhausted marks a model call that failed through its whole retry
// budget. The document transitions to processing_error rather than
// continuing with partial data.
var ErrModelExhausted = errors.New("model inference retries exhausted")

const retryInitialBackoff = 200 * time.Millisecond

// PipelineService runs the extraction-confidence pipeline end to end for one
// document: preflight → classify → locate → recognize → parse → validate →
// route, appending every intermediate artifact to the audit ledger.
// Documents are independent, so the service is safe for concurrent use
// across documents.
type PipelineService struct {
	classifier ocr.Classifier
	general    ocr.Recognizer
	pageLines  ocr.LineRecognizer
	numeric    ocr.Recognizer
	locator    *ocr.Locator
	templates  *TemplateRegistry
	docs       DocumentStore
	ledger     AuditLedger
	cfg        config.Config
}

// PipelineServiceOption is a functional option for PipelineService
type PipelineServiceOption func(*PipelineService)

// PipelineWithClassifier sets the bank classifier
func PipelineWithClassifier(c ocr.Classifier) PipelineServiceOption {
	return func(s *PipelineService) { s.classifier = c }
}

// PipelineWithGeneralRecognizer sets the general OCR engine
func PipelineWithGeneralRecognizer(r ocr.Recognizer) PipelineServiceOption {
	return func(s *PipelineService) { s.general = r }
}

// PipelineWithLineRecognizer sets the full-page line recognizer used by the
// locator's search path
func PipelineWithLineRecognizer(r ocr.LineRecognizer) PipelineServiceOption {
	return func(s *PipelineService) { s.pageLines = r }
}

// PipelineWithNumericRecognizer sets the fixed-font numeric-line engine
func PipelineWithNumericRecognizer(r ocr.Recognizer) PipelineServiceOption {
	return func(s *PipelineService) { s.numeric = r }
}

// PipelineWithLocator sets the field locator
func PipelineWithLocator(l *ocr.Locator) PipelineServiceOption {
	return func(s *PipelineService) { s.locator = l }
}

// PipelineWithTemplates sets the template registry
func PipelineWithTemplates(r *TemplateRegistry) PipelineServiceOption {
	return func(s *PipelineService) { s.templates = r }
}

// PipelineWithDocumentStore sets the document store
func PipelineWithDocumentStore(d DocumentStore) PipelineServiceOption {
	return func(s *PipelineService) { s.docs = d }
}

// PipelineWithLedger sets the audit ledger
func PipelineWithLedger(l AuditLedger) PipelineServiceOption {
	return func(s *PipelineService) { s.ledger = l }
}

// PipelineWithConfig sets the pipeline configuration
func PipelineWithConfig(cfg config.Config) PipelineServiceOption {
	return func(s *PipelineService) { s.cfg = cfg }
}

// NewPipelineService creates a new pipeline service
func NewPipelineService(opts ...PipelineServiceOption) *PipelineService {
	s := &PipelineService{locator: &ocr.Locator{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process runs all pipeline stages on one ingested document. Stages are
// strictly sequential; recognition and parsing fan out per field since the
// fields of one document are independent. Cancellation is honored at stage
// boundaries, leaving the ledger at the last completed stage.
//
// Rejection and review are expected outcomes, not errors; only
// infrastructure failure (retry exhaustion, store errors) returns an error,
// with the document left in processing_error.
func (s *PipelineService) Process(ctx context.Context, doc *models.Document, img image.Image) error {
	if s.docs == nil {
		return errors.New("document store not set")
	}
	if s.general == nil {
		return errors.New("general recognizer not set")
	}

	if err := s.run(ctx, doc, img); err != nil {
		doc.Status = models.StatusProcessingError
		if updateErr := s.docs.Update(ctx, doc); updateErr != nil {
			log.Printf("Warning: failed to persist processing_error for %s: %v", doc.ID, updateErr)
		}
		return err
	}
	return nil
}

func (s *PipelineService) run(ctx context.Context, doc *models.Document, img image.Image) error {
	// Stage 1: preflight gate.
	corrected, meta, err := ocr.Preflight(img, ocr.PreflightConfig{
		BlurThreshold: s.cfg.BlurThreshold,
		MinWidth:      s.cfg.MinWidth,
		MinHeight:     s.cfg.MinHeight,
		MaxDeskewDeg:  s.cfg.MaxDeskewDeg,
	})
	if err != nil {
		var pfErr *ocr.PreflightError
		if errors.As(err, &pfErr) {
			doc.Status = models.StatusRejected
			doc.RejectReason = &pfErr.Code
			s.appendStage(ctx, doc.ID, "preflight", map[string]interface{}{
				"rejected": true, "reason": pfErr.Code, "metric": pfErr.Metric,
			})
			return s.docs.Update(ctx, doc)
		}
		return fmt.Errorf("preflight: %w", err)
	}
	s.appendStage(ctx, doc.ID, "preflight", meta)
	if err := ctx.Err(); err != nil {
		return err
	}

	// Stage 2: template routing. An ingestion bank hint naming a
	// registered template wins; otherwise one-shot classification, with
	// anything below the acceptance threshold silently falling back to
	// the generic path so the pipeline can always make progress.
	bank, bankConf := models.BankUnknown, 0.0
	hinted := doc.Bank != "" && doc.Bank != models.BankUnknown &&
		s.templates.Resolve(doc.Bank).Bank == doc.Bank
	if hinted {
		bank, bankConf = doc.Bank, 1.0
	} else if s.classifier != nil {
		err = s.retryModel(ctx, "classify", func() error {
			var cErr error
			bank, bankConf, cErr = s.classifier.Classify(ctx, corrected)
			return cErr
		})
		if err != nil {
			return err
		}
		if bankConf < s.cfg.ClassifierThreshold || bank == "" {
			bank = models.BankUnknown
		}
	}
	tpl := s.templates.Resolve(bank)
	doc.Bank = tpl.Bank
	doc.BankConfidence = bankConf
	doc.TemplateVersion = tpl.Version
	s.appendStage(ctx, doc.ID, "classify", map[string]interface{}{
		"bank": doc.Bank, "confidence": bankConf,
		"template_version": tpl.Version, "hinted": hinted,
	})
	if err := ctx.Err(); err != nil {
		return err
	}

	// Stage 3: field location.
	var lines []ocr.TextLine
	if s.pageLines != nil && !allAnchored(tpl) {
		err = s.retryModel(ctx, "page_lines", func() error {
			var lErr error
			lines, lErr = s.pageLines.RecognizeLines(ctx, corrected)
			return lErr
		})
		if err != nil {
			return err
		}
	}
	located, err := s.locator.Locate(ctx, corrected, tpl, lines)
	if err != nil {
		return fmt.Errorf("locate: %w", err)
	}
	doc.Status = models.StatusLocated
	s.appendStage(ctx, doc.ID, "locate", located)
	if err := ctx.Err(); err != nil {
		return err
	}

	// Stage 4: recognition, fanned out per field.
	fields, err := s.recognizeFields(ctx, corrected, tpl, located)
	if err != nil {
		return err
	}
	doc.Fields = fields
	doc.Status = models.StatusExtracted
	s.appendStage(ctx, doc.ID, "recognize", doc.Fields)
	if err := ctx.Err(); err != nil {
		return err
	}

	// Stage 5: parsing and normalization, plus the words/numeric
	// amount cross-check.
	s.parseFields(doc, tpl)
	doc.Status = models.StatusParsed
	s.appendStage(ctx, doc.ID, "parse", doc.Fields)
	if err := ctx.Err(); err != nil {
		return err
	}

	// Stage 6: validation gates.
	gates, err := validation.CompileParams(tpl.Rules)
	if err != nil {
		// Publish-time validation makes this unreachable; guard anyway.
		return fmt.Errorf("compile gate params: %w", err)
	}
	validateFields(doc, gates)
	doc.Status = models.StatusValidated
	s.appendStage(ctx, doc.ID, "validate", doc.Fields)
	if err := ctx.Err(); err != nil {
		return err
	}

	// Stage 7: routing.
	required := tpl.Required
	if len(required) == 0 {
		required = DefaultRequired
	}
	route := DecideRoute(doc, required, s.cfg.GlobalThreshold)
	decision := &models.RoutingDecision{
		ID:                uuid.New(),
		DocumentID:        doc.ID,
		Outcome:           route.Outcome,
		STP:               route.STP,
		OverallConfidence: route.OverallConfidence,
		LowConfFields:     route.LowConfFields,
		Reasons:           route.Reasons,
		DecidedAt:         time.Now().UTC(),
	}
	doc.Decision = decision
	if route.Outcome == models.OutcomeAutoApprove {
		doc.Status = models.StatusAutoApproved
	} else {
		doc.Status = models.StatusUnderReview
	}
	now := time.Now().UTC()
	doc.ProcessedAt = &now

	if s.ledger != nil {
		if err := s.ledger.AppendDecision(ctx, decision); err != nil {
			return fmt.Errorf("append decision: %w", err)
		}
	}
	return s.docs.Update(ctx, doc)
}

// recognizeFields runs multi-sample voting recognition for every located
// field concurrently. A field with no region keeps zero confidences all the
// way down; it is represented explicitly, never skipped.
func (s *PipelineService) recognizeFields(ctx context.Context, img image.Image, tpl *models.BankTemplate, located map[string]ocr.Located) ([]models.FieldRecord, error) {
	order := fieldOrder(tpl)
	fields := make([]models.FieldRecord, len(order))
	errs := make([]error, len(order))

	var wg sync.WaitGroup
	for i, name := range order {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			fields[i], errs[i] = s.recognizeField(ctx, img, name, tpl.Fields[name], located[name])
		}(i, name)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return fields, nil
}

func (s *PipelineService) recognizeField(ctx context.Context, img image.Image, name string, spec models.FieldSpec, loc ocr.Located) (models.FieldRecord, error) {
	f := models.FieldRecord{
		Name:              name,
		LocatorConfidence: loc.Confidence,
		SourceRegion:      loc.Region,
	}
	if loc.Region == nil || loc.Confidence == 0 {
		// No detected region: all downstream confidences stay 0.
		f.LocatorConfidence = 0
		return f, nil
	}

	rec := s.general
	if spec.Engine == "numeric" && s.numeric != nil {
		rec = s.numeric
	}

	var vote ocr.VoteResult
	err := s.retryModel(ctx, "recognize:"+name, func() error {
		var vErr error
		vote, vErr = ocr.RecognizeRegion(ctx, rec, img, *loc.Region, ocr.VoteConfig{
			Samples:  s.cfg.VoteSamples,
			TieBreak: s.cfg.VoteTieBreak,
		})
		return vErr
	})
	if err != nil {
		return f, err
	}

	f.RawText = vote.Text
	f.RecognitionConfidence = vote.Agreement
	f.PartialVote = vote.Partial
	return f, nil
}

// parseFields applies the per-field grammar and cross-validates the spelled
// amount against the numeric amount. A mismatch forces parse confidence to
// zero on the numeric amount field even though each parsed individually.
func (s *PipelineService) parseFields(doc *models.Document, tpl *models.BankTemplate) {
	for i := range doc.Fields {
		f := &doc.Fields[i]
		spec := tpl.Fields[f.Name]
		if f.RawText == "" {
			f.ParseConfidence = 0
			f.ParseErr = "EMPTY"
			continue
		}
		res := parser.ParseAndNormalize(spec.Grammar, f.RawText)
		if res.OK {
			norm := res.Norm
			f.NormalizedValue = &norm
			f.ParseConfidence = 1.0
			f.ParseErr = ""
		} else {
			f.NormalizedValue = nil
			f.ParseConfidence = 0
			f.ParseErr = res.Err
		}
	}

	numeric := doc.Field(models.FieldAmountNumeric)
	words := doc.Field(models.FieldAmountWords)
	if numeric != nil && words != nil &&
		numeric.NormalizedValue != nil && words.NormalizedValue != nil {
		if !parser.CrossCheckAmounts(*numeric.NormalizedValue, *words.NormalizedValue) {
			numeric.ParseConfidence = 0
			numeric.ParseErr = validation.ReasonAmountWordMismatch
		}
	}
}

// validateFields runs the gate set and recomputes the conjunctive field
// confidence for every field. Gates annotate, never mutate, the normalized
// value.
func validateFields(doc *models.Document, gates validation.GateParams) {
	for i := range doc.Fields {
		f := &doc.Fields[i]
		norm := ""
		if f.NormalizedValue != nil {
			norm = *f.NormalizedValue
		}
		res := validation.ValidateField(f.Name, norm, gates)
		f.Validation = models.ValidationResult{OK: res.OK, Code: string(res.Code)}
		f.FieldConfidence = validation.FieldConfidence(
			f.LocatorConfidence, f.RecognitionConfidence, f.ParseConfidence)
	}
}

// retryModel wraps a long-running model-inference call with the bounded
// retry budget. Exhaustion is a fatal document outcome.
func (s *PipelineService) retryModel(ctx context.Context, name string, fn func() error) error {
	retries := s.cfg.ModelRetries
	if retries <= 0 {
		retries = 1
	}
	backoff := retryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
		log.Printf("Warning: %s attempt %d failed: %v", name, attempt+1, lastErr)
	}
	return fmt.Errorf("%w: %s: %v", ErrModelExhausted, name, lastErr)
}

func (s *PipelineService) appendStage(ctx context.Context, docID uuid.UUID, stage string, payload interface{}) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.AppendStage(ctx, docID, stage, payload); err != nil {
		log.Printf("Warning: failed to append %s stage to ledger for %s: %v", stage, docID, err)
	}
}

// fieldOrder walks the template's fields in the canonical order so that
// records, reasons and exports are stable run over run.
func fieldOrder(tpl *models.BankTemplate) []string {
	order := make([]string, 0, len(tpl.Fields))
	for _, name := range models.FieldNames {
		if _, ok := tpl.Fields[name]; ok {
			order = append(order, name)
		}
	}
	var extra []string
	for name := range tpl.Fields {
		known := false
		for _, o := range order {
			if o == name {
				known = true
				break
			}
		}
		if !known {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(order, extra...)
}

func allAnchored(tpl *models.BankTemplate) bool {
	for _, spec := range tpl.Fields {
		if spec.Anchor == nil {
			return false
		}
	}
	return true
}
