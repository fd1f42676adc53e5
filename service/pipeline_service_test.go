package service

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdallahFarid/ocr2/config"
	"github.com/AbdallahFarid/ocr2/models"
	"github.com/AbdallahFarid/ocr2/validation"
)

// sharpImage is a 1000x400 checkerboard: plenty of edges, so the preflight
// blur gate passes.
func sharpImage() image.Image {
	img := image.NewGray(image.Rect(0, 0, 1000, 400))
	for y := 0; y < 400; y++ {
		for x := 0; x < 1000; x++ {
			if (x/4+y/4)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

func blurryImage() image.Image {
	img := image.NewGray(image.Rect(0, 0, 1000, 400))
	for i := range img.Pix {
		img.Pix[i] = 180
	}
	return img
}

// widthRecognizer fakes OCR by answering per crop width. The test template
// gives every field a distinctly-sized anchor, so the crop width identifies
// the field without real recognition.
type widthRecognizer struct {
	byWidth map[int]string
}

func (r *widthRecognizer) Recognize(ctx context.Context, img image.Image) (string, float64, error) {
	w := img.Bounds().Dx()
	for base, text := range r.byWidth {
		if w >= base-10 && w <= base+10 {
			return text, 0.98, nil
		}
	}
	return "", 0, nil
}

type fixedClassifier struct {
	bank string
	conf float64
	err  error
}

func (c *fixedClassifier) Classify(ctx context.Context, img image.Image) (string, float64, error) {
	return c.bank, c.conf, c.err
}

func pipelineTestTemplate() models.BankTemplate {
	anchor := func(x, y, w, h float64) *models.RegionNorm {
		rn := models.RegionNorm{x, y, w, h}
		return &rn
	}
	return models.BankTemplate{
		Bank: "TESTBANK",
		Fields: map[string]models.FieldSpec{
			models.FieldDate:          {Grammar: "date", Anchor: anchor(0.0, 0.0, 0.1, 0.1)},
			models.FieldAmountNumeric: {Grammar: "amount", Anchor: anchor(0.0, 0.2, 0.15, 0.1)},
			models.FieldAmountWords:   {Grammar: "amount_words", Anchor: anchor(0.0, 0.4, 0.2, 0.1)},
			models.FieldChequeNumber:  {Grammar: "cheque_number", Anchor: anchor(0.0, 0.6, 0.25, 0.1)},
			models.FieldPayeeName:     {Grammar: "name", Anchor: anchor(0.0, 0.8, 0.3, 0.1)},
			models.FieldCurrency:      {Grammar: "currency", Anchor: anchor(0.5, 0.0, 0.05, 0.1)},
		},
		Required: DefaultRequired,
		Rules: models.ValidationParams{
			DateMinYear: 2000,
			DateMaxYear: 2100,
			Currencies:  []string{"EGP"},
		},
	}
}

// Anchor widths on the 1000px-wide test image.
const (
	wDate     = 100
	wAmount   = 150
	wWords    = 200
	wCheque   = 250
	wPayee    = 300
	wCurrency = 50
)

func pipelineTestConfig() config.Config {
	return config.Config{
		BlurThreshold:       100,
		MinWidth:            100,
		MinHeight:           50,
		MaxDeskewDeg:        0,
		ClassifierThreshold: 0.5,
		VoteSamples:         3,
		VoteTieBreak:        "lowest",
		GlobalThreshold:     0.995,
		ModelRetries:        1,
	}
}

func newTestPipeline(t *testing.T, rec *widthRecognizer, docs *memDocStore, ledger *memLedger) *PipelineService {
	t.Helper()
	registry := NewTemplateRegistry(nil)
	_, err := registry.Publish(context.Background(), pipelineTestTemplate())
	require.NoError(t, err)

	return NewPipelineService(
		PipelineWithClassifier(&fixedClassifier{bank: "TESTBANK", conf: 0.9}),
		PipelineWithGeneralRecognizer(rec),
		PipelineWithTemplates(registry),
		PipelineWithDocumentStore(docs),
		PipelineWithLedger(ledger),
		PipelineWithConfig(pipelineTestConfig()),
	)
}

func newReceivedDoc() *models.Document {
	return &models.Document{
		ID:         uuid.New(),
		Bank:       models.BankUnknown,
		Status:     models.StatusReceived,
		Fields:     models.FieldList{},
		IngestedAt: time.Now().UTC(),
	}
}

func cleanChequeRecognizer() *widthRecognizer {
	return &widthRecognizer{byWidth: map[int]string{
		wDate:     "15-MAR-2026",
		wAmount:   "**817,410.00**",
		wWords:    "Eight Hundred Seventeen Thousand Four Hundred Ten and 00/100",
		wCheque:   "12345678",
		wPayee:    "Misr Insurance Company",
		wCurrency: "EGP",
	}}
}

func TestPipelineAutoApprovesCleanCheque(t *testing.T) {
	docs := newMemDocStore()
	ledger := &memLedger{}
	p := newTestPipeline(t, cleanChequeRecognizer(), docs, ledger)

	doc := newReceivedDoc()
	require.NoError(t, docs.Create(context.Background(), doc))
	require.NoError(t, p.Process(context.Background(), doc, sharpImage()))

	assert.Equal(t, models.StatusAutoApproved, doc.Status)
	assert.Equal(t, "TESTBANK", doc.Bank)
	assert.Equal(t, 1, doc.TemplateVersion)
	require.NotNil(t, doc.Decision)
	assert.Equal(t, models.OutcomeAutoApprove, doc.Decision.Outcome)
	assert.True(t, doc.Decision.STP)
	assert.Empty(t, doc.Decision.Reasons)
	assert.Equal(t, 1.0, doc.Decision.OverallConfidence)

	amount := doc.Field(models.FieldAmountNumeric)
	require.NotNil(t, amount)
	require.NotNil(t, amount.NormalizedValue)
	assert.Equal(t, "817410.00", *amount.NormalizedValue)
	assert.Equal(t, 1.0, amount.FieldConfidence)

	date := doc.Field(models.FieldDate)
	require.NotNil(t, date)
	assert.Equal(t, "2026-03-15", *date.NormalizedValue)

	// Every stage left an audit record, then the decision.
	assert.Equal(t, []string{"preflight", "classify", "locate", "recognize", "parse", "validate"}, ledger.stages)
	require.Len(t, ledger.decisions, 1)
	assert.Equal(t, doc.ID, ledger.decisions[0].DocumentID)

	stored, err := docs.GetByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAutoApproved, stored.Status)
	require.NotNil(t, stored.ProcessedAt)
}

func TestPipelineFieldsInCanonicalOrder(t *testing.T) {
	docs := newMemDocStore()
	p := newTestPipeline(t, cleanChequeRecognizer(), docs, &memLedger{})

	doc := newReceivedDoc()
	require.NoError(t, docs.Create(context.Background(), doc))
	require.NoError(t, p.Process(context.Background(), doc, sharpImage()))

	names := make([]string, len(doc.Fields))
	for i, f := range doc.Fields {
		names[i] = f.Name
	}
	assert.Equal(t, []string{
		models.FieldDate,
		models.FieldAmountNumeric,
		models.FieldAmountWords,
		models.FieldChequeNumber,
		models.FieldPayeeName,
		models.FieldCurrency,
	}, names)
}

func TestPipelineRejectsBlurryScan(t *testing.T) {
	docs := newMemDocStore()
	ledger := &memLedger{}
	p := newTestPipeline(t, cleanChequeRecognizer(), docs, ledger)

	doc := newReceivedDoc()
	require.NoError(t, docs.Create(context.Background(), doc))
	require.NoError(t, p.Process(context.Background(), doc, blurryImage()))

	assert.Equal(t, models.StatusRejected, doc.Status)
	require.NotNil(t, doc.RejectReason)
	assert.Equal(t, "blurry", *doc.RejectReason)
	assert.Nil(t, doc.Decision)
	assert.Equal(t, []string{"preflight"}, ledger.stages)
}

func TestPipelineAmountMismatchForcesReview(t *testing.T) {
	rec := cleanChequeRecognizer()
	rec.byWidth[wWords] = "Eight Hundred Seventeen Thousand Four Hundred Nine and 00/100"

	docs := newMemDocStore()
	p := newTestPipeline(t, rec, docs, &memLedger{})

	doc := newReceivedDoc()
	require.NoError(t, docs.Create(context.Background(), doc))
	require.NoError(t, p.Process(context.Background(), doc, sharpImage()))

	assert.Equal(t, models.StatusUnderReview, doc.Status)
	require.NotNil(t, doc.Decision)
	assert.Equal(t, models.OutcomeReview, doc.Decision.Outcome)
	assert.Contains(t, doc.Decision.Reasons, validation.ReasonAmountWordMismatch)

	amount := doc.Field(models.FieldAmountNumeric)
	require.NotNil(t, amount)
	assert.Equal(t, 0.0, amount.ParseConfidence)
	assert.Equal(t, 0.0, amount.FieldConfidence)
	assert.Equal(t, validation.ReasonAmountWordMismatch, amount.ParseErr)
}

func TestPipelineUnreadableFieldGoesToReview(t *testing.T) {
	rec := cleanChequeRecognizer()
	delete(rec.byWidth, wCheque) // the cheque-number crop recognizes as empty

	docs := newMemDocStore()
	p := newTestPipeline(t, rec, docs, &memLedger{})

	doc := newReceivedDoc()
	require.NoError(t, docs.Create(context.Background(), doc))
	require.NoError(t, p.Process(context.Background(), doc, sharpImage()))

	assert.Equal(t, models.StatusUnderReview, doc.Status)
	cheque := doc.Field(models.FieldChequeNumber)
	require.NotNil(t, cheque)
	assert.Equal(t, 0.0, cheque.FieldConfidence)
	assert.Contains(t, doc.Decision.LowConfFields, models.FieldChequeNumber)
}

func TestPipelineClassifierRetryExhaustion(t *testing.T) {
	docs := newMemDocStore()
	registry := NewTemplateRegistry(nil)

	p := NewPipelineService(
		PipelineWithClassifier(&fixedClassifier{err: errors.New("model down")}),
		PipelineWithGeneralRecognizer(cleanChequeRecognizer()),
		PipelineWithTemplates(registry),
		PipelineWithDocumentStore(docs),
		PipelineWithConfig(pipelineTestConfig()),
	)

	doc := newReceivedDoc()
	require.NoError(t, docs.Create(context.Background(), doc))

	err := p.Process(context.Background(), doc, sharpImage())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelExhausted)
	assert.Equal(t, models.StatusProcessingError, doc.Status)

	stored, getErr := docs.GetByID(context.Background(), doc.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.StatusProcessingError, stored.Status)
}

func TestPipelineLowClassifierConfidenceUsesGenericPath(t *testing.T) {
	docs := newMemDocStore()
	registry := NewTemplateRegistry(nil)
	_, err := registry.Publish(context.Background(), pipelineTestTemplate())
	require.NoError(t, err)

	p := NewPipelineService(
		PipelineWithClassifier(&fixedClassifier{bank: "TESTBANK", conf: 0.2}),
		PipelineWithGeneralRecognizer(cleanChequeRecognizer()),
		PipelineWithTemplates(registry),
		PipelineWithDocumentStore(docs),
		PipelineWithConfig(pipelineTestConfig()),
	)

	doc := newReceivedDoc()
	require.NoError(t, docs.Create(context.Background(), doc))
	require.NoError(t, p.Process(context.Background(), doc, sharpImage()))

	assert.Equal(t, models.BankUnknown, doc.Bank)
}

func TestPipelineBankHintOverridesClassifier(t *testing.T) {
	docs := newMemDocStore()
	registry := NewTemplateRegistry(nil)
	_, err := registry.Publish(context.Background(), pipelineTestTemplate())
	require.NoError(t, err)

	// The classifier would answer OTHERBANK; the ingestion hint names a
	// registered template and must win without a classifier call.
	p := NewPipelineService(
		PipelineWithClassifier(&fixedClassifier{bank: "OTHERBANK", conf: 0.9}),
		PipelineWithGeneralRecognizer(cleanChequeRecognizer()),
		PipelineWithTemplates(registry),
		PipelineWithDocumentStore(docs),
		PipelineWithConfig(pipelineTestConfig()),
	)

	doc := newReceivedDoc()
	doc.Bank = "TESTBANK"
	require.NoError(t, docs.Create(context.Background(), doc))
	require.NoError(t, p.Process(context.Background(), doc, sharpImage()))

	assert.Equal(t, "TESTBANK", doc.Bank)
	assert.Equal(t, 1.0, doc.BankConfidence)
	assert.Equal(t, 1, doc.TemplateVersion)
}

func TestPipelineUnregisteredBankHintFallsToClassifier(t *testing.T) {
	docs := newMemDocStore()
	p := newTestPipeline(t, cleanChequeRecognizer(), docs, &memLedger{})

	doc := newReceivedDoc()
	doc.Bank = "NOSUCHBANK"
	require.NoError(t, docs.Create(context.Background(), doc))
	require.NoError(t, p.Process(context.Background(), doc, sharpImage()))

	assert.Equal(t, "TESTBANK", doc.Bank)
	assert.Equal(t, 0.9, doc.BankConfidence)
}

func TestPipelineCancellation(t *testing.T) {
	docs := newMemDocStore()
	p := newTestPipeline(t, cleanChequeRecognizer(), docs, &memLedger{})

	doc := newReceivedDoc()
	require.NoError(t, docs.Create(context.Background(), doc))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Process(ctx, doc, sharpImage())
	require.Error(t, err)
	assert.Equal(t, models.StatusProcessingError, doc.Status)
}

func TestPipelineDeterministic(t *testing.T) {
	runOnce := func() *models.Document {
		docs := newMemDocStore()
		p := newTestPipeline(t, cleanChequeRecognizer(), docs, &memLedger{})
		doc := newReceivedDoc()
		require.NoError(t, docs.Create(context.Background(), doc))
		require.NoError(t, p.Process(context.Background(), doc, sharpImage()))
		return doc
	}

	a := runOnce()
	b := runOnce()

	require.NotNil(t, a.Decision)
	require.NotNil(t, b.Decision)
	assert.Equal(t, a.Decision.Outcome, b.Decision.Outcome)
	assert.Equal(t, a.Decision.OverallConfidence, b.Decision.OverallConfidence)
	assert.Equal(t, a.Decision.Reasons, b.Decision.Reasons)
	require.Equal(t, len(a.Fields), len(b.Fields))
	for i := range a.Fields {
		assert.Equal(t, a.Fields[i].Name, b.Fields[i].Name)
		assert.Equal(t, a.Fields[i].NormalizedValue, b.Fields[i].NormalizedValue)
		assert.Equal(t, a.Fields[i].FieldConfidence, b.Fields[i].FieldConfidence)
	}
}
