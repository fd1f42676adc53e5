package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdallahFarid/ocr2/models"
	"github.com/AbdallahFarid/ocr2/validation"
)

func okField(name string, conf float64) models.FieldRecord {
	v := "value"
	return models.FieldRecord{
		Name:                  name,
		NormalizedValue:       &v,
		LocatorConfidence:     1,
		RecognitionConfidence: 1,
		ParseConfidence:       1,
		FieldConfidence:       conf,
		Validation:            models.ValidationResult{OK: true, Code: "OK"},
	}
}

var requiredFields = []string{
	models.FieldDate,
	models.FieldAmountNumeric,
	models.FieldChequeNumber,
	models.FieldPayeeName,
}

func TestDecideRouteAutoApprove(t *testing.T) {
	doc := &models.Document{Fields: models.FieldList{
		okField(models.FieldDate, 0.999),
		okField(models.FieldAmountNumeric, 0.999),
		okField(models.FieldChequeNumber, 0.999),
		okField(models.FieldPayeeName, 0.999),
	}}

	res := DecideRoute(doc, requiredFields, 0.995)

	assert.Equal(t, models.OutcomeAutoApprove, res.Outcome)
	assert.True(t, res.STP)
	assert.Empty(t, res.Reasons)
	assert.Empty(t, res.LowConfFields)
	assert.InDelta(t, 0.999, res.OverallConfidence, 1e-12)
}

func TestDecideRouteLowConfidenceField(t *testing.T) {
	doc := &models.Document{Fields: models.FieldList{
		okField(models.FieldDate, 0.999),
		okField(models.FieldAmountNumeric, 0.999),
		okField(models.FieldChequeNumber, 0.95),
		okField(models.FieldPayeeName, 0.999),
	}}

	res := DecideRoute(doc, requiredFields, 0.995)

	assert.Equal(t, models.OutcomeReview, res.Outcome)
	assert.False(t, res.STP)
	assert.Equal(t, []string{models.FieldChequeNumber}, res.LowConfFields)
	require.Len(t, res.Reasons, 1)
	assert.Equal(t, "low_confidence:cheque_number:0.95<thr0.995", res.Reasons[0])
	assert.InDelta(t, 0.95, res.OverallConfidence, 1e-12)
}

func TestDecideRouteValidationFailure(t *testing.T) {
	bad := okField(models.FieldDate, 0.999)
	bad.Validation = models.ValidationResult{OK: false, Code: "DATE_RANGE"}

	doc := &models.Document{Fields: models.FieldList{
		bad,
		okField(models.FieldAmountNumeric, 0.999),
		okField(models.FieldChequeNumber, 0.999),
		okField(models.FieldPayeeName, 0.999),
	}}

	res := DecideRoute(doc, requiredFields, 0.995)

	assert.Equal(t, models.OutcomeReview, res.Outcome)
	assert.False(t, res.STP)
	assert.Empty(t, res.LowConfFields, "validation failure is not a confidence failure")
	assert.Contains(t, res.Reasons, "validation_failed:date:DATE_RANGE")
}

func TestDecideRouteAmountMismatchReason(t *testing.T) {
	amount := okField(models.FieldAmountNumeric, 0)
	amount.ParseConfidence = 0
	amount.ParseErr = validation.ReasonAmountWordMismatch
	amount.NormalizedValue = nil

	doc := &models.Document{Fields: models.FieldList{
		okField(models.FieldDate, 0.999),
		amount,
		okField(models.FieldChequeNumber, 0.999),
		okField(models.FieldPayeeName, 0.999),
	}}

	res := DecideRoute(doc, requiredFields, 0.995)

	assert.Equal(t, models.OutcomeReview, res.Outcome)
	assert.Contains(t, res.Reasons, validation.ReasonAmountWordMismatch)
	assert.Contains(t, res.Reasons, "low_confidence:amount_numeric:0<thr0.995")
}

func TestDecideRouteMissingRequiredField(t *testing.T) {
	doc := &models.Document{Fields: models.FieldList{
		okField(models.FieldDate, 0.999),
	}}

	res := DecideRoute(doc, requiredFields, 0.995)

	assert.Equal(t, models.OutcomeReview, res.Outcome)
	assert.Contains(t, res.LowConfFields, models.FieldAmountNumeric)
	assert.Equal(t, 0.0, res.OverallConfidence)
}

func TestDecideRouteThresholdMonotonicity(t *testing.T) {
	doc := &models.Document{Fields: models.FieldList{
		okField(models.FieldDate, 0.997),
		okField(models.FieldAmountNumeric, 0.996),
		okField(models.FieldChequeNumber, 0.998),
		okField(models.FieldPayeeName, 0.999),
	}}

	// Raising the threshold can only move fields from passing to failing.
	prevFailing := -1
	for _, thr := range []float64{0.99, 0.995, 0.9965, 0.9975, 0.9985, 0.999} {
		res := DecideRoute(doc, requiredFields, thr)
		failing := len(res.LowConfFields)
		assert.GreaterOrEqual(t, failing, prevFailing,
			"threshold %v must not pass fields a lower threshold failed", thr)
		prevFailing = failing
	}
}

func TestDecideRouteDeterministic(t *testing.T) {
	doc := &models.Document{Fields: models.FieldList{
		okField(models.FieldDate, 0.9),
		okField(models.FieldAmountNumeric, 0.8),
		okField(models.FieldChequeNumber, 0.999),
		okField(models.FieldPayeeName, 0.999),
	}}

	first := DecideRoute(doc, requiredFields, 0.995)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, DecideRoute(doc, requiredFields, 0.995))
	}
}
