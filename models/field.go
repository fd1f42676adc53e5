package models

import (
	"database/sql/driver"
	"encoding/json"
)

// Canonical logical field names. The order of FieldNames is the canonical
// iteration order everywhere fields are walked, so that reason lists and
// exports are deterministic.
const (
	FieldBankName      = "bank_name"
	FieldDate          = "date"
	FieldAmountNumeric = "amount_numeric"
	FieldAmountWords   = "amount_words"
	FieldChequeNumber  = "cheque_number"
	FieldPayeeName     = "name"
	FieldCurrency      = "currency"
	FieldIBAN          = "iban"
)

// FieldNames lists all logical fields in canonical order.
var FieldNames = []string{
	FieldBankName,
	FieldDate,
	FieldAmountNumeric,
	FieldAmountWords,
	FieldChequeNumber,
	FieldPayeeName,
	FieldCurrency,
	FieldIBAN,
}

// Region is a pixel-space bounding box on the corrected image.
type Region struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Value implements driver.Valuer for JSONB
func (r Region) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// Scan implements sql.Scanner for JSONB
func (r *Region) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, r)
}

// RegionNorm is a template anchor region normalized to [0,1] image
// coordinates: {x, y, width, height}.
type RegionNorm [4]float64

// ToPixels converts a normalized region to pixel space for an image of the
// given dimensions.
func (n RegionNorm) ToPixels(imgW, imgH int) Region {
	x1 := int(n[0] * float64(imgW))
	y1 := int(n[1] * float64(imgH))
	x2 := int((n[0] + n[2]) * float64(imgW))
	y2 := int((n[1] + n[3]) * float64(imgH))
	if x2 > imgW {
		x2 = imgW
	}
	if y2 > imgH {
		y2 = imgH
	}
	return Region{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// ValidationResult is the outcome of the gate set for one field.
type ValidationResult struct {
	OK   bool   `json:"ok"`
	Code string `json:"code"`
}

// Value implements driver.Valuer for JSONB
func (v ValidationResult) Value() (driver.Value, error) {
	return json.Marshal(v)
}

// Scan implements sql.Scanner for JSONB
func (v *ValidationResult) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var bytes []byte
	switch b := value.(type) {
	case []byte:
		bytes = b
	case string:
		bytes = []byte(b)
	default:
		return nil
	}
	if len(bytes) == 0 {
		return nil
	}
	return json.Unmarshal(bytes, v)
}

// FieldRecord is one named logical field extracted from one document. The
// three confidence components are each in [0,1]; FieldConfidence is their
// product and is always recomputed from the components, never set directly.
type FieldRecord struct {
	Name            string  `json:"name"`
	RawText         string  `json:"raw_text"`
	Lang            string  `json:"lang"`
	NormalizedValue *string `json:"normalized_value,omitempty"`
	ParseErr        string  `json:"parse_err,omitempty"`

	LocatorConfidence     float64 `json:"locator_confidence"`
	RecognitionConfidence float64 `json:"recognition_confidence"`
	ParseConfidence       float64 `json:"parse_confidence"`
	FieldConfidence       float64 `json:"field_confidence"`

	Validation   ValidationResult `json:"validation"`
	SourceRegion *Region          `json:"source_region,omitempty"`
	PartialVote  bool             `json:"partial_vote,omitempty"`
	Corrected    bool             `json:"corrected,omitempty"`
}

// FieldList is the full set of field records for a document, stored as a
// single JSONB column.
type FieldList []FieldRecord

// Value implements driver.Valuer for JSONB
func (l FieldList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]FieldRecord{})
	}
	return json.Marshal([]FieldRecord(l))
}

// Scan implements sql.Scanner for JSONB
func (l *FieldList) Scan(value interface{}) error {
	if value == nil {
		*l = FieldList{}
		return nil
	}
	var bytes []byte
	switch b := value.(type) {
	case []byte:
		bytes = b
	case string:
		bytes = []byte(b)
	default:
		return nil
	}
	if len(bytes) == 0 {
		*l = FieldList{}
		return nil
	}
	return json.Unmarshal(bytes, (*[]FieldRecord)(l))
}
