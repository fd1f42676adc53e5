package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// FieldSpec is the per-field configuration inside a bank template: an
// optional fixed anchor region, key phrases for the search path, the grammar
// used by the parser, and the OCR engine preference.
type FieldSpec struct {
	// Anchor is the fixed ROI for known layouts; nil means the locator
	// must search for the field.
	Anchor *RegionNorm `json:"anchor,omitempty"`
	// KeyPhrases are bilingual label phrases that identify the field on
	// unknown layouts.
	KeyPhrases []string `json:"key_phrases,omitempty"`
	// Grammar names the parser grammar: date | amount | amount_words |
	// cheque_number | name | currency | iban | bank_name.
	Grammar string `json:"grammar"`
	// Engine selects the recognizer: general | numeric.
	Engine string `json:"engine,omitempty"`
}

// ValidationParams bundles the per-bank gate parameters.
type ValidationParams struct {
	DateMinYear    int      `json:"date_min_year"`
	DateMaxYear    int      `json:"date_max_year"`
	MinAmount      string   `json:"min_amount"`
	MaxAmount      string   `json:"max_amount"`
	ChequePattern  string   `json:"cheque_pattern,omitempty"`
	ChequeLenMin   int      `json:"cheque_len_min"`
	ChequeLenMax   int      `json:"cheque_len_max"`
	Currencies     []string `json:"currencies"`
	PayeeRegistry  []string `json:"payee_registry,omitempty"`
	PayeeThreshold float64  `json:"payee_threshold"`
}

// BankTemplate is a versioned, immutable per-bank locator/parsing/validation
// configuration. Publishing a change always creates a new version; versions
// are never mutated in place.
type BankTemplate struct {
	Bank        string               `json:"bank"`
	Version     int                  `json:"version"`
	Fields      map[string]FieldSpec `json:"fields"`
	Required    []string             `json:"required"`
	Rules       ValidationParams     `json:"rules"`
	PublishedAt time.Time            `json:"published_at"`
}

// Generic reports whether this is the generic template with no fixed anchors.
func (t *BankTemplate) Generic() bool {
	for _, fs := range t.Fields {
		if fs.Anchor != nil {
			return false
		}
	}
	return true
}

// TemplatePayload wraps the template body for JSONB storage.
type TemplatePayload struct {
	Fields   map[string]FieldSpec `json:"fields"`
	Required []string             `json:"required"`
	Rules    ValidationParams     `json:"rules"`
}

// Value implements driver.Valuer for JSONB
func (p TemplatePayload) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner for JSONB
func (p *TemplatePayload) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	if len(bytes) == 0 {
		return nil
	}
	return json.Unmarshal(bytes, p)
}
