package service

import (
	"github.com/AbdallahFarid/ocr2/models"
	"github.com/AbdallahFarid/ocr2/validation"
)

// RouteResult is the outcome of the routing function before it is wrapped
// into a persisted RoutingDecision.
type RouteResult struct {
	Outcome           models.RoutingOutcome
	STP               bool
	OverallConfidence float64
	LowConfFields     []string
	Reasons           []string
}

// DecideRoute combines the per-field confidence signals into a routing
// decision. It is a pure function of the field set, the required-field list
// and the threshold: re-running it on unchanged inputs always yields the
// same decision, which golden-sample regression tests rely on.
//
// A field meets threshold iff field_confidence >= threshold AND its gate set
// passed. Reasons are emitted in required-field order: a low-confidence
// reason of the form low_confidence:<field>:<conf><thr<threshold>, the
// amount cross-check code when that is the parse-failure cause, then the
// gate's own code as validation_failed:<field>:<CODE>.
func DecideRoute(doc *models.Document, required []string, threshold float64) RouteResult {
	res := RouteResult{
		LowConfFields: []string{},
		Reasons:       []string{},
	}
	overall := 0.0
	hasOverall := false
	validationFailed := false

	for _, name := range required {
		f := doc.Field(name)
		conf := 0.0
		if f != nil {
			conf = f.FieldConfidence
		}
		if !hasOverall || conf < overall {
			overall = conf
			hasOverall = true
		}
		if !validation.MeetsThreshold(conf, threshold) {
			res.LowConfFields = append(res.LowConfFields, name)
			res.Reasons = append(res.Reasons,
				"low_confidence:"+name+":"+validation.FormatConfidence(conf)+"<thr"+validation.FormatConfidence(threshold))
		}
		if f == nil {
			continue
		}
		if f.ParseErr == validation.ReasonAmountWordMismatch {
			res.Reasons = append(res.Reasons, validation.ReasonAmountWordMismatch)
		}
		if !f.Validation.OK {
			validationFailed = true
			res.Reasons = append(res.Reasons, "validation_failed:"+name+":"+f.Validation.Code)
		}
	}

	res.OverallConfidence = overall
	res.STP = len(res.LowConfFields) == 0 && !validationFailed
	if res.STP {
		res.Outcome = models.OutcomeAutoApprove
	} else {
		res.Outcome = models.OutcomeReview
	}
	return res
}
