package ocr

import (
	"context"
	"image"
	"regexp"
	"strings"

	"github.com/AbdallahFarid/ocr2/models"
)

// LayoutDetector is an optional learned model that finds label→value spatial
// pairs on unknown layouts. It returns the detected region and the model's
// emitted confidence; a zero-confidence result means no detection.
type LayoutDetector interface {
	Detect(ctx context.Context, img image.Image, field string) (models.Region, float64, error)
}

// Located is one candidate bounding region for a logical field.
type Located struct {
	Region     *models.Region
	Confidence float64
	Method     string // anchor | key_phrase | layout_model | none
}

// Locator produces candidate regions per logical field: fixed anchors for
// known templates, key-phrase/layout search otherwise.
type Locator struct {
	// Detector is consulted on the search path when set; key-phrase hits
	// with higher confidence still win.
	Detector LayoutDetector
}

// valueTokenRx maps a grammar to the token shape its value line carries,
// used to find fields by content when no anchor or label phrase matches.
var valueTokenRx = map[string]*regexp.Regexp{
	"date":          regexp.MustCompile(`\b\d{1,2}[\-/.][A-Za-z0-9]{3}[\-/.]\d{2,4}\b`),
	"amount":        regexp.MustCompile(`\b\d+(?:,\d{3})*\.\d{2}\b`),
	"cheque_number": regexp.MustCompile(`\b\d{6,}\b`),
	"iban":          regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{10,30}\b`),
	"currency":      regexp.MustCompile(`\b(EGP|USD|EUR|AED|SAR)\b`),
}

// Locate emits one Located entry for every field the template defines.
// Anchored fields get locator confidence 1.0 by construction (geometry is
// deterministic for known templates). Searched fields carry the detector's
// or matched line's confidence; fields with no match at all get confidence 0
// and no region, never a silent skip.
func (lo *Locator) Locate(ctx context.Context, img image.Image, tpl *models.BankTemplate, lines []TextLine) (map[string]Located, error) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	out := make(map[string]Located, len(tpl.Fields))

	for field, spec := range tpl.Fields {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if spec.Anchor != nil {
			r := spec.Anchor.ToPixels(w, h)
			out[field] = Located{Region: &r, Confidence: 1.0, Method: "anchor"}
			continue
		}
		out[field] = lo.search(ctx, img, field, spec, lines, w, h)
	}
	return out, nil
}

func (lo *Locator) search(ctx context.Context, img image.Image, field string, spec models.FieldSpec, lines []TextLine, w, h int) Located {
	best := Located{Confidence: 0, Method: "none"}

	// 1) Bilingual key phrases: the value sits on the labeled line.
	for _, phrase := range spec.KeyPhrases {
		p := strings.ToLower(phrase)
		for _, ln := range lines {
			if !strings.Contains(strings.ToLower(ln.Text), p) {
				continue
			}
			if ln.Confidence > best.Confidence {
				r := regionAround(ln, w, h)
				best = Located{Region: &r, Confidence: ln.Confidence, Method: "key_phrase"}
			}
		}
	}

	// 2) Content-shape match for token-bearing grammars.
	if rx, ok := valueTokenRx[spec.Grammar]; ok {
		for _, ln := range lines {
			if !rx.MatchString(ln.Text) {
				continue
			}
			if ln.Confidence > best.Confidence {
				r := regionAround(ln, w, h)
				best = Located{Region: &r, Confidence: ln.Confidence, Method: "key_phrase"}
			}
		}
	}

	// 3) Learned layout model, when wired.
	if lo.Detector != nil {
		if r, conf, err := lo.Detector.Detect(ctx, img, field); err == nil && conf > best.Confidence {
			best = Located{Region: &r, Confidence: conf, Method: "layout_model"}
		}
	}
	return best
}

// regionAround pads a matched line's box so the crop survives small locator
// drift.
func regionAround(ln TextLine, w, h int) models.Region {
	padX, padY := w/50, h/50
	r := models.Region{
		X1: ln.X - padX,
		Y1: ln.Y - padY,
		X2: ln.X + ln.Width + padX,
		Y2: ln.Y + ln.Height + padY,
	}
	if r.X1 < 0 {
		r.X1 = 0
	}
	if r.Y1 < 0 {
		r.Y1 = 0
	}
	if r.X2 > w {
		r.X2 = w
	}
	if r.Y2 > h {
		r.Y2 = h
	}
	return r
}
