package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractNumericRecognizer is the specialized fixed-font path for the
// machine-readable numeric line: Tesseract restricted to a digit whitelist
// in single-line mode.
type TesseractNumericRecognizer struct {
	clientFactory func() *gosseract.Client
}

// NewTesseractNumericRecognizer constructs the numeric-line recognizer.
func NewTesseractNumericRecognizer() *TesseractNumericRecognizer {
	return &TesseractNumericRecognizer{clientFactory: gosseract.NewClient}
}

func (t *TesseractNumericRecognizer) Recognize(ctx context.Context, img image.Image) (string, float64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", 0, fmt.Errorf("encode crop: %w", err)
	}

	c := t.clientFactory()
	defer c.Close()
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", 0, fmt.Errorf("set image: %w", err)
	}
	if err := c.SetWhitelist("0123456789 "); err != nil {
		return "", 0, fmt.Errorf("set whitelist: %w", err)
	}
	if err := c.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		return "", 0, fmt.Errorf("set page seg mode: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return "", 0, fmt.Errorf("recognize text: %w", err)
	}

	conf := wordConfidence(c)
	return strings.TrimSpace(text), conf, nil
}

// wordConfidence averages Tesseract's per-word confidences, scaled to [0,1].
func wordConfidence(c *gosseract.Client) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence / 100.0
	}
	return sum / float64(len(boxes))
}
