package ocr

import (
	"context"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Classifier assigns a bank label plus a confidence score to a corrected
// cheque image. Implementations are swappable model back-ends; the pipeline
// never assumes a specific model family.
type Classifier interface {
	Classify(ctx context.Context, img image.Image) (bank string, confidence float64, err error)
}

// StubClassifier always returns a fixed label. Useful in tests and when the
// bank is supplied as an ingestion hint.
type StubClassifier struct {
	Bank       string
	Confidence float64
}

func (s *StubClassifier) Classify(ctx context.Context, img image.Image) (string, float64, error) {
	return s.Bank, s.Confidence, nil
}

// exemplarSize is the side length exemplars and probes are resampled to
// before comparison.
const exemplarSize = 64

// HeuristicClassifier matches the cheque's header region against registered
// per-bank logo exemplars by mean absolute pixel difference on a
// downsampled grayscale copy. Cheap, deterministic, and good enough to route
// the common layouts; anything ambiguous falls to the generic path via a
// low score.
type HeuristicClassifier struct {
	exemplars map[string]*image.NRGBA
}

// NewHeuristicClassifier registers one exemplar per bank label.
func NewHeuristicClassifier(exemplars map[string]image.Image) *HeuristicClassifier {
	prepared := make(map[string]*image.NRGBA, len(exemplars))
	for bank, ex := range exemplars {
		prepared[bank] = normalizePatch(ex)
	}
	return &HeuristicClassifier{exemplars: prepared}
}

func (c *HeuristicClassifier) Classify(ctx context.Context, img image.Image) (string, float64, error) {
	if len(c.exemplars) == 0 {
		return "", 0, nil
	}
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	// Header strip: top 25% of the cheque, where the bank logo lives.
	b := img.Bounds()
	header := imaging.Crop(img, image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+b.Dy()/4))
	probe := normalizePatch(header)

	bestBank, bestScore := "", -1.0
	for bank, ex := range c.exemplars {
		score := 1.0 - meanAbsDiff(probe, ex)/255.0
		if score > bestScore || (score == bestScore && bank < bestBank) {
			bestBank, bestScore = bank, score
		}
	}
	// Rescale: identical patches score 1.0, uncorrelated content sits
	// near 0.5. Stretch so the acceptance threshold has usable range.
	conf := math.Max(0, (bestScore-0.5)*2)
	return bestBank, conf, nil
}

func normalizePatch(img image.Image) *image.NRGBA {
	return imaging.Grayscale(imaging.Resize(img, exemplarSize, exemplarSize, imaging.Box))
}

func meanAbsDiff(a, b *image.NRGBA) float64 {
	sum := 0.0
	n := exemplarSize * exemplarSize
	for i := 0; i < n; i++ {
		d := float64(a.Pix[i*4]) - float64(b.Pix[i*4])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum / float64(n)
}
