package ocr

import (
	"context"
	"image"
	"regexp"
	"sort"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/AbdallahFarid/ocr2/models"
)

// Recognizer extracts text from one image crop and reports the engine's own
// confidence. Implementations are swappable model back-ends (Azure printed
// OCR, Tesseract numeric line, test stubs).
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (text string, confidence float64, err error)
}

// LineRecognizer runs full-page recognition and returns positioned lines,
// used by the locator's search path.
type LineRecognizer interface {
	RecognizeLines(ctx context.Context, img image.Image) ([]TextLine, error)
}

// VoteConfig parameterizes multi-sample recognition voting.
type VoteConfig struct {
	// Samples is the number of perturbed crops recognized per region.
	Samples int
	// TieBreak resolves split votes: "lowest" (default) picks the
	// lexicographically-first tied text, "first" picks the earliest
	// sample's text. Either way the agreement score stays at the tied
	// fraction, so a split vote can never masquerade as consensus.
	TieBreak string
}

// VoteResult is the reduced outcome of one region's recognition fan-out.
type VoteResult struct {
	Text string
	// Agreement is the winning text's vote fraction and is used directly
	// as the field's recognition confidence. When all samples disagree
	// this is 1/n — the lowest observed agreement — never a boosted
	// value.
	Agreement float64
	// EngineConfidence is the mean engine-reported confidence of the
	// winning samples, kept for the audit trail.
	EngineConfidence float64
	// Partial marks a vote that completed with fewer samples than
	// configured (some samples failed or were cancelled).
	Partial bool
	Samples int
}

// perturbations are the deterministic crop variations applied per sample:
// padding in pixels and rotation in degrees. Slightly different croppings
// shake loose border artifacts without changing legible content.
var perturbations = []struct {
	pad int
	rot float64
}{
	{0, 0}, {4, 0}, {-4, 0}, {0, 0.8}, {0, -0.8}, {4, 0.8}, {-4, -0.8},
}

var voteSpaceRx = regexp.MustCompile(`\s+`)

// RecognizeRegion runs a bounded fan-out of perturbed recognition attempts
// over one region and reduces them by majority vote. A failed sample is
// dropped (the vote becomes partial); recognition never hard-fails a region
// — an empty result is a valid, low-confidence outcome. Only context
// cancellation is surfaced as an error.
func RecognizeRegion(ctx context.Context, rec Recognizer, img image.Image, region models.Region, cfg VoteConfig) (VoteResult, error) {
	n := cfg.Samples
	if n <= 0 {
		n = 3
	}
	if n > len(perturbations) {
		n = len(perturbations)
	}

	type sample struct {
		text string
		conf float64
	}
	samples := make([]sample, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return VoteResult{}, err
		}
		crop := perturbedCrop(img, region, perturbations[i].pad, perturbations[i].rot)
		text, conf, err := rec.Recognize(ctx, crop)
		if err != nil {
			continue
		}
		samples = append(samples, sample{
			text: strings.TrimSpace(voteSpaceRx.ReplaceAllString(text, " ")),
			conf: conf,
		})
	}

	res := VoteResult{Samples: len(samples), Partial: len(samples) < cfg.Samples}
	if len(samples) == 0 {
		return res, nil
	}

	counts := make(map[string]int)
	confSum := make(map[string]float64)
	firstSeen := make(map[string]int)
	for i, s := range samples {
		counts[s.text]++
		confSum[s.text] += s.conf
		if _, ok := firstSeen[s.text]; !ok {
			firstSeen[s.text] = i
		}
	}
	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	tied := make([]string, 0, len(counts))
	for t, c := range counts {
		if c == maxCount {
			tied = append(tied, t)
		}
	}
	switch cfg.TieBreak {
	case "first":
		sort.Slice(tied, func(i, j int) bool { return firstSeen[tied[i]] < firstSeen[tied[j]] })
	default: // "lowest"
		sort.Strings(tied)
	}
	winner := tied[0]

	res.Text = winner
	res.Agreement = float64(maxCount) / float64(len(samples))
	res.EngineConfidence = confSum[winner] / float64(counts[winner])
	return res, nil
}

func perturbedCrop(img image.Image, region models.Region, pad int, rot float64) image.Image {
	b := img.Bounds()
	rect := image.Rect(region.X1-pad, region.Y1-pad, region.X2+pad, region.Y2+pad).Intersect(b)
	if rect.Empty() {
		rect = image.Rect(region.X1, region.Y1, region.X2, region.Y2).Intersect(b)
	}
	crop := imaging.Crop(img, rect)
	if rot != 0 {
		return imaging.Rotate(crop, rot, image.White)
	}
	return crop
}
