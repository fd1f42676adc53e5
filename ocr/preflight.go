package ocr

import (
	"image"

	"github.com/disintegration/imaging"
)

// PreflightConfig holds the quality gate parameters.
//
// BlurThreshold is the Laplacian-variance floor below which a scan is
// rejected as blurry; MinWidth/MinHeight reject low-resolution captures
// before any expensive processing.
type PreflightConfig struct {
	BlurThreshold float64
	MinWidth      int
	MinHeight     int
	MaxDeskewDeg  float64
}

// PreflightError is the terminal, non-retryable rejection emitted by the
// preflight gate.
type PreflightError struct {
	Code    string // low_resolution | blurry
	Message string
	Metric  float64
}

func (e *PreflightError) Error() string { return e.Code + ": " + e.Message }

// PreflightMeta carries the measured quality metrics for the audit trail.
type PreflightMeta struct {
	BlurVariance float64 `json:"blur_variance"`
	DeskewAngle  float64 `json:"deskew_angle_deg"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
}

// Preflight validates image quality and applies deterministic geometric and
// contrast corrections. Sharpness is measured on the raw grayscale before
// enhancement, since sharpening would inflate the metric.
func Preflight(img image.Image, cfg PreflightConfig) (*image.NRGBA, PreflightMeta, error) {
	b := img.Bounds()
	meta := PreflightMeta{Width: b.Dx(), Height: b.Dy()}
	if b.Dx() < cfg.MinWidth || b.Dy() < cfg.MinHeight {
		return nil, meta, &PreflightError{
			Code:    "low_resolution",
			Message: "image below minimum resolution",
			Metric:  float64(b.Dx()),
		}
	}

	gray := imaging.Grayscale(img)
	meta.BlurVariance = laplacianVariance(gray)
	if meta.BlurVariance < cfg.BlurThreshold {
		return nil, meta, &PreflightError{
			Code:    "blurry",
			Message: "image rejected due to low sharpness",
			Metric:  meta.BlurVariance,
		}
	}

	meta.DeskewAngle = estimateSkew(gray, cfg.MaxDeskewDeg)
	corrected := gray
	if meta.DeskewAngle != 0 {
		corrected = imaging.Rotate(corrected, -meta.DeskewAngle, image.White)
	}
	corrected = imaging.AdjustContrast(corrected, 20)
	corrected = imaging.Sharpen(corrected, 1.0)

	return corrected, meta, nil
}

// laplacianVariance applies a 3x3 Laplacian kernel to the luma channel and
// returns the variance of the response. Low variance means few edges, i.e.
// a blurry scan.
func laplacianVariance(img *image.NRGBA) float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}
	luma := func(x, y int) float64 {
		i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
		return float64(img.Pix[i]) // grayscale: R==G==B
	}
	n := 0
	sum, sumSq := 0.0, 0.0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			v := 4*luma(x, y) - luma(x-1, y) - luma(x+1, y) - luma(x, y-1) - luma(x, y+1)
			sum += v
			sumSq += v * v
			n++
		}
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}

// estimateSkew searches a bounded angle range for the rotation that
// maximizes the variance of horizontal ink-density projections. Text lines
// concentrate dark pixels into bands, so the best-separated bands indicate
// the true horizontal. The search runs on a downsampled copy and is fully
// deterministic.
func estimateSkew(gray *image.NRGBA, maxDeg float64) float64 {
	if maxDeg <= 0 {
		return 0
	}
	small := imaging.Resize(gray, 400, 0, imaging.Box)
	bestAngle, bestScore := 0.0, projectionVariance(small)
	for angle := -maxDeg; angle <= maxDeg; angle += 0.5 {
		if angle == 0 {
			continue
		}
		rotated := imaging.Rotate(small, -angle, image.White)
		if score := projectionVariance(rotated); score > bestScore {
			bestScore = score
			bestAngle = angle
		}
	}
	return bestAngle
}

func projectionVariance(img *image.NRGBA) float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return 0
	}
	rows := make([]float64, h)
	for y := 0; y < h; y++ {
		dark := 0.0
		for x := 0; x < w; x++ {
			i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			dark += 255 - float64(img.Pix[i])
		}
		rows[y] = dark / float64(w)
	}
	mean := 0.0
	for _, r := range rows {
		mean += r
	}
	mean /= float64(h)
	variance := 0.0
	for _, r := range rows {
		variance += (r - mean) * (r - mean)
	}
	return variance / float64(h)
}
