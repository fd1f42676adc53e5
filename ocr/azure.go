package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"strconv"
	"strings"

	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	"github.com/Azure/go-autorest/autorest"
)

// AzureRecognizer is the general (bilingual, digit-aware) OCR path, backed
// by the Azure Computer Vision printed-text API.
type AzureRecognizer struct {
	client *computervision.BaseClient
	lang   computervision.OcrLanguages
}

// NewAzureRecognizer builds a recognizer against the given Cognitive
// Services endpoint.
func NewAzureRecognizer(endpoint, apiKey string, lang computervision.OcrLanguages) *AzureRecognizer {
	client := computervision.New(endpoint)
	client.Authorizer = autorest.NewCognitiveServicesAuthorizer(apiKey)
	if lang == "" {
		lang = computervision.OcrLanguagesEn
	}
	return &AzureRecognizer{client: &client, lang: lang}
}

// Recognize extracts the text of one crop. The printed-text API does not
// report per-line scores, so the engine confidence is fixed at 1.0 and the
// voting agreement carries the uncertainty.
func (a *AzureRecognizer) Recognize(ctx context.Context, img image.Image) (string, float64, error) {
	result, err := a.ocr(ctx, img)
	if err != nil {
		return "", 0, err
	}
	var sb strings.Builder
	for _, line := range azureLines(result) {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(line.Text)
	}
	return sb.String(), 1.0, nil
}

// RecognizeLines runs full-page OCR and returns positioned lines for the
// locator.
func (a *AzureRecognizer) RecognizeLines(ctx context.Context, img image.Image) ([]TextLine, error) {
	result, err := a.ocr(ctx, img)
	if err != nil {
		return nil, err
	}
	return azureLines(result), nil
}

func (a *AzureRecognizer) ocr(ctx context.Context, img image.Image) (computervision.OcrResult, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return computervision.OcrResult{}, fmt.Errorf("encode image: %w", err)
	}
	reader := io.NopCloser(bytes.NewReader(buf.Bytes()))
	result, err := a.client.RecognizePrintedTextInStream(ctx, true, reader, a.lang)
	if err != nil {
		return computervision.OcrResult{}, fmt.Errorf("recognize printed text: %w", err)
	}
	return result, nil
}

func azureLines(result computervision.OcrResult) []TextLine {
	var lines []TextLine
	if result.Regions == nil {
		return lines
	}
	lang := ""
	if result.Language != nil {
		lang = *result.Language
	}
	for _, region := range *result.Regions {
		if region.Lines == nil {
			continue
		}
		for _, line := range *region.Lines {
			var sb strings.Builder
			if line.Words != nil {
				for _, word := range *line.Words {
					if word.Text == nil {
						continue
					}
					if sb.Len() > 0 {
						sb.WriteString(" ")
					}
					sb.WriteString(*word.Text)
				}
			}
			box := parseBoundingBox(line.BoundingBox)
			if len(box) < 4 {
				continue
			}
			lines = append(lines, TextLine{
				Text:       sb.String(),
				Confidence: 1.0,
				Lang:       lang,
				X:          box[0],
				Y:          box[1],
				Width:      box[2],
				Height:     box[3],
			})
		}
	}
	return lines
}

func parseBoundingBox(boundingBox *string) []int {
	if boundingBox == nil {
		return nil
	}
	parts := strings.Split(*boundingBox, ",")
	box := make([]int, 0, len(parts))
	for _, part := range parts {
		val, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil
		}
		box = append(box, val)
	}
	return box
}
