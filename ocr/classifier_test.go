package ocr

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// headerImage paints the top quarter with the given shade over a white body,
// matching the strip the classifier compares against exemplars.
func headerImage(w, h int, header color.Gray) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Gray{Y: 255}), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(0, 0, w, h/4), image.NewUniform(header), image.Point{}, draw.Src)
	return img
}

func TestHeuristicClassifierMatchesExemplar(t *testing.T) {
	c := NewHeuristicClassifier(map[string]image.Image{
		"DARKBANK":  flatImage(64, 64, color.Gray{Y: 0}),
		"LIGHTBANK": flatImage(64, 64, color.Gray{Y: 255}),
	})

	bank, conf, err := c.Classify(context.Background(), headerImage(800, 400, color.Gray{Y: 0}))
	require.NoError(t, err)
	assert.Equal(t, "DARKBANK", bank)
	assert.Equal(t, 1.0, conf, "an exact header match carries full confidence")

	bank, conf, err = c.Classify(context.Background(), headerImage(800, 400, color.Gray{Y: 255}))
	require.NoError(t, err)
	assert.Equal(t, "LIGHTBANK", bank)
	assert.Equal(t, 1.0, conf)
}

func TestHeuristicClassifierAmbiguousHeaderScoresLow(t *testing.T) {
	c := NewHeuristicClassifier(map[string]image.Image{
		"DARKBANK":  flatImage(64, 64, color.Gray{Y: 0}),
		"LIGHTBANK": flatImage(64, 64, color.Gray{Y: 255}),
	})

	// A mid-gray header sits halfway from both exemplars; the rescaled
	// confidence must fall below any sensible acceptance threshold.
	_, conf, err := c.Classify(context.Background(), headerImage(800, 400, color.Gray{Y: 128}))
	require.NoError(t, err)
	assert.Less(t, conf, 0.1)
}

func TestHeuristicClassifierNoExemplars(t *testing.T) {
	c := NewHeuristicClassifier(nil)
	bank, conf, err := c.Classify(context.Background(), headerImage(800, 400, color.Gray{Y: 0}))
	require.NoError(t, err)
	assert.Equal(t, "", bank)
	assert.Equal(t, 0.0, conf)
}

func TestHeuristicClassifierDeterministicTieBreak(t *testing.T) {
	c := NewHeuristicClassifier(map[string]image.Image{
		"BBANK": flatImage(64, 64, color.Gray{Y: 0}),
		"ABANK": flatImage(64, 64, color.Gray{Y: 0}),
	})

	for i := 0; i < 5; i++ {
		bank, _, err := c.Classify(context.Background(), headerImage(800, 400, color.Gray{Y: 0}))
		require.NoError(t, err)
		assert.Equal(t, "ABANK", bank)
	}
}

func TestHeuristicClassifierHonorsCancellation(t *testing.T) {
	c := NewHeuristicClassifier(map[string]image.Image{
		"DARKBANK": flatImage(64, 64, color.Gray{Y: 0}),
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := c.Classify(ctx, headerImage(800, 400, color.Gray{Y: 0}))
	assert.ErrorIs(t, err, context.Canceled)
}
