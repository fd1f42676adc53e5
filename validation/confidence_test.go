package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldConfidence(t *testing.T) {
	tests := []struct {
		name                  string
		locator, recog, parse float64
		want                  float64
	}{
		{"all perfect", 1.0, 1.0, 1.0, 1.0},
		{"product of components", 0.9, 0.9, 1.0, 0.81},
		{"zero locator collapses", 0, 0.99, 1.0, 0},
		{"zero recognition collapses", 1.0, 0, 1.0, 0},
		{"zero parse collapses", 1.0, 1.0, 0, 0},
		{"inputs clamped above one", 2.0, 1.0, 1.0, 1.0},
		{"inputs clamped below zero", -0.5, 1.0, 1.0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, FieldConfidence(tt.locator, tt.recog, tt.parse), 1e-12)
		})
	}
}

func TestMeetsThreshold(t *testing.T) {
	assert.True(t, MeetsThreshold(0.995, 0.995), "boundary is inclusive")
	assert.True(t, MeetsThreshold(0.999, 0.995))
	assert.False(t, MeetsThreshold(0.9949, 0.995))
}

func TestFormatConfidence(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0.95, "0.95"},
		{0.995, "0.995"},
		{0, "0"},
		{1, "1"},
		{0.999, "0.999"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatConfidence(tt.in))
	}
}
