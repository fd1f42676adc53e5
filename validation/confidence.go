package validation

import "strconv"

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// FieldConfidence computes the conjunctive field confidence
// locator × recognition × parse. Any component at zero collapses the
// result to exactly zero. Inputs and output are clamped to [0,1].
func FieldConfidence(locatorConf, recognitionConf, parseConf float64) float64 {
	return clamp01(clamp01(locatorConf) * clamp01(recognitionConf) * clamp01(parseConf))
}

// MeetsThreshold reports whether a field confidence passes the global
// acceptance threshold.
func MeetsThreshold(fieldConf, threshold float64) bool {
	return clamp01(fieldConf) >= threshold
}

// FormatConfidence renders a confidence value with the minimal number of
// decimals (0.95 -> "0.95", 0.995 -> "0.995"). Reason strings embed
// confidences in this form, so it must stay stable across runs.
func FormatConfidence(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
