package ocr

// TextLine is one recognized line of text with its position and the
// engine-reported confidence.
type TextLine struct {
	Text       string
	Confidence float64
	Lang       string
	X          int
	Y          int
	Width      int
	Height     int
}
