package ocr

import (
	"context"
	"image"
)

// Fragment is one OCR token or line: a 4-point polygon (clockwise from
// top-left), its recognized text and the engine's confidence.
type Fragment struct {
	BBox       [][2]int `json:"bbox"`
	Text       string   `json:"text"`
	Confidence float64  `json:"confidence"`
}

// Engine reads text fragments from an image. Implementations wrap a real
// OCR engine; the pipeline treats it as a pluggable collaborator.
type Engine interface {
	Read(ctx context.Context, img image.Image) ([]Fragment, error)
	IsAvailable() bool
	Close() error
}

// RectFragment builds a Fragment from an axis-aligned rectangle.
func RectFragment(x0, y0, x1, y1 int, text string, confidence float64) Fragment {
	return Fragment{
		BBox: [][2]int{
			{x0, y0},
			{x1, y0},
			{x1, y1},
			{x0, y1},
		},
		Text:       text,
		Confidence: confidence,
	}
}
