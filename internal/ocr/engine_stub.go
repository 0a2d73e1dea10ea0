//go:build !tesseract
// +build !tesseract

package ocr

import (
	"context"
	"fmt"
	"image"

	"go.uber.org/zap"
)

// Stub implementation used when the 'tesseract' build tag is not set. The
// image pipeline reports itself unavailable instead of failing mid-task.
type stubEngine struct{}

// NewEngine returns a stub engine; builds without the tesseract tag cannot
// OCR.
func NewEngine(languages []string, logger *zap.Logger) Engine {
	return stubEngine{}
}

func (stubEngine) IsAvailable() bool { return false }

func (stubEngine) Close() error { return nil }

func (stubEngine) Read(ctx context.Context, img image.Image) ([]Fragment, error) {
	return nil, fmt.Errorf("ocr engine not built in (build with -tags tesseract)")
}
