//go:build tesseract
// +build tesseract

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"
)

// TesseractEngine implements Engine over gosseract. Requires build tag
// 'tesseract' and a libtesseract installation.
type TesseractEngine struct {
	languages []string
	logger    *zap.Logger

	// gosseract clients are not safe for concurrent use; one call at a
	// time keeps the page workers honest.
	mu     sync.Mutex
	client *gosseract.Client
}

// NewEngine creates a Tesseract-backed OCR engine.
func NewEngine(languages []string, logger *zap.Logger) Engine {
	client := gosseract.NewClient()
	if len(languages) > 0 {
		if err := client.SetLanguage(languages...); err != nil {
			logger.Warn("Failed to set OCR languages, falling back to defaults", zap.Error(err))
		}
	}
	return &TesseractEngine{languages: languages, logger: logger, client: client}
}

func (e *TesseractEngine) IsAvailable() bool { return e.client != nil }

// Close releases the underlying tesseract client.
func (e *TesseractEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

// Read runs word-level OCR over the image.
func (e *TesseractEngine) Read(ctx context.Context, img image.Image) ([]Fragment, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image for OCR: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil, fmt.Errorf("ocr engine is closed")
	}

	if err := e.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to load image into OCR engine: %w", err)
	}

	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("ocr read failed: %w", err)
	}

	fragments := make([]Fragment, 0, len(boxes))
	for _, box := range boxes {
		if box.Word == "" {
			continue
		}
		fragments = append(fragments, RectFragment(
			box.Box.Min.X, box.Box.Min.Y, box.Box.Max.X, box.Box.Max.Y,
			box.Word, box.Confidence/100.0,
		))
	}
	return fragments, nil
}
