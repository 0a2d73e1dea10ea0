package imagemask

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/veildoc/veildoc/internal/vault"
	"go.uber.org/zap"
)

// ManualRegion is a caller-drawn region masked unconditionally, independent
// of detection.
type ManualRegion struct {
	BBox  [][2]int `json:"bbox"`
	Label string   `json:"label"`
}

// MaskManual paints over caller-supplied regions with the same patch
// capture and encryption path as detected regions. The encrypted value is
// a synthetic descriptor of the selection; the pixels, not the text, are
// what restoration brings back.
func (m *Masker) MaskManual(img image.Image, regions []ManualRegion, engine *vault.Engine) (*Result, error) {
	canvas := imaging.Clone(img)
	bounds := canvas.Bounds()

	var records []*vault.Record
	for i, region := range regions {
		label := region.Label
		if label == "" {
			label = "MANUAL"
		}

		poly := ClampPoly(region.BBox, bounds)
		rect := PolyBounds(poly)
		if rect.Dx() <= 0 || rect.Dy() <= 0 {
			m.logger.Warn("Skipping manual region with degenerate geometry",
				zap.Int("region", i+1))
			continue
		}

		patch, err := encodePatch(canvas, rect)
		if err != nil {
			m.logger.Warn("Failed to encode manual region patch, skipping region", zap.Error(err))
			continue
		}

		value := fmt.Sprintf("selection:%s:%d,%d,%d,%d", label,
			rect.Min.X, rect.Min.Y, rect.Dx(), rect.Dy())
		cipher, err := engine.EncryptValue(value)
		if err != nil {
			m.logger.Error("Failed to encrypt manual region, skipping region", zap.Error(err))
			continue
		}

		m.paint(canvas, rect)

		records = append(records, &vault.Record{
			Encrypted:     cipher,
			Label:         label,
			Masked:        vault.TagForValue(label, value),
			BBox:          poly,
			Confidence:    1,
			OriginalPatch: patch,
		})
	}

	return &Result{Image: canvas, Records: records}, nil
}
