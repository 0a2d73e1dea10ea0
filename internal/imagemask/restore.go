package imagemask

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"

	"github.com/disintegration/imaging"
	"github.com/veildoc/veildoc/internal/vault"
	"go.uber.org/zap"
)

// RestoreImage repaints every masked region of img from the pixel patches
// stored in the mapping records. Per-region failures (missing patch,
// undecodable blob, degenerate geometry) are logged and skipped; the rest
// of the image still restores. The returned count is the number of regions
// actually repainted.
func RestoreImage(img image.Image, records []*vault.Record, logger *zap.Logger) (*image.NRGBA, int) {
	canvas := imaging.Clone(img)
	bounds := canvas.Bounds()
	restored := 0

	for i, record := range records {
		if err := restoreRegion(canvas, bounds, record); err != nil {
			logger.Warn("Failed to restore region",
				zap.Int("region", i+1),
				zap.Error(err))
			continue
		}
		restored++
	}

	// Cleanup pass: regions whose stored geometry no longer lines up with
	// the mask can leave residual black pixels behind; inpaint them.
	for _, record := range records {
		rect := PolyBounds(ClampPoly(record.BBox, bounds))
		if rect.Dx() <= 0 || rect.Dy() <= 0 {
			continue
		}
		if fixed := inpaintDarkPixels(canvas, rect, 10); fixed > 0 {
			logger.Debug("Inpainted residual mask pixels", zap.Int("pixels", fixed))
		}
	}

	return canvas, restored
}

// restoreRegion paints one region's original patch back onto the canvas.
func restoreRegion(canvas *image.NRGBA, bounds image.Rectangle, record *vault.Record) error {
	if record.OriginalPatch == "" {
		return fmt.Errorf("record has no stored patch")
	}

	raw, err := base64.StdEncoding.DecodeString(record.OriginalPatch)
	if err != nil {
		return fmt.Errorf("patch is not valid base64: %w", err)
	}
	patch, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("patch image decode failed: %w", err)
	}

	core := PolyBounds(ClampPoly(record.BBox, bounds))
	if core.Dx() <= 0 || core.Dy() <= 0 {
		return fmt.Errorf("region has zero area after clamping")
	}

	// The expansion margin swallows the blurred border left by masking.
	expanded := expandRect(core, blurMargin).Intersect(bounds)
	pb := patch.Bounds()

	if pb.Dx() == expanded.Dx() && pb.Dy() == expanded.Dy() {
		// Patch was captured with the margin included: paint it back
		// verbatim for a pixel-exact restore.
		draw.Draw(canvas, expanded, patch, pb.Min, draw.Src)
		return nil
	}

	// Geometry mismatch (legacy mapping or post-mask rescaling): resize
	// to the core rectangle with a high-quality filter and replicate the
	// patch edges into the margin.
	resized := patch
	if pb.Dx() != core.Dx() || pb.Dy() != core.Dy() {
		resized = imaging.Resize(patch, core.Dx(), core.Dy(), imaging.Lanczos)
	}
	draw.Draw(canvas, core, resized, resized.Bounds().Min, draw.Src)
	replicateEdges(canvas, core, expanded)
	return nil
}

// replicateEdges fills the gap between core and expanded by copying the
// nearest core-edge pixel outward.
func replicateEdges(canvas *image.NRGBA, core, expanded image.Rectangle) {
	for y := expanded.Min.Y; y < expanded.Max.Y; y++ {
		for x := expanded.Min.X; x < expanded.Max.X; x++ {
			if image.Pt(x, y).In(core) {
				continue
			}
			sx, sy := x, y
			if sx < core.Min.X {
				sx = core.Min.X
			}
			if sx >= core.Max.X {
				sx = core.Max.X - 1
			}
			if sy < core.Min.Y {
				sy = core.Min.Y
			}
			if sy >= core.Max.Y {
				sy = core.Max.Y - 1
			}
			canvas.SetNRGBA(x, y, canvas.NRGBAAt(sx, sy))
		}
	}
}
