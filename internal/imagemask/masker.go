package imagemask

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/draw"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/veildoc/veildoc/internal/consensus"
	"github.com/veildoc/veildoc/internal/ocr"
	"github.com/veildoc/veildoc/internal/vault"
	"go.uber.org/zap"
)

// blurMargin is the width of the Gaussian-blurred border painted around
// each masked box so restoration does not fight hard edges.
const blurMargin = 2

// Masker paints over OCR fragments that carry PII and records everything
// needed to reverse the operation.
type Masker struct {
	iouThreshold float64
	logger       *zap.Logger
}

// NewMasker creates an image masker. iouThreshold is the box-overlap ratio
// above which two equal-text fragments count as the same physical region.
func NewMasker(iouThreshold float64, logger *zap.Logger) *Masker {
	if iouThreshold <= 0 {
		iouThreshold = 0.85
	}
	return &Masker{iouThreshold: iouThreshold, logger: logger}
}

// Result is the outcome of masking one image.
type Result struct {
	Image   *image.NRGBA
	Records []*vault.Record
}

// seenRegion tracks already-masked regions for deduplication.
type seenRegion struct {
	bounds image.Rectangle
	text   string
}

// Mask paints over every OCR fragment whose text contains a PII keyword.
// Fragments covering the same physical region (IoU above the threshold
// with case-insensitively equal text) are masked once; the first fragment
// seen wins. Each masked region stores the original pixel patch and the
// ciphertext of the covered text.
//
// A keyword split across two fragments is not stitched back together; a
// fragment has to contain the keyword on its own to match.
func (m *Masker) Mask(img image.Image, fragments []ocr.Fragment, entries []consensus.Entry, engine *vault.Engine) (*Result, error) {
	canvas := imaging.Clone(img)
	bounds := canvas.Bounds()

	var records []*vault.Record
	var seen []seenRegion

	for _, frag := range fragments {
		entry, matched := matchEntry(frag.Text, entries)
		if !matched {
			continue
		}

		poly := ClampPoly(frag.BBox, bounds)
		rect := PolyBounds(poly)
		if rect.Dx() <= 0 || rect.Dy() <= 0 {
			m.logger.Warn("Skipping region with degenerate geometry",
				zap.Int("width", rect.Dx()),
				zap.Int("height", rect.Dy()))
			continue
		}

		if m.isDuplicate(rect, frag.Text, seen) {
			continue
		}
		seen = append(seen, seenRegion{bounds: rect, text: frag.Text})

		patch, err := encodePatch(canvas, rect)
		if err != nil {
			m.logger.Warn("Failed to encode region patch, skipping region", zap.Error(err))
			continue
		}

		cipher, err := engine.EncryptValue(frag.Text)
		if err != nil {
			m.logger.Error("Failed to encrypt region text, skipping region", zap.Error(err))
			continue
		}

		m.paint(canvas, rect)

		records = append(records, &vault.Record{
			Encrypted:     cipher,
			Label:         entry.Category,
			Masked:        vault.TagForValue(entry.Category, frag.Text),
			BBox:          poly,
			Confidence:    frag.Confidence,
			OriginalPatch: patch,
		})

		m.logger.Debug("Region masked",
			zap.String("label", entry.Category),
			zap.Float64("confidence", frag.Confidence))
	}

	return &Result{Image: canvas, Records: records}, nil
}

// matchEntry reports whether any PII value is a case-insensitive substring
// of the fragment text, returning the first matching entry.
func matchEntry(text string, entries []consensus.Entry) (consensus.Entry, bool) {
	lower := strings.ToLower(text)
	for _, e := range entries {
		if e.Value == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(e.Value)) {
			return e, true
		}
	}
	return consensus.Entry{}, false
}

// isDuplicate applies the IoU + equal-text rule. First-seen wins.
func (m *Masker) isDuplicate(rect image.Rectangle, text string, seen []seenRegion) bool {
	for _, s := range seen {
		if IoU(rect, s.bounds) > m.iouThreshold && strings.EqualFold(text, s.text) {
			return true
		}
	}
	return false
}

// encodePatch captures the pixels about to be destroyed as a base64 PNG,
// including the blur margin around the core rectangle.
func encodePatch(canvas *image.NRGBA, rect image.Rectangle) (string, error) {
	capture := expandRect(rect, blurMargin).Intersect(canvas.Bounds())
	patch := imaging.Crop(canvas, capture)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, patch, imaging.PNG); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// paint blurs a thin border around the rectangle and then fills the core
// black. The soft edge keeps the mask from leaving a hard seam that the
// restoration cleanup would have to inpaint around.
func (m *Masker) paint(canvas *image.NRGBA, rect image.Rectangle) {
	border := expandRect(rect, blurMargin).Intersect(canvas.Bounds())
	blurred := imaging.Blur(imaging.Crop(canvas, border), 1.0)
	draw.Draw(canvas, border, blurred, image.Point{}, draw.Src)

	draw.Draw(canvas, rect, image.Black, image.Point{}, draw.Src)
}

func expandRect(rect image.Rectangle, margin int) image.Rectangle {
	return image.Rect(rect.Min.X-margin, rect.Min.Y-margin, rect.Max.X+margin, rect.Max.Y+margin)
}

// StampPage sets the page number on every record. Page numbers are
// 1-based; 0 marks a legacy single-page mapping.
func StampPage(records []*vault.Record, page int) {
	for _, r := range records {
		r.PageNumber = page
	}
}
