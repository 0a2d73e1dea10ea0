package pipeline

import (
	"context"
	"fmt"
	"image"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"github.com/veildoc/veildoc/internal/imagemask"
	"github.com/veildoc/veildoc/internal/mask"
	"github.com/veildoc/veildoc/internal/pagedoc"
	"github.com/veildoc/veildoc/internal/vault"
	"go.uber.org/zap"
)

// Statuses of a masking run.
const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
)

// Options carries per-run parameters.
type Options struct {
	// TaskID identifies the run in logs and progress events.
	TaskID string
	// Progress, when set, receives page completion updates for multi-page
	// documents.
	Progress pagedoc.ProgressFunc
}

// Result summarizes one masking run.
type Result struct {
	Artifacts   Artifacts      `json:"artifacts"`
	Status      string         `json:"status"`
	Detected    int            `json:"detected"`
	Masked      int            `json:"masked"`
	FailedPages []int          `json:"failed_pages,omitempty"`
	ByCategory  map[string]int `json:"by_category"`
}

// Mask runs the full pipeline over one document and writes the masked
// artifact, the mapping file and the key file into outDir.
func (p *Pipeline) Mask(ctx context.Context, inPath, outDir string, opts Options) (*Result, error) {
	kind, err := classify(inPath)
	if err != nil {
		return nil, err
	}

	art := artifactPaths(inPath, outDir)
	key, err := vault.LoadOrGenerateKey(art.KeyPath, p.logger)
	if err != nil {
		return nil, err
	}
	engine := vault.NewEngine(key, p.logger)

	log := p.logger.With(zap.String("task_id", opts.TaskID), zap.String("input", inPath))
	log.Info("Masking document")

	var result *Result
	switch kind {
	case kindText, kindCSV, kindDocx, kindXlsx:
		result, err = p.maskTextSurface(ctx, kind, inPath, art, engine)
	case kindImage:
		result, err = p.maskImage(ctx, inPath, art, engine)
	case kindPDF:
		result, err = p.maskPDF(ctx, inPath, art, engine, opts.Progress)
	}
	if err != nil {
		return nil, err
	}

	log.Info("Document masked",
		zap.String("status", result.Status),
		zap.Int("detected", result.Detected),
		zap.Int("masked", result.Masked),
		zap.Ints("failed_pages", result.FailedPages))

	return result, nil
}

// maskTextSurface handles every surface whose content reduces to a string:
// plain text, CSV cells, DOCX runs, XLSX cells.
func (p *Pipeline) maskTextSurface(ctx context.Context, kind fileKind, inPath string, art Artifacts, engine *vault.Engine) (*Result, error) {
	var text string
	var err error
	switch kind {
	case kindDocx:
		text, err = mask.ReadDocxText(inPath)
	case kindXlsx:
		text, err = mask.ReadXlsxText(inPath)
	default:
		text, err = mask.ReadTextFile(inPath)
	}
	if err != nil {
		return nil, err
	}

	entries := p.DetectEntries(ctx, text)
	records, lookup := engine.TagAndEncrypt(entries)

	switch kind {
	case kindCSV:
		err = mask.MaskCSVFile(inPath, art.MaskedPath, lookup)
	case kindDocx:
		err = mask.MaskDocxFile(inPath, art.MaskedPath, lookup)
	case kindXlsx:
		err = mask.MaskXlsxFile(inPath, art.MaskedPath, lookup)
	default:
		err = mask.MaskTextFile(inPath, art.MaskedPath, lookup)
	}
	if err != nil {
		return nil, err
	}

	if err := vault.WriteMapping(art.MappingPath, records); err != nil {
		return nil, err
	}

	return &Result{
		Artifacts:  art,
		Status:     StatusCompleted,
		Detected:   len(entries),
		Masked:     len(records),
		ByCategory: countByCategory(records),
	}, nil
}

// maskImage handles a single raster image: OCR, line reconstruction,
// detection over the rebuilt text, then region masking.
func (p *Pipeline) maskImage(ctx context.Context, inPath string, art Artifacts, engine *vault.Engine) (*Result, error) {
	if !p.ocr.IsAvailable() {
		return nil, fmt.Errorf("ocr engine unavailable, cannot mask image")
	}

	img, err := imaging.Open(inPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	masked, records, detected, err := p.maskRaster(ctx, img, engine)
	if err != nil {
		return nil, err
	}

	if err := imaging.Save(masked, art.MaskedPath); err != nil {
		return nil, fmt.Errorf("failed to save masked image: %w", err)
	}
	if err := vault.WriteMapping(art.MappingPath, records); err != nil {
		return nil, err
	}

	return &Result{
		Artifacts:  art,
		Status:     StatusCompleted,
		Detected:   detected,
		Masked:     len(records),
		ByCategory: countByCategory(records),
	}, nil
}

// maskRaster is the shared per-image stage used by both the single-image
// path and the per-page PDF path.
func (p *Pipeline) maskRaster(ctx context.Context, img image.Image, engine *vault.Engine) (*image.NRGBA, []*vault.Record, int, error) {
	fragments, err := p.ocr.Read(ctx, img)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("ocr failed: %w", err)
	}

	text := imagemask.ReconstructText(fragments, p.cfg.OCR.LineThreshold)
	entries := p.DetectEntries(ctx, text)

	res, err := p.masker.Mask(img, fragments, entries, engine)
	if err != nil {
		return nil, nil, 0, err
	}
	return res.Image, res.Records, len(entries), nil
}

// maskPDF rasterizes the document and masks pages through the coordinator.
func (p *Pipeline) maskPDF(ctx context.Context, inPath string, art Artifacts, engine *vault.Engine, progress pagedoc.ProgressFunc) (*Result, error) {
	if !p.ocr.IsAvailable() {
		return nil, fmt.Errorf("ocr engine unavailable, cannot mask pdf")
	}

	var detected atomic.Int64
	process := func(ctx context.Context, page int, img image.Image) (*image.NRGBA, []*vault.Record, error) {
		masked, records, n, err := p.maskRaster(ctx, img, engine)
		if err != nil {
			return nil, nil, err
		}
		detected.Add(int64(n))
		return masked, records, nil
	}

	docResult, err := p.coord.MaskPDF(ctx, inPath, process, progress)
	if err != nil {
		return nil, err
	}

	if err := pagedoc.AssemblePDF(docResult.Pages, art.MaskedPath); err != nil {
		return nil, err
	}
	if err := vault.WriteMapping(art.MappingPath, docResult.Records); err != nil {
		return nil, err
	}

	status := StatusCompleted
	if len(docResult.FailedPages) > 0 {
		status = StatusPartial
	}

	return &Result{
		Artifacts:   art,
		Status:      status,
		Detected:    int(detected.Load()),
		Masked:      len(docResult.Records),
		FailedPages: docResult.FailedPages,
		ByCategory:  countByCategory(docResult.Records),
	}, nil
}

func countByCategory(records []*vault.Record) map[string]int {
	out := make(map[string]int, len(records))
	for _, r := range records {
		out[r.Label]++
	}
	return out
}
