package pagedoc

import (
	"context"
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/veildoc/veildoc/internal/imagemask"
	"github.com/veildoc/veildoc/internal/vault"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// restoreDPI matches the 1px = 1pt page geometry produced by AssemblePDF,
// so mask-time pixel coordinates stay valid at restore time.
const restoreDPI = 72

// PageProcessor masks a single rendered page and returns the masked image
// together with the regions it covered. Called concurrently.
type PageProcessor func(ctx context.Context, page int, img image.Image) (*image.NRGBA, []*vault.Record, error)

// ProgressFunc is invoked after each page finishes, in completion order.
type ProgressFunc func(completed, total int)

// Coordinator fans PDF pages out to a bounded worker pool. A failing page
// is kept unmasked and reported rather than sinking the whole document.
type Coordinator struct {
	dpi     float64
	workers int
	logger  *zap.Logger
}

func NewCoordinator(dpi float64, workers int, logger *zap.Logger) *Coordinator {
	if dpi <= 0 {
		dpi = 100
	}
	if workers <= 0 {
		workers = 4
	}
	return &Coordinator{dpi: dpi, workers: workers, logger: logger}
}

// Result is the outcome of masking one PDF.
type Result struct {
	Pages       []image.Image
	Records     []*vault.Record
	FailedPages []int
}

// MaskPDF rasterizes the document and masks pages concurrently. Records are
// stamped with their 1-based page number and returned in page order. If
// every page fails the document as a whole is an error; otherwise failed
// pages are listed in FailedPages and their rasters pass through unmasked.
func (c *Coordinator) MaskPDF(ctx context.Context, path string, process PageProcessor, progress ProgressFunc) (*Result, error) {
	rasters, err := RasterizePDF(path, c.dpi)
	if err != nil {
		return nil, err
	}
	return c.maskPages(ctx, rasters, process, progress)
}

// maskPages fans the rendered pages out to the worker pool. Outputs are
// placed by page index, never completion order.
func (c *Coordinator) maskPages(ctx context.Context, rasters []image.Image, process PageProcessor, progress ProgressFunc) (*Result, error) {
	if len(rasters) == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	total := len(rasters)
	outputs := make([]image.Image, total)
	perPage := make([][]*vault.Record, total)

	var mu sync.Mutex
	var failed []int
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i := range rasters {
		i := i
		g.Go(func() error {
			masked, records, perr := process(gctx, i+1, rasters[i])

			mu.Lock()
			defer mu.Unlock()
			if perr != nil {
				c.logger.Error("Page masking failed, keeping page unmasked",
					zap.Int("page", i+1),
					zap.Error(perr))
				outputs[i] = rasters[i]
				failed = append(failed, i+1)
			} else {
				imagemask.StampPage(records, i+1)
				outputs[i] = masked
				perPage[i] = records
			}
			done++
			if progress != nil {
				progress(done, total)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(failed) == total {
		return nil, fmt.Errorf("all %d pages failed to mask", total)
	}

	sort.Ints(failed)
	var records []*vault.Record
	for _, page := range perPage {
		records = append(records, page...)
	}

	return &Result{Pages: outputs, Records: records, FailedPages: failed}, nil
}

// RestorePDF re-renders a masked document, restores each page from its
// mapping records and writes the reassembled PDF to outPath. Mappings
// written before page stamping carry page number 0 and are applied to
// every page. Returns the number of regions restored.
func (c *Coordinator) RestorePDF(ctx context.Context, path string, records []*vault.Record, outPath string, progress ProgressFunc) (int, error) {
	rasters, err := RasterizePDF(path, restoreDPI)
	if err != nil {
		return 0, err
	}
	if len(rasters) == 0 {
		return 0, fmt.Errorf("pdf has no pages")
	}

	byPage := vault.SplitByPage(records)
	legacy := byPage[0]

	total := len(rasters)
	outputs := make([]image.Image, total)

	var mu sync.Mutex
	done := 0
	restored := 0

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i := range rasters {
		i := i
		g.Go(func() error {
			recs := append([]*vault.Record{}, byPage[i+1]...)
			recs = append(recs, legacy...)

			img, n := imagemask.RestoreImage(rasters[i], recs, c.logger)

			mu.Lock()
			defer mu.Unlock()
			outputs[i] = img
			restored += n
			done++
			if progress != nil {
				progress(done, total)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if err := AssemblePDF(outputs, outPath); err != nil {
		return 0, err
	}
	return restored, nil
}
