package pagedoc

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// RasterizePDF renders every page of the document at the given DPI.
// Rendering is sequential; fitz documents are not safe for concurrent use.
func RasterizePDF(path string, dpi float64) ([]image.Image, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer doc.Close()

	total := doc.NumPage()
	pages := make([]image.Image, 0, total)
	for i := 0; i < total; i++ {
		img, err := doc.ImageDPI(i, dpi)
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", i+1, err)
		}
		pages = append(pages, img)
	}
	return pages, nil
}

// AssemblePDF writes the page images into a fresh PDF, one image per page.
// Pages are sized to the image dimensions (1px = 1pt), so rasterizing the
// result at 72 DPI reproduces the exact pixel geometry.
func AssemblePDF(pages []image.Image, outPath string) error {
	if len(pages) == 0 {
		return fmt.Errorf("no pages to assemble")
	}

	tmp, err := os.MkdirTemp("", "veildoc-pages-*")
	if err != nil {
		return fmt.Errorf("failed to create page staging dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	files := make([]string, 0, len(pages))
	for i, img := range pages {
		p := filepath.Join(tmp, fmt.Sprintf("page_%04d.png", i+1))
		if err := imaging.Save(img, p); err != nil {
			return fmt.Errorf("failed to stage page %d: %w", i+1, err)
		}
		files = append(files, p)
	}

	if err := api.ImportImagesFile(files, outPath, nil, nil); err != nil {
		return fmt.Errorf("failed to assemble pdf: %w", err)
	}
	return nil
}
