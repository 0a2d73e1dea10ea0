package pipeline

import (
	"context"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/veildoc/veildoc/internal/imagemask"
	"github.com/veildoc/veildoc/internal/vault"
	"go.uber.org/zap"
)

// MaskManualRegions masks caller-drawn regions on an image. Only raster
// images are supported; multi-page documents go through the detection path.
func (p *Pipeline) MaskManualRegions(ctx context.Context, inPath, outDir string, regions []imagemask.ManualRegion, opts Options) (*Result, error) {
	kind, err := classify(inPath)
	if err != nil {
		return nil, err
	}
	if kind != kindImage {
		return nil, fmt.Errorf("manual region masking requires an image input")
	}
	if len(regions) == 0 {
		return nil, fmt.Errorf("no regions supplied")
	}

	art := artifactPaths(inPath, outDir)
	key, err := vault.LoadOrGenerateKey(art.KeyPath, p.logger)
	if err != nil {
		return nil, err
	}
	engine := vault.NewEngine(key, p.logger)

	img, err := imaging.Open(inPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	res, err := p.masker.MaskManual(img, regions, engine)
	if err != nil {
		return nil, err
	}

	if err := imaging.Save(res.Image, art.MaskedPath); err != nil {
		return nil, fmt.Errorf("failed to save masked image: %w", err)
	}
	if err := vault.WriteMapping(art.MappingPath, res.Records); err != nil {
		return nil, err
	}

	p.logger.Info("Manual regions masked",
		zap.String("task_id", opts.TaskID),
		zap.String("input", inPath),
		zap.Int("regions", len(regions)),
		zap.Int("masked", len(res.Records)))

	return &Result{
		Artifacts:  art,
		Status:     StatusCompleted,
		Detected:   len(regions),
		Masked:     len(res.Records),
		ByCategory: countByCategory(res.Records),
	}, nil
}
