package pipeline

import (
	"context"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/veildoc/veildoc/internal/imagemask"
	"github.com/veildoc/veildoc/internal/mask"
	"github.com/veildoc/veildoc/internal/vault"
	"go.uber.org/zap"
)

// RestoreResult summarizes one restoration run. Unresolved lists the
// records whose ciphertext did not verify; a non-empty list means the
// output is a partial restoration.
type RestoreResult struct {
	OutputPath string   `json:"output_path"`
	Records    int      `json:"records"`
	Restored   int      `json:"restored"`
	Unresolved []string `json:"unresolved,omitempty"`
}

// Restore reverses a masking run. The key must load and decode: a missing
// or corrupt key is fatal, because a regenerated key cannot decrypt prior
// ciphertext. Individual records that fail to decrypt are skipped; the rest
// of the document still restores.
func (p *Pipeline) Restore(ctx context.Context, maskedPath, mappingPath, keyPath, outDir string, opts Options) (*RestoreResult, error) {
	kind, err := classify(maskedPath)
	if err != nil {
		return nil, err
	}

	key, err := vault.LoadKey(keyPath)
	if err != nil {
		return nil, err
	}
	records, err := vault.ReadMapping(mappingPath)
	if err != nil {
		return nil, err
	}
	usable, unresolved := vault.DecryptRecords(records, key, p.logger)

	outPath := restoredPath(maskedPath, outDir)
	log := p.logger.With(zap.String("task_id", opts.TaskID), zap.String("input", maskedPath))
	log.Info("Restoring document",
		zap.Int("records", len(records)),
		zap.Int("usable", usable))

	restored := usable
	switch kind {
	case kindText:
		err = mask.RestoreTextFile(maskedPath, outPath, records)
	case kindCSV:
		err = mask.RestoreCSVFile(maskedPath, outPath, records)
	case kindDocx:
		err = mask.RestoreDocxFile(maskedPath, outPath, records)
	case kindXlsx:
		err = mask.RestoreXlsxFile(maskedPath, outPath, records)
	case kindImage:
		restored, err = p.restoreImage(maskedPath, outPath, records)
	case kindPDF:
		restored, err = p.coord.RestorePDF(ctx, maskedPath, records, outPath, opts.Progress)
	}
	if err != nil {
		return nil, err
	}

	log.Info("Document restored",
		zap.String("output", outPath),
		zap.Int("restored", restored))

	return &RestoreResult{
		OutputPath: outPath,
		Records:    len(records),
		Restored:   restored,
		Unresolved: unresolved,
	}, nil
}

func (p *Pipeline) restoreImage(maskedPath, outPath string, records []*vault.Record) (int, error) {
	img, err := imaging.Open(maskedPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open masked image: %w", err)
	}

	canvas, restored := imagemask.RestoreImage(img, records, p.logger)
	if err := imaging.Save(canvas, outPath); err != nil {
		return 0, fmt.Errorf("failed to save restored image: %w", err)
	}
	return restored, nil
}
