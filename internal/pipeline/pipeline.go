package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/veildoc/veildoc/internal/cache"
	"github.com/veildoc/veildoc/internal/config"
	"github.com/veildoc/veildoc/internal/consensus"
	"github.com/veildoc/veildoc/internal/detect"
	"github.com/veildoc/veildoc/internal/dictionary"
	"github.com/veildoc/veildoc/internal/imagemask"
	"github.com/veildoc/veildoc/internal/ocr"
	"github.com/veildoc/veildoc/internal/pagedoc"
	"go.uber.org/zap"
)

// Pipeline wires detection, consensus, encryption and the surface maskers
// into per-document mask/restore operations.
type Pipeline struct {
	cfg      *config.Config
	registry *detect.Registry
	filter   *consensus.Filter
	ocr      ocr.Engine
	masker   *imagemask.Masker
	coord    *pagedoc.Coordinator
	cache    *cache.DetectionCache
	logger   *zap.Logger
}

// New assembles a pipeline from configuration. Detectors that cannot run
// (missing dictionary, missing model, no API key) are registered anyway and
// skipped at detection time; a failing cache connection downgrades to no
// caching rather than failing startup.
func New(cfg *config.Config, logger *zap.Logger) (*Pipeline, error) {
	registry := detect.NewRegistry(logger)

	if cfg.Detectors.Rules.Enabled {
		registry.Register(detect.NewRuleDetector())
	}
	if cfg.Detectors.Dictionary.Enabled {
		store, err := dictionary.Load(cfg.Detectors.Dictionary.Path, logger)
		if err != nil {
			logger.Warn("Dictionary unavailable, detector skipped",
				zap.String("path", cfg.Detectors.Dictionary.Path),
				zap.Error(err))
		} else {
			registry.Register(detect.NewDictionaryDetector(store))
		}
	}
	if cfg.Detectors.NER.Enabled {
		registry.Register(detect.NewNERDetector(cfg.Detectors.NER.ModelPath, cfg.Detectors.NER.MaxLength, logger))
	}
	if cfg.Detectors.LLM.Enabled {
		registry.Register(detect.NewLLMDetector(detect.LLMConfig{
			Model:          cfg.Detectors.LLM.Model,
			BaseURL:        cfg.Detectors.LLM.BaseURL,
			Timeout:        cfg.Detectors.LLM.Timeout,
			MaxRetries:     cfg.Detectors.LLM.MaxRetries,
			RequestsPerMin: cfg.Detectors.LLM.RequestsPerMin,
		}, logger))
	}

	if len(registry.Available()) == 0 {
		return nil, fmt.Errorf("no detectors available")
	}

	p := &Pipeline{
		cfg:      cfg,
		registry: registry,
		filter: consensus.NewFilter(
			cfg.Privacy.EnabledCategories,
			cfg.Privacy.IgnoreWords,
			cfg.Privacy.LocationAllowList,
			logger),
		ocr:    ocr.NewEngine(cfg.OCR.Languages, logger),
		masker: imagemask.NewMasker(cfg.OCR.IoUThreshold, logger),
		coord:  pagedoc.NewCoordinator(cfg.PDF.DPI, cfg.PDF.Workers, logger),
		logger: logger,
	}

	if cfg.Cache.Enabled {
		dc, err := cache.NewDetectionCache(&cfg.Cache, logger)
		if err != nil {
			logger.Warn("Detection cache unavailable, continuing without it", zap.Error(err))
		} else {
			p.cache = dc
		}
	}

	return p, nil
}

// DetectEntries runs the full detect → merge → filter stage over one text.
// The cache, when present, short-circuits repeat documents; cache errors
// are always treated as misses.
func (p *Pipeline) DetectEntries(ctx context.Context, text string) []consensus.Entry {
	if text == "" {
		return nil
	}

	if p.cache != nil {
		if entries, ok := p.cache.Get(ctx, text, p.cfg.Privacy.EnabledCategories); ok {
			return entries
		}
	}

	lists := p.registry.DetectAll(ctx, text)
	entries := p.filter.Apply(consensus.Merge(lists))

	if p.cache != nil {
		p.cache.Put(ctx, text, p.cfg.Privacy.EnabledCategories, entries)
	}
	return entries
}

// Close releases the OCR engine and cache connections.
func (p *Pipeline) Close() error {
	var firstErr error
	if err := p.ocr.Close(); err != nil {
		firstErr = err
	}
	if p.cache != nil {
		if err := p.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// fileKind classifies a document by extension.
type fileKind int

const (
	kindText fileKind = iota
	kindCSV
	kindDocx
	kindXlsx
	kindImage
	kindPDF
)

// UnsupportedFormatError marks an input the pipeline cannot process. The
// caller reports it without masking anything.
type UnsupportedFormatError struct {
	Path string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format: %s", filepath.Ext(e.Path))
}

func classify(path string) (fileKind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".log", ".md":
		return kindText, nil
	case ".csv":
		return kindCSV, nil
	case ".docx":
		return kindDocx, nil
	case ".xlsx":
		return kindXlsx, nil
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff":
		return kindImage, nil
	case ".pdf":
		return kindPDF, nil
	default:
		return 0, &UnsupportedFormatError{Path: path}
	}
}

// Artifacts are the three outputs of a masking run.
type Artifacts struct {
	MaskedPath  string `json:"masked_path"`
	MappingPath string `json:"mapping_path"`
	KeyPath     string `json:"key_path"`
}

// artifactPaths derives the artifact layout for an input file. For
// name.ext the masked file is name.masked.ext, the mapping
// name.masked.json and the key name.key.
func artifactPaths(inPath, outDir string) Artifacts {
	base := filepath.Base(inPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return Artifacts{
		MaskedPath:  filepath.Join(outDir, stem+".masked"+ext),
		MappingPath: filepath.Join(outDir, stem+".masked.json"),
		KeyPath:     filepath.Join(outDir, stem+".key"),
	}
}

// restoredPath derives the restore output path. The ".masked" marker, when
// present, is swapped for ".restored".
func restoredPath(maskedPath, outDir string) string {
	base := filepath.Base(maskedPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	stem = strings.TrimSuffix(stem, ".masked")
	return filepath.Join(outDir, stem+".restored"+ext)
}
