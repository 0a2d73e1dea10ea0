package detect

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

// Entity is one named entity recognized by the NER backend.
type Entity struct {
	Label      string // PER, ORG, LOC, MISC
	Value      string
	Confidence float64
}

// NERBackend runs token-classification inference. Implementations are
// provided in build-tagged files: ner_backend_onnx.go (tag onnx) and
// ner_backend_stub.go.
type NERBackend interface {
	Recognize(ctx context.Context, text string) ([]Entity, error)
	IsReady() bool
	Close() error
}

// The model is loaded once per process and shared across all workers.
var (
	nerBackendOnce sync.Once
	nerBackend     NERBackend
)

func sharedNERBackend(logger *zap.Logger, modelPath string, maxLength int) NERBackend {
	nerBackendOnce.Do(func() {
		nerBackend = NewNERBackend(logger, modelPath, maxLength)
	})
	return nerBackend
}

// nerCategoryByLabel maps model entity labels to PII categories.
var nerCategoryByLabel = map[string]string{
	"PER": CategoryNames,
	"ORG": CategoryOrgNames,
	"LOC": CategoryLocations,
}

// NERDetector detects unstructured PII (person, organisation, location
// names) with a token-classification model.
type NERDetector struct {
	modelPath string
	maxLength int
	logger    *zap.Logger
}

// NewNERDetector creates a NER detector. The model itself is lazy-loaded
// on first use.
func NewNERDetector(modelPath string, maxLength int, logger *zap.Logger) *NERDetector {
	if maxLength <= 0 {
		maxLength = 256
	}
	return &NERDetector{modelPath: modelPath, maxLength: maxLength, logger: logger}
}

func (d *NERDetector) Name() string { return "ner" }

func (d *NERDetector) Source() Source { return SourceNER }

// IsAvailable reports whether the model file exists and the build carries
// an inference backend.
func (d *NERDetector) IsAvailable() bool {
	if !nerBackendSupported() {
		return false
	}
	_, err := os.Stat(d.modelPath)
	return err == nil
}

// Detect runs the model and maps entity labels onto PII categories.
func (d *NERDetector) Detect(ctx context.Context, text string) ([]Candidate, error) {
	backend := sharedNERBackend(d.logger, d.modelPath, d.maxLength)
	if backend == nil || !backend.IsReady() {
		return nil, fmt.Errorf("ner backend not ready")
	}

	entities, err := backend.Recognize(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("ner inference failed: %w", err)
	}

	var out []Candidate
	for _, ent := range entities {
		category, ok := nerCategoryByLabel[ent.Label]
		if !ok {
			continue
		}
		out = append(out, Candidate{
			Category:   category,
			Value:      ent.Value,
			Source:     SourceNER,
			Confidence: ent.Confidence,
		})
	}
	return out, nil
}
