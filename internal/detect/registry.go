package detect

import (
	"context"

	"go.uber.org/zap"
)

// Registry is the capability-checked strategy list of detectors, assembled
// once at startup. Unavailable detectors (missing model file, no API key)
// stay registered but are never invoked.
type Registry struct {
	detectors []Detector
	logger    *zap.Logger
}

// NewRegistry creates an empty detector registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds a detector to the registry.
func (r *Registry) Register(d Detector) {
	r.detectors = append(r.detectors, d)
	r.logger.Info("Detector registered",
		zap.String("detector", d.Name()),
		zap.Bool("available", d.IsAvailable()))
}

// Available returns the detectors that can currently run.
func (r *Registry) Available() []Detector {
	var out []Detector
	for _, d := range r.detectors {
		if d.IsAvailable() {
			out = append(out, d)
		}
	}
	return out
}

// DetectAll runs every available detector over the text and returns one
// candidate list per detector. A detector that errors or panics contributes
// an empty list; one flaky source must never sink the whole merge.
func (r *Registry) DetectAll(ctx context.Context, text string) [][]Candidate {
	available := r.Available()
	results := make([][]Candidate, 0, len(available))

	for _, d := range available {
		candidates := r.runOne(ctx, d, text)
		results = append(results, candidates)
	}

	return results
}

// runOne invokes a single detector with panic isolation.
func (r *Registry) runOne(ctx context.Context, d Detector, text string) (candidates []Candidate) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Detector panicked",
				zap.String("detector", d.Name()),
				zap.Any("panic", rec))
			candidates = nil
		}
	}()

	candidates, err := d.Detect(ctx, text)
	if err != nil {
		r.logger.Warn("Detector failed, treating as empty contribution",
			zap.String("detector", d.Name()),
			zap.Error(err))
		return nil
	}

	r.logger.Debug("Detector completed",
		zap.String("detector", d.Name()),
		zap.Int("candidates", len(candidates)))

	return candidates
}
