package detect

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type scriptedDetector struct {
	name      string
	available bool
	detect    func() ([]Candidate, error)
}

func (d *scriptedDetector) Name() string { return d.name }

func (d *scriptedDetector) Source() Source { return SourceNER }

func (d *scriptedDetector) IsAvailable() bool { return d.available }

func (d *scriptedDetector) Detect(ctx context.Context, text string) ([]Candidate, error) {
	return d.detect()
}

func TestRegistry(t *testing.T) {
	t.Run("unavailable detectors skipped", func(t *testing.T) {
		r := NewRegistry(zap.NewNop())
		r.Register(&scriptedDetector{name: "on", available: true, detect: func() ([]Candidate, error) {
			return []Candidate{{Category: CategoryNames, Value: "Ahmad"}}, nil
		}})
		r.Register(&scriptedDetector{name: "off", available: false, detect: func() ([]Candidate, error) {
			t.Fatal("unavailable detector was invoked")
			return nil, nil
		}})

		lists := r.DetectAll(context.Background(), "Ahmad")
		if len(lists) != 1 {
			t.Fatalf("got %d contributions, want 1", len(lists))
		}
	})

	t.Run("failing detector contributes empty list", func(t *testing.T) {
		r := NewRegistry(zap.NewNop())
		r.Register(&scriptedDetector{name: "broken", available: true, detect: func() ([]Candidate, error) {
			return nil, errors.New("model exploded")
		}})
		r.Register(&scriptedDetector{name: "fine", available: true, detect: func() ([]Candidate, error) {
			return []Candidate{{Category: CategoryNames, Value: "Ahmad"}}, nil
		}})

		lists := r.DetectAll(context.Background(), "Ahmad")
		if len(lists) != 2 {
			t.Fatalf("got %d contributions, want 2", len(lists))
		}
		if len(lists[0]) != 0 {
			t.Errorf("failing detector contributed candidates: %v", lists[0])
		}
		if len(lists[1]) != 1 {
			t.Errorf("healthy detector lost candidates: %v", lists[1])
		}
	})

	t.Run("panicking detector is contained", func(t *testing.T) {
		r := NewRegistry(zap.NewNop())
		r.Register(&scriptedDetector{name: "bomb", available: true, detect: func() ([]Candidate, error) {
			panic("boom")
		}})

		lists := r.DetectAll(context.Background(), "anything")
		if len(lists) != 1 || len(lists[0]) != 0 {
			t.Errorf("panic was not downgraded to an empty contribution: %v", lists)
		}
	})
}
