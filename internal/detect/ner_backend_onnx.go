//go:build onnx
// +build onnx

package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

func nerBackendSupported() bool { return true }

// bioLabels is the default tag set for token-classification heads. A
// labels.json file next to the model overrides it.
var bioLabels = []string{
	"O",
	"B-PER", "I-PER",
	"B-ORG", "I-ORG",
	"B-LOC", "I-LOC",
	"B-MISC", "I-MISC",
}

// OnnxNERBackend implements NERBackend using ONNX Runtime
// (via yalue/onnxruntime_go). Requires build tag 'onnx'.
type OnnxNERBackend struct {
	session    *ort.DynamicAdvancedSession
	inputNames []string
	vocab      map[string]int64
	labels     []string
	maxLength  int
	logger     *zap.Logger
	ready      bool
	mu         sync.RWMutex
}

// NewNERBackend initializes the ONNX Runtime NER backend. The model
// directory must contain a vocab.json token table; labels.json is optional.
func NewNERBackend(logger *zap.Logger, modelPath string, maxLength int) NERBackend {
	// Allow user to provide shared library path via environment variable.
	if shlib := os.Getenv("ONNXRUNTIME_SHARED_LIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		logger.Error("ONNX Runtime environment init failed", zap.Error(err))
		return nil
	}

	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		logger.Error("Failed to inspect ONNX model IO", zap.Error(err), zap.String("model", modelPath))
		return nil
	}
	if len(outputsInfo) == 0 {
		logger.Error("ONNX model reports no outputs", zap.String("model", modelPath))
		return nil
	}

	preferredInputs := []string{"input_ids", "attention_mask"}
	available := map[string]bool{}
	for _, ii := range inputsInfo {
		available[strings.ToLower(ii.Name)] = true
	}
	var inputNames []string
	for _, name := range preferredInputs {
		if available[name] {
			inputNames = append(inputNames, name)
		}
	}
	if len(inputNames) == 0 && len(inputsInfo) > 0 {
		for _, ii := range inputsInfo {
			inputNames = append(inputNames, ii.Name)
		}
	}

	outputName := outputsInfo[0].Name
	sess, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, []string{outputName}, nil)
	if err != nil {
		logger.Error("ONNX Runtime session creation failed", zap.Error(err), zap.String("model", modelPath))
		return nil
	}

	modelDir := filepath.Dir(modelPath)
	vocab, err := loadVocab(filepath.Join(modelDir, "vocab.json"))
	if err != nil {
		logger.Error("Failed to load NER vocab", zap.Error(err))
		sess.Destroy()
		return nil
	}

	labels := bioLabels
	if custom, err := loadLabels(filepath.Join(modelDir, "labels.json")); err == nil && len(custom) > 0 {
		labels = custom
	}

	logger.Info("ONNX NER backend ready",
		zap.String("model", modelPath),
		zap.Strings("inputs", inputNames),
		zap.Int("vocab_size", len(vocab)),
		zap.Int("labels", len(labels)))

	return &OnnxNERBackend{
		session:    sess,
		inputNames: inputNames,
		vocab:      vocab,
		labels:     labels,
		maxLength:  maxLength,
		logger:     logger,
		ready:      true,
	}
}

func loadVocab(path string) (map[string]int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	vocab := make(map[string]int64)
	if err := json.Unmarshal(data, &vocab); err != nil {
		return nil, err
	}
	return vocab, nil
}

func loadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, err
	}
	return labels, nil
}

// IsReady reports whether the backend is initialized.
func (b *OnnxNERBackend) IsReady() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready && b.session != nil
}

// Close releases session and environment resources.
func (b *OnnxNERBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		b.session.Destroy()
		b.session = nil
	}
	ort.DestroyEnvironment()
	b.ready = false
	return nil
}

// Recognize tokenizes the text, runs the classification head and merges
// contiguous B-/I- tags into entities.
func (b *OnnxNERBackend) Recognize(ctx context.Context, text string) ([]Entity, error) {
	if !b.IsReady() {
		return nil, fmt.Errorf("onnx ner backend not ready")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}
	if len(words) > b.maxLength {
		words = words[:b.maxLength]
	}

	seqLen := len(words)
	inputIDs := make([]int64, seqLen)
	attention := make([]int64, seqLen)
	for i, w := range words {
		id, ok := b.vocab[strings.ToLower(w)]
		if !ok {
			id = 0 // UNK
		}
		inputIDs[i] = id
		attention[i] = 1
	}

	shape := ort.NewShape(1, int64(seqLen))
	idsTensor, err := ort.NewTensor[int64](shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor[int64](shape, attention)
	if err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	inputs := make([]ort.Value, 0, len(b.inputNames))
	for _, name := range b.inputNames {
		if strings.Contains(strings.ToLower(name), "mask") {
			inputs = append(inputs, maskTensor)
		} else {
			inputs = append(inputs, idsTensor)
		}
	}

	outputs := make([]ort.Value, 1)
	if err := b.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("onnx run failed: %w", err)
	}
	if len(outputs) == 0 || outputs[0] == nil {
		return nil, fmt.Errorf("onnx returned no outputs")
	}
	defer outputs[0].Destroy()

	outTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type (want float32 tensor)")
	}
	logits := outTensor.GetData()
	outShape := outTensor.GetShape()
	if len(outShape) != 3 {
		return nil, fmt.Errorf("unsupported output shape %v", outShape)
	}
	numLabels := int(outShape[2])
	if numLabels > len(b.labels) {
		numLabels = len(b.labels)
	}

	return b.mergeEntities(words, logits, int(outShape[1]), int(outShape[2]), numLabels), nil
}

// mergeEntities walks token predictions and joins runs of the same entity
// type into one Entity, following the BIO scheme loosely: an I- tag that
// continues the current type extends it, anything else starts fresh.
func (b *OnnxNERBackend) mergeEntities(words []string, logits []float32, seq, stride, numLabels int) []Entity {
	var entities []Entity
	var current strings.Builder
	currentType := ""
	confSum := 0.0
	confCount := 0

	flush := func() {
		if currentType != "" && current.Len() > 0 {
			conf := 0.0
			if confCount > 0 {
				conf = confSum / float64(confCount)
			}
			entities = append(entities, Entity{
				Label:      currentType,
				Value:      current.String(),
				Confidence: conf,
			})
		}
		current.Reset()
		currentType = ""
		confSum = 0
		confCount = 0
	}

	n := len(words)
	if seq < n {
		n = seq
	}
	for i := 0; i < n; i++ {
		offset := i * stride
		best, bestScore := 0, float32(math.Inf(-1))
		var sumExp float64
		for j := 0; j < numLabels; j++ {
			if logits[offset+j] > bestScore {
				bestScore = logits[offset+j]
				best = j
			}
		}
		for j := 0; j < numLabels; j++ {
			sumExp += math.Exp(float64(logits[offset+j] - bestScore))
		}
		prob := 1.0 / sumExp

		label := b.labels[best]
		if label == "O" {
			flush()
			continue
		}
		entType := strings.TrimPrefix(strings.TrimPrefix(label, "B-"), "I-")
		if strings.HasPrefix(label, "I-") && entType == currentType {
			current.WriteByte(' ')
			current.WriteString(words[i])
		} else {
			flush()
			currentType = entType
			current.WriteString(words[i])
		}
		confSum += prob
		confCount++
	}
	flush()

	return entities
}
