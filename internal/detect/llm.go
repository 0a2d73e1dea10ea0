package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const llmSystemPrompt = `You are a PII extraction engine. Given a document text, ` +
	`return strictly a JSON object {"entities":[{"category":C,"value":V,"confidence":F}]} ` +
	`where C is one of NAMES, ORG_NAMES, LOCATIONS, RACES, RELIGIONS, STATUS, IC, PASSPORT, ` +
	`EMAIL, PHONE, DOB, BANK_ACCOUNT, CREDIT_CARD, and V is the exact substring from the ` +
	`document. Do not invent values that are not present verbatim in the text.`

// llmEnvelope is the JSON shape the model is asked to return.
type llmEnvelope struct {
	Entities []struct {
		Category   string  `json:"category"`
		Value      string  `json:"value"`
		Confidence float64 `json:"confidence"`
	} `json:"entities"`
}

// LLMConfig configures the LLM detector.
type LLMConfig struct {
	Model          string
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	RequestsPerMin int
}

// LLMDetector asks a chat-completion model to extract PII spans. It is an
// optional source: without an API key in the environment it reports itself
// unavailable and the registry skips it.
type LLMDetector struct {
	client  *openai.Client
	config  LLMConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewLLMDetector creates an LLM detector. The API key is read from
// VEILDOC_LLM_API_KEY, falling back to OPENAI_API_KEY.
func NewLLMDetector(cfg LLMConfig, logger *zap.Logger) *LLMDetector {
	d := &LLMDetector{config: cfg, logger: logger}

	apiKey := os.Getenv("VEILDOC_LLM_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return d
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	d.client = openai.NewClientWithConfig(clientCfg)

	rpm := cfg.RequestsPerMin
	if rpm <= 0 {
		rpm = 30
	}
	d.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)

	return d
}

func (d *LLMDetector) Name() string { return "llm" }

func (d *LLMDetector) Source() Source { return SourceLLM }

func (d *LLMDetector) IsAvailable() bool { return d.client != nil }

// Detect calls the model with a bounded retry budget. Exhaustion is an
// error to the caller; the registry downgrades it to an empty contribution.
func (d *LLMDetector) Detect(ctx context.Context, text string) ([]Candidate, error) {
	if d.client == nil {
		return nil, fmt.Errorf("llm detector has no API key")
	}

	var lastErr error
	attempts := d.config.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		candidates, err := d.callOnce(ctx, text)
		if err == nil {
			return candidates, nil
		}
		lastErr = err
		d.logger.Warn("LLM detection attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	return nil, fmt.Errorf("llm detection exhausted %d attempts: %w", attempts, lastErr)
}

func (d *LLMDetector) callOnce(parent context.Context, text string) ([]Candidate, error) {
	timeout := d.config.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       d.config.Model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: llmSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm returned no choices")
	}

	var envelope llmEnvelope
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &envelope); err != nil {
		return nil, fmt.Errorf("llm returned malformed JSON: %w", err)
	}

	var out []Candidate
	for _, ent := range envelope.Entities {
		value := strings.TrimSpace(ent.Value)
		if value == "" {
			continue
		}
		// The model must quote the document, not paraphrase it.
		if !strings.Contains(strings.ToLower(text), strings.ToLower(value)) {
			continue
		}
		out = append(out, Candidate{
			Category:   strings.ToUpper(strings.TrimSpace(ent.Category)),
			Value:      value,
			Source:     SourceLLM,
			Confidence: ent.Confidence,
		})
	}
	return out, nil
}
