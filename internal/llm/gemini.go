package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/retry"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const (
	DefaultModel     = "gemini-2.5-flash"
	DefaultLiteModel = "gemini-2.5-flash-lite"
)

// Gemini pricing (USD per million tokens)
type modelPricing struct {
	input  float64
	output float64
}

var geminiPricing = map[string]modelPricing{
	"gemini-3-flash-preview": {input: 0.50, output: 3.00},
	"gemini-2.5-pro":         {input: 1.25, output: 10.00},
	"gemini-2.5-flash":       {input: 0.30, output: 2.50},
	"gemini-2.5-flash-lite":  {input: 0.10, output: 0.40},
}

// GeminiConfig configures a GeminiClient.
type GeminiConfig struct {
	APIKey string
	// Model is used when a Request does not name one.
	Model string
	Retry retry.Policy
}

// GeminiClient implements Generator on top of the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
	retry  retry.Policy

	mu    sync.Mutex
	usage Usage
}

var _ Generator = (*GeminiClient)(nil)

// NewGeminiClient creates a Gemini client. An empty API key lets the SDK
// fall back to its own environment lookup.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	g := &GeminiClient{client: client, model: cfg.Model, retry: cfg.Retry}
	if g.model == "" {
		g.model = DefaultModel
	}
	if g.retry.MaxAttempts == 0 {
		g.retry = retry.DefaultPolicy
	}
	return g, nil
}

// GenerateJSON sends req and decodes the model's JSON answer into out.
// Transient API errors are retried.
func (g *GeminiClient) GenerateJSON(ctx context.Context, req Request, out any) error {
	model := req.Model
	if model == "" {
		model = g.model
	}

	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	for _, img := range req.Images {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{Data: img.Data, MIMEType: img.MIMEType},
		})
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	result, err := retry.Do(ctx, g.retry, "gemini generate", func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return g.client.Models.GenerateContent(ctx, model, contents, buildConfig(req))
	})
	if err != nil {
		return fmt.Errorf("failed to generate content: %w", err)
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return ErrEmptyResponse
	}

	usage := usageFromMetadata(model, result.UsageMetadata)
	g.mu.Lock()
	g.usage.Add(usage)
	g.mu.Unlock()

	op := req.Op
	if op == "" {
		op = "structured"
	}
	log.Ctx(ctx).Info().
		Str("model", model).
		Int("imageCount", len(req.Images)).
		Bool("webSearch", req.WebSearch).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Msg(op + " llm call")

	return decodeJSON(result.Text(), out)
}

// TotalUsage returns usage accumulated over every call so far.
func (g *GeminiClient) TotalUsage() Usage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.usage
}

func buildConfig(req Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature: req.Temperature,
	}
	if req.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}

	// Controlled generation cannot be combined with tools, so grounded
	// calls fall back to extracting the JSON object from the text.
	if req.WebSearch {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
		return config
	}

	config.ResponseMIMEType = "application/json"
	config.ResponseSchema = req.Schema
	return config
}

func usageFromMetadata(model string, md *genai.GenerateContentResponseUsageMetadata) Usage {
	usage := Usage{Calls: 1}
	if md == nil {
		return usage
	}
	usage.InputTokens = int64(md.PromptTokenCount)
	usage.OutputTokens = int64(md.CandidatesTokenCount)
	usage.TotalTokens = int64(md.TotalTokenCount)
	if p, ok := geminiPricing[model]; ok {
		usage.CostUSD = calculateGeminiCost(usage.InputTokens, usage.OutputTokens, p.input, p.output)
	}
	return usage
}

func calculateGeminiCost(inputTokens, outputTokens int64, inputPrice, outputPrice float64) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * inputPrice
	outputCost := float64(outputTokens) / 1_000_000 * outputPrice
	return inputCost + outputCost
}

// extractJSONObject extracts a JSON object from text that may contain markdown
// code blocks or other formatting.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("%w: no JSON object found in response: %s", ErrMalformedResponse, text)
	}
	return text[start : end+1], nil
}

func decodeJSON(text string, out any) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyResponse
	}
	jsonStr, err := extractJSONObject(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(jsonStr), out); err != nil {
		return fmt.Errorf("%w: %v (response: %s)", ErrMalformedResponse, err, jsonStr)
	}
	return nil
}
