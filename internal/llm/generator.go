package llm

import (
	"context"
	"errors"

	"google.golang.org/genai"
)

var (
	// ErrEmptyResponse is returned when the model produced no candidate text.
	ErrEmptyResponse = errors.New("empty response from model")
	// ErrMalformedResponse is returned when the model output is not the
	// requested JSON.
	ErrMalformedResponse = errors.New("malformed model response")
)

// Image is a photo sent to the model as an inline part.
type Image struct {
	Data     []byte
	MIMEType string
}

// Request is one structured-output call.
type Request struct {
	// Op names the call in logs, e.g. "feature extraction".
	Op                string
	Prompt            string
	SystemInstruction string
	Images            []Image
	// Schema constrains the JSON answer. It is only enforced by the API
	// when WebSearch is false; with search grounding the answer is parsed
	// from free text.
	Schema *genai.Schema
	// WebSearch attaches the Google Search tool.
	WebSearch   bool
	Model       string
	Temperature *float32
}

// Usage contains token usage and cost information.
type Usage struct {
	Calls        int
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CostUSD      float64
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.Calls += other.Calls
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
	u.CostUSD += other.CostUSD
}

// Generator asks a model for a typed JSON answer and decodes it into out.
type Generator interface {
	GenerateJSON(ctx context.Context, req Request, out any) error
}
