package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Provider is a single LLM backend. Callers send a Request and receive the
// model's output as JSON.
type Provider interface {
	// Generate runs one completion. When req.Schema is set the provider asks
	// for structured output and validates the result against the schema
	// before returning it.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID is the configured model identifier.
	ModelID() string
}

// Request is one completion call.
type Request struct {
	System   string
	Messages []Message

	// Schema, when non-nil, constrains the response to a JSON object.
	// Without it Content carries the raw text.
	Schema *Schema

	MaxTokens int

	// Temperature in [0,1]. Zero leaves the provider default, which for
	// classification prompts should be deterministic.
	Temperature float64
}

// Message is one conversation turn.
type Message struct {
	Role    Role
	Content string
}

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema names a JSON Schema for structured output. Name doubles as the
// cache key for the compiled validator, so it must be unique per shape.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]any
}

// Response is the model output.
type Response struct {
	Content json.RawMessage
	Usage   Usage
	Model   string

	// StopReason is "end" or "max_tokens".
	StopReason string
}

// Usage is the token accounting for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// UserPrompt builds a single-message request.
func UserPrompt(system, prompt string, schema *Schema, maxTokens int) Request {
	return Request{
		System:    system,
		Messages:  []Message{{Role: RoleUser, Content: prompt}},
		Schema:    schema,
		MaxTokens: maxTokens,
	}
}

// Decode runs req and unmarshals the structured content into out.
func Decode(ctx context.Context, p Provider, req Request, out any) (*Response, error) {
	resp, err := p.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StopReason == "max_tokens" {
		return resp, &ErrMaxTokensExceeded{Content: resp.Content}
	}
	if err := json.Unmarshal(resp.Content, out); err != nil {
		return resp, &ErrInvalidResponse{Content: resp.Content, Err: fmt.Errorf("decode: %w", err)}
	}
	return resp, nil
}
