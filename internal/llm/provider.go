package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Provider generates structured output from a language model.
//
// When Request.Schema is set the implementation uses the vendor's native
// structured-output mechanism and returns content that already passed
// schema validation. Implementations must honour ctx cancellation.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	ModelID() string
}

// Request is a single generation call.
type Request struct {
	System   string
	Messages []Message

	// Schema constrains the response. Nil means free text, returned as a
	// JSON string.
	Schema *Schema

	MaxTokens int
	// Temperature is in [0, 1]; zero is as deterministic as the vendor
	// allows.
	Temperature float64
}

// Prompt builds the common single-turn request.
func Prompt(system, user string, schema *Schema) Request {
	return Request{
		System:   system,
		Messages: []Message{{Role: RoleUser, Content: user}},
		Schema:   schema,
	}
}

type Message struct {
	Role    Role
	Content string
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema is a named JSON Schema. Name doubles as the tool name for
// Anthropic and the response_format name for OpenAI, so keep it
// kebab-case.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]any
}

type Response struct {
	Content json.RawMessage
	Usage   Usage
	// Model is the model that actually served the call, which may differ
	// from the configured one behind a router.
	Model string
	// StopReason is normalised to "end", "max_tokens" or "error".
	StopReason string
}

// Decode unmarshals the content into v. A decode failure is an
// *ErrInvalidResponse so callers classify it like a schema violation.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Content, v); err != nil {
		return &ErrInvalidResponse{Content: r.Content, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
