package llm

import (
	"context"

	json "github.com/goccy/go-json"
)

// Provider generates one completion. Implementations wrap a vendor SDK;
// decorators (timeout, retry, breaker, event logging) wrap a Provider.
type Provider interface {
	// Generate sends req and returns the model output. When req.Schema is
	// set the output has been checked against it.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the configured model identifier.
	ModelID() string
}

// Request is a single-turn prompt. Graders, recommenders and the assistant
// each send one system prompt and one user message.
type Request struct {
	System   string
	Messages []Message

	// Schema asks the provider for JSON matching the schema, using the
	// vendor's native structured output.
	Schema *Schema

	MaxTokens int

	// Temperature in [0, 1]; zero leaves the vendor default.
	Temperature float64
}

// Message is one conversation turn.
type Message struct {
	Role    Role
	Content string
}

// Role identifies who authored a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema is a named JSON Schema. Declare schemas as package variables:
// compiled validators are cached per *Schema.
type Schema struct {
	// Name is kebab-case, e.g. "project-feedback". It becomes the OpenAI
	// schema name and appears in validation errors.
	Name        string
	Description string
	Definition  map[string]any
}

// Response is a finished completion.
type Response struct {
	// Content is the validated JSON object for structured requests, or
	// the text encoded as a JSON string otherwise.
	Content json.RawMessage

	Usage Usage

	// Model is the model that served the request as reported by the
	// vendor, which may differ from ModelID.
	Model string

	// StopReason is StopEnd or StopMaxTokens.
	StopReason string
}

// Usage is the token accounting for one request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
