// Package assistant answers learner questions grounded on the catalog notes.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/abhisek/deeplearn/internal/llm"
)

// MaxQuestionLen bounds the accepted question size in bytes.
const MaxQuestionLen = 4000

var (
	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrQuestionTooLong is returned for questions over MaxQuestionLen.
	ErrQuestionTooLong = errors.New("question is too long")

	// ErrUnavailable is returned when no provider is configured.
	ErrUnavailable = errors.New("assistant is unavailable")
)

// Config holds configuration for the assistant.
type Config struct {
	MaxTokens   int
	Temperature float64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:   1024,
		Temperature: 0.4,
	}
}

// Service answers questions about machine learning.
type Service struct {
	provider llm.Provider
	material string
	cfg      Config
}

// NewService creates an assistant that uses material as context. A nil
// provider makes every Ask fail with ErrUnavailable.
func NewService(provider llm.Provider, material string, cfg Config) *Service {
	return &Service{provider: provider, material: material, cfg: cfg}
}

type answerOutput struct {
	Answer string `json:"answer"`
}

// Ask answers question.
func (s *Service) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	if len(question) > MaxQuestionLen {
		return "", ErrQuestionTooLong
	}
	if s.provider == nil {
		return "", ErrUnavailable
	}
	ctx = llm.WithPurpose(ctx, "assistant")

	resp, err := s.provider.Generate(ctx, llm.Request{
		System: systemPrompt,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: "Learning material:\n" + s.material + "\n\nQuestion:\n" + question,
		}},
		Schema:      Schema,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("LLM assistant failed: %w", err)
	}

	var out answerOutput
	if err := json.Unmarshal(resp.Content, &out); err != nil {
		return "", &llm.ErrInvalidResponse{Content: resp.Content, Err: err}
	}
	return strings.TrimSpace(out.Answer), nil
}

// Schema is the structured output contract for assistant answers.
var Schema = &llm.Schema{
	Name:        "assistant-answer",
	Description: "Answer to a learner question about machine learning",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"answer": map[string]any{"type": "string"},
		},
		"required":             []any{"answer"},
		"additionalProperties": false,
	},
}

const systemPrompt = `You are an assistant specializing in machine learning and deep learning. Use the learning material provided by the user to answer their question accurately and concisely. If the material does not cover the question, answer from general knowledge and say so.`
