// Package grading evaluates project submissions against reference solutions.
package grading

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"

	json "github.com/goccy/go-json"

	"github.com/abhisek/deeplearn/internal/llm"
)

// Submission is the input to a grading call.
type Submission struct {
	ProjectTitle string
	SolutionCode string
	UserCode     string
}

// Verdict is the oracle's judgement of a submission.
type Verdict struct {
	IsCorrect           bool     `json:"isCorrect"`
	PositiveFeedback    string   `json:"positiveFeedback"`
	AreasForImprovement string   `json:"areasForImprovement"`
	KeyTakeaways        []string `json:"keyTakeaways"`
	SuggestedSolution   string   `json:"suggestedSolution"`
}

// Oracle judges whether submitted code solves a project.
type Oracle interface {
	Grade(ctx context.Context, sub Submission) (*Verdict, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, sub Submission) (*Verdict, error)

// Grade calls f.
func (f OracleFunc) Grade(ctx context.Context, sub Submission) (*Verdict, error) {
	return f(ctx, sub)
}

// ErrMissingVerdict is returned when the response has no isCorrect field.
var ErrMissingVerdict = errors.New("response has no isCorrect verdict")

// Config holds configuration for the LLM oracle.
type Config struct {
	MaxTokens   int
	Temperature float64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:   2048,
		Temperature: 0.2,
	}
}

// LLMOracle grades submissions with an LLM provider.
type LLMOracle struct {
	provider llm.Provider
	cfg      Config
}

// NewLLMOracle creates an LLM-backed Oracle.
func NewLLMOracle(provider llm.Provider, cfg Config) *LLMOracle {
	return &LLMOracle{provider: provider, cfg: cfg}
}

// verdictOutput keeps isCorrect as a pointer so a missing field is detected.
type verdictOutput struct {
	IsCorrect           *bool    `json:"isCorrect"`
	PositiveFeedback    string   `json:"positiveFeedback"`
	AreasForImprovement string   `json:"areasForImprovement"`
	KeyTakeaways        []string `json:"keyTakeaways"`
	SuggestedSolution   string   `json:"suggestedSolution"`
}

// Grade sends the submission and the reference solution to the LLM.
func (o *LLMOracle) Grade(ctx context.Context, sub Submission) (*Verdict, error) {
	ctx = llm.WithPurpose(ctx, "project-grading")

	userMsg, err := buildMessage(sub)
	if err != nil {
		return nil, fmt.Errorf("build grading prompt: %w", err)
	}

	resp, err := o.provider.Generate(ctx, llm.Request{
		System:      systemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: userMsg}},
		Schema:      Schema,
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM grading failed: %w", err)
	}

	var raw verdictOutput
	if err := json.Unmarshal(resp.Content, &raw); err != nil {
		return nil, &llm.ErrInvalidResponse{Content: resp.Content, Err: err}
	}
	if raw.IsCorrect == nil {
		return nil, &llm.ErrInvalidResponse{Content: resp.Content, Err: ErrMissingVerdict}
	}

	return &Verdict{
		IsCorrect:           *raw.IsCorrect,
		PositiveFeedback:    raw.PositiveFeedback,
		AreasForImprovement: raw.AreasForImprovement,
		KeyTakeaways:        raw.KeyTakeaways,
		SuggestedSolution:   raw.SuggestedSolution,
	}, nil
}

const systemPrompt = `You are an expert, friendly code reviewer for a machine learning education platform. Compare a learner's project submission with the official solution.

Instructions:
- Decide whether the submission is functionally correct. Different but working implementations count as correct; minor style differences are fine.
- positiveFeedback: open with something encouraging the learner got right.
- areasForImprovement: if incorrect, pinpoint the errors and how to fix them; if correct, suggest a best practice or alternative.
- keyTakeaways: two or three short bullet points.
- suggestedSolution: code only, corrected or lightly improved.`

var userTemplate = template.Must(template.New("grading").Parse("Project: {{.ProjectTitle}}\n\n" +
	"Official solution code:\n```python\n{{.SolutionCode}}\n```\n\n" +
	"Learner's submitted code:\n```python\n{{.UserCode}}\n```\n"))

func buildMessage(sub Submission) (string, error) {
	var buf bytes.Buffer
	if err := userTemplate.Execute(&buf, sub); err != nil {
		return "", err
	}
	return buf.String(), nil
}
