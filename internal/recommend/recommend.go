// Package recommend produces short next-step learning recommendations.
package recommend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	json "github.com/goccy/go-json"

	"github.com/abhisek/deeplearn/internal/llm"
)

// QuizNotTracked is the quiz performance summary used until quiz results
// are stored on the profile.
const QuizNotTracked = "Not yet tracked"

// LearnerSnapshot is the progress summary a recommendation is based on.
type LearnerSnapshot struct {
	UserName          string
	CoursesCompleted  int
	SolvedProjects    int
	QuizPerformance   string
	AvailableCourses  []string
	AvailableProjects []string
}

// Requester produces a natural-language recommendation for a learner.
type Requester interface {
	Recommend(ctx context.Context, snap LearnerSnapshot) (string, error)
}

// RequesterFunc adapts a function to the Requester interface.
type RequesterFunc func(ctx context.Context, snap LearnerSnapshot) (string, error)

// Recommend calls f.
func (f RequesterFunc) Recommend(ctx context.Context, snap LearnerSnapshot) (string, error) {
	return f(ctx, snap)
}

// Config holds configuration for the LLM requester.
type Config struct {
	MaxTokens   int
	Temperature float64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:   300,
		Temperature: 0.7,
	}
}

// LLMRequester asks an LLM provider for a recommendation.
type LLMRequester struct {
	provider llm.Provider
	cfg      Config
}

// NewLLMRequester creates an LLM-backed Requester.
func NewLLMRequester(provider llm.Provider, cfg Config) *LLMRequester {
	return &LLMRequester{provider: provider, cfg: cfg}
}

type recommendationOutput struct {
	Recommendation string `json:"recommendation"`
}

// ErrEmptyRecommendation is returned when the model produced no text.
var ErrEmptyRecommendation = errors.New("empty recommendation")

// Recommend requests a recommendation for snap.
func (r *LLMRequester) Recommend(ctx context.Context, snap LearnerSnapshot) (string, error) {
	ctx = llm.WithPurpose(ctx, "recommendation")

	userMsg, err := buildMessage(snap)
	if err != nil {
		return "", fmt.Errorf("build recommendation prompt: %w", err)
	}

	resp, err := r.provider.Generate(ctx, llm.Request{
		System:      systemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: userMsg}},
		Schema:      Schema,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("LLM recommendation failed: %w", err)
	}

	var out recommendationOutput
	if err := json.Unmarshal(resp.Content, &out); err != nil {
		return "", &llm.ErrInvalidResponse{Content: resp.Content, Err: err}
	}
	text := strings.TrimSpace(out.Recommendation)
	if text == "" {
		return "", &llm.ErrInvalidResponse{Content: resp.Content, Err: ErrEmptyRecommendation}
	}
	return text, nil
}

// Schema is the structured output contract for recommendations.
var Schema = &llm.Schema{
	Name:        "learning-recommendation",
	Description: "A personalized next step for a machine learning learner",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"recommendation": map[string]any{
				"type":        "string",
				"description": "Encouraging recommendation of at most 100 words",
			},
		},
		"required":             []any{"recommendation"},
		"additionalProperties": false,
	},
}

const systemPrompt = `You are an encouraging machine learning mentor. Based on a learner's progress, suggest what they should study or build next.

Rules:
- Recommend one or two concrete items, chosen only from the available courses and projects.
- Do not suggest items the learner has clearly finished.
- Keep the recommendation under 100 words.`

var userTemplate = template.Must(template.New("recommendation").Parse(`Learner: {{.UserName}}
Courses completed: {{.CoursesCompleted}}
Projects solved: {{.SolvedProjects}}
Quiz performance: {{.QuizPerformance}}

Available courses:
{{range .AvailableCourses}}- {{.}}
{{end}}
Available projects:
{{range .AvailableProjects}}- {{.}}
{{end}}`))

func buildMessage(snap LearnerSnapshot) (string, error) {
	if snap.QuizPerformance == "" {
		snap.QuizPerformance = QuizNotTracked
	}
	var buf bytes.Buffer
	if err := userTemplate.Execute(&buf, snap); err != nil {
		return "", err
	}
	return buf.String(), nil
}
