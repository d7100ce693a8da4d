// Package quizfeedback scores quiz answers and asks an LLM for feedback.
package quizfeedback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/abhisek/deeplearn/internal/catalog"
	"github.com/abhisek/deeplearn/internal/llm"
)

// FallbackFeedback is shown when no feedback could be generated.
const FallbackFeedback = "Sorry, we couldn't generate feedback at this time. Please check your answers."

// ErrUnknownQuiz is returned for a quiz slug not in the catalog.
var ErrUnknownQuiz = errors.New("unknown quiz")

// Quizzes looks up quizzes and their topics.
type Quizzes interface {
	Quiz(slug string) (*catalog.Quiz, bool)
	Topic(slug string) (*catalog.Topic, bool)
}

// Answer is the graded answer to a single question.
type Answer struct {
	QuestionID    string `json:"questionId"`
	Question      string `json:"question"`
	Given         string `json:"given"`
	CorrectAnswer string `json:"correctAnswer"`
	Correct       bool   `json:"correct"`
}

// Result is the scored quiz with feedback.
type Result struct {
	Quiz     string   `json:"quiz"`
	Score    int      `json:"score"`
	Total    int      `json:"total"`
	Answers  []Answer `json:"answers"`
	Feedback string   `json:"feedback"`

	// Fallback is true when Feedback is FallbackFeedback.
	Fallback bool `json:"fallback"`
}

// Config holds configuration for feedback generation.
type Config struct {
	MaxTokens   int
	Temperature float64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:   512,
		Temperature: 0.5,
	}
}

// Service scores quizzes.
type Service struct {
	quizzes  Quizzes
	provider llm.Provider
	cfg      Config
	log      *zap.Logger
}

// NewService creates a quiz feedback Service. A nil provider always yields
// the fallback feedback.
func NewService(quizzes Quizzes, provider llm.Provider, cfg Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{quizzes: quizzes, provider: provider, cfg: cfg, log: log}
}

// Evaluate scores answers, keyed by question id, against the quiz and
// requests feedback. A feedback failure is logged and never fails the call.
func (s *Service) Evaluate(ctx context.Context, quizSlug string, answers map[string]string) (*Result, error) {
	quiz, ok := s.quizzes.Quiz(quizSlug)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQuiz, quizSlug)
	}

	res := Score(quiz, answers)

	feedback, err := s.feedback(ctx, quiz, res)
	if err != nil {
		s.log.Warn("quiz feedback failed", zap.String("quiz", quizSlug), zap.Error(err))
		res.Feedback = FallbackFeedback
		res.Fallback = true
		return res, nil
	}
	res.Feedback = feedback
	return res, nil
}

// Score grades answers by exact match. Unanswered questions count as wrong.
func Score(quiz *catalog.Quiz, answers map[string]string) *Result {
	res := &Result{Quiz: quiz.Slug, Total: len(quiz.Questions)}
	for _, q := range quiz.Questions {
		a := Answer{
			QuestionID:    q.ID,
			Question:      q.Question,
			Given:         answers[q.ID],
			CorrectAnswer: q.CorrectAnswer,
		}
		a.Correct = a.Given == q.CorrectAnswer
		if a.Correct {
			res.Score++
		}
		res.Answers = append(res.Answers, a)
	}
	return res
}

type feedbackOutput struct {
	Feedback string `json:"feedback"`
}

func (s *Service) feedback(ctx context.Context, quiz *catalog.Quiz, res *Result) (string, error) {
	if s.provider == nil {
		return "", errors.New("no LLM provider configured")
	}
	ctx = llm.WithPurpose(ctx, "quiz-feedback")

	var notes string
	if t, ok := s.quizzes.Topic(quiz.Topic); ok {
		notes = t.Content
	}
	userMsg, err := buildMessage(promptData{Topic: quiz.Title, Result: res, Notes: notes})
	if err != nil {
		return "", fmt.Errorf("build feedback prompt: %w", err)
	}

	resp, err := s.provider.Generate(ctx, llm.Request{
		System:      systemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: userMsg}},
		Schema:      Schema,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("LLM quiz feedback failed: %w", err)
	}

	var out feedbackOutput
	if err := json.Unmarshal(resp.Content, &out); err != nil {
		return "", &llm.ErrInvalidResponse{Content: resp.Content, Err: err}
	}
	text := strings.TrimSpace(out.Feedback)
	if text == "" {
		return "", &llm.ErrInvalidResponse{Content: resp.Content, Err: errors.New("empty feedback")}
	}
	return text, nil
}

// Schema is the structured output contract for quiz feedback.
var Schema = &llm.Schema{
	Name:        "quiz-feedback",
	Description: "Personalized feedback on a quiz attempt",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"feedback": map[string]any{
				"type":        "string",
				"description": "Encouraging, actionable feedback of at most 200 words",
			},
		},
		"required":             []any{"feedback"},
		"additionalProperties": false,
	},
}

const systemPrompt = `You are a learning assistant that gives students personalized feedback on quiz performance.

Instructions:
- Compare the student's answers with the correct answers.
- Use the learning notes to point at the concepts behind each mistake.
- Be encouraging and actionable.
- Keep the feedback under 200 words.`

type promptData struct {
	Topic  string
	Result *Result
	Notes  string
}

var userTemplate = template.Must(template.New("quiz-feedback").Parse(`Quiz topic: {{.Topic}}
Score: {{.Result.Score}}/{{.Result.Total}}

Answers:
{{range .Result.Answers}}- {{.Question}}
  Student answer: {{if .Given}}{{.Given}}{{else}}(no answer){{end}}
  Correct answer: {{.CorrectAnswer}}
{{end}}
Learning notes:
{{.Notes}}
`))

func buildMessage(d promptData) (string, error) {
	var buf bytes.Buffer
	if err := userTemplate.Execute(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}
