package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/abhisek/deeplearn/internal/llm"
)

func TestAsk(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage(`{"answer":" Backpropagation adjusts the weights. "}`)})
	s := NewService(mock, "Topic: NN\nContent:\nweights", DefaultConfig())

	got, err := s.Ask(context.Background(), "  What is backpropagation?  ")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if got != "Backpropagation adjusts the weights." {
		t.Errorf("answer = %q", got)
	}

	req, _ := mock.LastCall()
	msg := req.Messages[0].Content
	if !strings.Contains(msg, "Topic: NN\nContent:\nweights") || !strings.HasSuffix(msg, "What is backpropagation?") {
		t.Errorf("unexpected prompt:\n%s", msg)
	}
}

func TestAskValidation(t *testing.T) {
	mock := llm.NewMockProvider()
	s := NewService(mock, "", DefaultConfig())

	if _, err := s.Ask(context.Background(), " \n "); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("expected ErrEmptyQuestion, got %v", err)
	}
	if _, err := s.Ask(context.Background(), strings.Repeat("a", MaxQuestionLen+1)); !errors.Is(err, ErrQuestionTooLong) {
		t.Errorf("expected ErrQuestionTooLong, got %v", err)
	}
	if mock.CallCount() != 0 {
		t.Error("invalid questions should not reach the provider")
	}
}

func TestAskProviderError(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrProviderUnavailable{Err: errors.New("down")}})
	s := NewService(mock, "", DefaultConfig())

	_, err := s.Ask(context.Background(), "hello?")
	var unavailable *llm.ErrProviderUnavailable
	if !errors.As(err, &unavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestAskWithoutProvider(t *testing.T) {
	s := NewService(nil, "", DefaultConfig())
	if _, err := s.Ask(context.Background(), "hello?"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
