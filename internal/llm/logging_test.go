package llm

import (
	"context"
	"errors"
	"testing"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/abhisek/deeplearn/internal/store"
)

func TestLogging_RecordsEvents(t *testing.T) {
	s := store.NewMemory()
	repo := s.EventRepo()
	core, logs := observer.New(zap.DebugLevel)

	mock := NewMockProvider(
		MockResponse{Content: json.RawMessage(`{"ok":true}`), Usage: Usage{InputTokens: 12, OutputTokens: 4}},
		MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("down")}},
	)
	p := WithLogging(mock, "mock", repo, zap.New(core))

	ctx := WithUser(WithPurpose(context.Background(), "project-grading"), "u1")
	if _, err := p.Generate(ctx, Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.Generate(ctx, Request{}); err == nil {
		t.Fatal("expected error from second call")
	}

	events, err := repo.QueryLLMEvents(context.Background(), store.QueryOpts{})
	if err != nil {
		t.Fatalf("QueryLLMEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	failed, ok := events[0], events[1]
	if failed.Success || failed.ErrorMessage == "" {
		t.Errorf("newest event should be the failure, got %+v", failed)
	}
	if !ok.Success || ok.InputTokens != 12 || ok.OutputTokens != 4 {
		t.Errorf("success event = %+v", ok)
	}
	if ok.Purpose != "project-grading" || ok.UserID != "u1" || ok.Provider != "mock" || ok.Model != "mock" {
		t.Errorf("labels = %+v", ok.LLMRequestEventData)
	}

	if logs.FilterMessage("llm request failed").Len() != 1 {
		t.Errorf("expected one failure log line, got %d", logs.FilterMessage("llm request failed").Len())
	}
}

type failingRecorder struct{}

func (failingRecorder) AppendLLMRequest(context.Context, store.LLMRequestEventData) error {
	return errors.New("disk full")
}

func TestLogging_RecorderFailureDoesNotFailCall(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`{}`)})
	p := WithLogging(mock, "mock", failingRecorder{}, zap.New(core))

	if _, err := p.Generate(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logs.FilterMessage("failed to record LLM request event").Len() != 1 {
		t.Fatal("expected a warning about the lost event")
	}
}

func TestNewProvider_MockWiring(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = "mock"
	cfg.Retry.MaxAttempts = 1

	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`{"ok":true}`)})
	s := store.NewMemory()
	p, err := NewProvider(context.Background(), cfg, FactoryOptions{Events: s.EventRepo(), Mock: mock})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if _, err := p.Generate(context.Background(), Request{}); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	events, _ := s.EventRepo().QueryLLMEvents(context.Background(), store.QueryOpts{})
	if len(events) != 1 {
		t.Fatalf("expected the call to be recorded once, got %d", len(events))
	}
}

func TestNewProvider_UnknownProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = "carrier-pigeon"
	if _, err := NewProvider(context.Background(), cfg, FactoryOptions{}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
