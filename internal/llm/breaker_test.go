package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

func breakerConfig() BreakerConfig {
	return BreakerConfig{
		ConsecutiveFailures: 2,
		OpenTimeout:         time.Hour,
		HalfOpenRequests:    1,
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	down := &ErrProviderUnavailable{Err: errors.New("down")}
	mock := NewMockProvider(
		MockResponse{Err: down},
		MockResponse{Err: down},
		MockResponse{Content: json.RawMessage(`{"ok":true}`)},
	)

	var transitions []string
	p := WithCircuitBreaker(mock, "test", breakerConfig(), nil, func(name, from, to string) {
		transitions = append(transitions, from+"->"+to)
	})

	for range 2 {
		if _, err := p.Generate(context.Background(), Request{}); err == nil {
			t.Fatal("expected provider error")
		}
	}

	_, err := p.Generate(context.Background(), Request{})
	var open *ErrCircuitOpen
	if !errors.As(err, &open) {
		t.Fatalf("expected ErrCircuitOpen, got: %v", err)
	}
	if mock.CallCount() != 2 {
		t.Fatalf("open breaker should not reach the provider, got %d calls", mock.CallCount())
	}
	if len(transitions) != 1 || transitions[0] != "closed->open" {
		t.Fatalf("transitions = %v, want [closed->open]", transitions)
	}
	if state := p.(*BreakerProvider).State(); state != "open" {
		t.Fatalf("State() = %q, want open", state)
	}
}

func TestBreaker_InvalidResponsesDoNotTrip(t *testing.T) {
	bad := &ErrInvalidResponse{Content: json.RawMessage(`nope`), Err: errors.New("bad json")}
	mock := NewMockProvider(
		MockResponse{Err: bad},
		MockResponse{Err: bad},
		MockResponse{Err: bad},
		MockResponse{Content: json.RawMessage(`{"ok":true}`)},
	)
	p := WithCircuitBreaker(mock, "test", breakerConfig(), nil, nil)

	for range 3 {
		_, _ = p.Generate(context.Background(), Request{})
	}
	resp, err := p.Generate(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Content) != `{"ok":true}` {
		t.Fatalf("unexpected content: %s", resp.Content)
	}
}

func TestBreaker_DisabledReturnsInner(t *testing.T) {
	mock := NewMockProvider()
	p := WithCircuitBreaker(mock, "test", BreakerConfig{}, nil, nil)
	if p != Provider(mock) {
		t.Fatal("expected the inner provider when the breaker is disabled")
	}
}

func TestBreaker_ModelIDDelegates(t *testing.T) {
	p := WithCircuitBreaker(NewMockProvider(), "test", breakerConfig(), nil, nil)
	if p.ModelID() != "mock" {
		t.Fatalf("expected 'mock', got %q", p.ModelID())
	}
}
