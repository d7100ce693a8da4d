package store

import (
	"context"
	"errors"
	"testing"
)

func TestLLMEventsAppendAndQuery(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		repo := s.EventRepo()
		ctx := context.Background()

		events := []LLMRequestEventData{
			{Provider: "gemini", Model: "gemini-2.0-flash", Purpose: "grading", InputTokens: 100, OutputTokens: 40, LatencyMs: 900, Success: true},
			{Provider: "gemini", Model: "gemini-2.0-flash", Purpose: "recommendation", InputTokens: 50, OutputTokens: 20, LatencyMs: 300, Success: true},
			{Provider: "gemini", Model: "gemini-2.5-pro", Purpose: "grading", InputTokens: 10, LatencyMs: 50, Success: false, ErrorMessage: "rate limited"},
		}
		for _, e := range events {
			if err := repo.AppendLLMRequest(ctx, e); err != nil {
				t.Fatalf("AppendLLMRequest: %v", err)
			}
		}

		got, err := repo.QueryLLMEvents(ctx, QueryOpts{})
		if err != nil {
			t.Fatalf("QueryLLMEvents: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("got %d events, want 3", len(got))
		}
		if got[0].Sequence != 3 || got[2].Sequence != 1 {
			t.Errorf("sequences = %d..%d, want newest first 3..1", got[0].Sequence, got[2].Sequence)
		}
		if got[0].ErrorMessage != "rate limited" {
			t.Errorf("newest error = %q", got[0].ErrorMessage)
		}

		limited, _ := repo.QueryLLMEvents(ctx, QueryOpts{Limit: 1})
		if len(limited) != 1 {
			t.Errorf("limit 1 returned %d events", len(limited))
		}

		one, err := repo.GetLLMEvent(ctx, 2)
		if err != nil {
			t.Fatalf("GetLLMEvent: %v", err)
		}
		if one.Purpose != "recommendation" {
			t.Errorf("event 2 purpose = %q, want recommendation", one.Purpose)
		}
		if _, err := repo.GetLLMEvent(ctx, 99); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetLLMEvent(99): err = %v, want ErrNotFound", err)
		}
	})
}

func TestLLMUsageAggregates(t *testing.T) {
	s := NewMemory()
	repo := s.EventRepo()
	ctx := context.Background()

	for _, e := range []LLMRequestEventData{
		{Model: "m1", Purpose: "grading", InputTokens: 10, OutputTokens: 5, Success: true},
		{Model: "m1", Purpose: "grading", InputTokens: 20, OutputTokens: 5, Success: false},
		{Model: "m2", Purpose: "chat", InputTokens: 1, OutputTokens: 1, Success: true},
	} {
		if err := repo.AppendLLMRequest(ctx, e); err != nil {
			t.Fatalf("AppendLLMRequest: %v", err)
		}
	}

	byPurpose, err := repo.LLMUsageByPurpose(ctx)
	if err != nil {
		t.Fatalf("LLMUsageByPurpose: %v", err)
	}
	if len(byPurpose) != 2 {
		t.Fatalf("got %d purposes, want 2", len(byPurpose))
	}
	g := byPurpose[0]
	if g.Key != "grading" || g.Requests != 2 || g.Failures != 1 || g.InputTokens != 30 || g.OutputTokens != 10 {
		t.Errorf("grading usage = %+v", g)
	}

	byModel, _ := repo.LLMUsageByModel(ctx)
	if len(byModel) != 2 || byModel[0].Key != "m1" {
		t.Errorf("by model = %+v", byModel)
	}
}
