package recommend

import (
	"context"
	"errors"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/abhisek/deeplearn/internal/llm"
)

func testSnapshot() LearnerSnapshot {
	return LearnerSnapshot{
		UserName:          "Ada",
		CoursesCompleted:  1,
		SolvedProjects:    2,
		AvailableCourses:  []string{"Machine Learning Foundations", "Deep Learning Fundamentals"},
		AvailableProjects: []string{"Sentiment Analyzer for Movie Reviews"},
	}
}

func TestLLMRequester_Recommend(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{
		Content: json.RawMessage(`{"recommendation":"  Try Deep Learning Fundamentals next. "}`),
	})
	r := NewLLMRequester(mock, DefaultConfig())

	got, err := r.Recommend(context.Background(), testSnapshot())
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	if got != "Try Deep Learning Fundamentals next." {
		t.Errorf("recommendation = %q", got)
	}

	req, ok := mock.LastCall()
	if !ok {
		t.Fatal("expected a provider call")
	}
	if req.Schema != Schema {
		t.Error("request should carry the recommendation schema")
	}
	msg := req.Messages[0].Content
	for _, want := range []string{
		"Learner: Ada",
		"Courses completed: 1",
		"Projects solved: 2",
		"Quiz performance: Not yet tracked",
		"- Deep Learning Fundamentals",
		"- Sentiment Analyzer for Movie Reviews",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("prompt missing %q:\n%s", want, msg)
		}
	}
}

func TestLLMRequester_ProviderError(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrProviderUnavailable{}})
	r := NewLLMRequester(mock, DefaultConfig())

	_, err := r.Recommend(context.Background(), testSnapshot())
	var unavailable *llm.ErrProviderUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestLLMRequester_EmptyRecommendation(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage(`{"recommendation":"   "}`)})
	r := NewLLMRequester(mock, DefaultConfig())

	_, err := r.Recommend(context.Background(), testSnapshot())
	var invalid *llm.ErrInvalidResponse
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
	if !errors.Is(err, ErrEmptyRecommendation) {
		t.Errorf("expected ErrEmptyRecommendation, got %v", err)
	}
}

func TestRequesterFunc(t *testing.T) {
	var got LearnerSnapshot
	var r Requester = RequesterFunc(func(_ context.Context, snap LearnerSnapshot) (string, error) {
		got = snap
		return "ok", nil
	})
	out, err := r.Recommend(context.Background(), testSnapshot())
	if err != nil || out != "ok" {
		t.Fatalf("Recommend = %q, %v", out, err)
	}
	if got.UserName != "Ada" {
		t.Errorf("snapshot not forwarded: %+v", got)
	}
}
