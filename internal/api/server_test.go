package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/deeplearn/internal/assistant"
	"github.com/abhisek/deeplearn/internal/catalog"
	"github.com/abhisek/deeplearn/internal/discussion"
	"github.com/abhisek/deeplearn/internal/grading"
	"github.com/abhisek/deeplearn/internal/ledger"
	"github.com/abhisek/deeplearn/internal/llm"
	"github.com/abhisek/deeplearn/internal/metrics"
	"github.com/abhisek/deeplearn/internal/quizfeedback"
	"github.com/abhisek/deeplearn/internal/recommend"
	"github.com/abhisek/deeplearn/internal/store"
	"github.com/abhisek/deeplearn/internal/submission"
)

const testSecret = "test-secret-0123456789abcdef01234"

type env struct {
	router *gin.Engine
	tokens *Tokens
	ledger *ledger.Ledger
	llm    *llm.MockProvider
}

type envOption func(*Deps)

func newEnv(t *testing.T, oracle grading.Oracle, opts ...envOption) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cat, err := catalog.Load()
	require.NoError(t, err)
	s := store.NewMemory()
	mock := llm.NewMockProvider()

	rec := recommend.RequesterFunc(func(context.Context, recommend.LearnerSnapshot) (string, error) {
		return "Try the digit recognizer next.", nil
	})
	l := ledger.New(s, rec, cat, ledger.Options{})
	t.Cleanup(func() { _ = l.Wait(context.Background()) })

	tokens, err := NewTokens(testSecret, "deeplearn", time.Hour)
	require.NoError(t, err)

	deps := Deps{
		Catalog:     cat,
		Ledger:      l,
		Submissions: submission.NewService(cat, oracle, l, nil, nil),
		Quizzes:     quizfeedback.NewService(cat, mock, quizfeedback.DefaultConfig(), nil),
		Assistant:   assistant.NewService(mock, cat.LearningMaterial(), assistant.DefaultConfig()),
		Discussions: discussion.NewService(s),
		Tokens:      tokens,
		Metrics:     metrics.NewRegistry(),
		RefreshWait: 2 * time.Second,
	}
	for _, o := range opts {
		o(&deps)
	}
	return &env{router: NewRouter(deps), tokens: tokens, ledger: l, llm: mock}
}

func (e *env) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := e.tokens.Issue(userID, "Ada", "ada@example.com")
	require.NoError(t, err)
	return tok
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *env) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func correctOracle() grading.Oracle {
	return grading.OracleFunc(func(context.Context, grading.Submission) (*grading.Verdict, error) {
		return &grading.Verdict{IsCorrect: true, PositiveFeedback: "Great work"}, nil
	})
}

func TestHealthAndCatalog(t *testing.T) {
	e := newEnv(t, correctOracle())

	code, _ := e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)

	code, resp := e.do(t, http.MethodGet, "/api/catalog", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), "Machine Learning Foundations")
	assert.NotContains(t, string(resp.Data), "correct_answer")
	assert.NotContains(t, string(resp.Data), "TfidfVectorizer(stop_words")

	code, resp = e.do(t, http.MethodGet, "/api/projects/sentiment-analyzer", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"brief"`)
	assert.NotContains(t, string(resp.Data), "Solution Code")

	code, _ = e.do(t, http.MethodGet, "/api/projects/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAuthRequired(t *testing.T) {
	e := newEnv(t, correctOracle())

	code, _ := e.do(t, http.MethodGet, "/api/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = e.do(t, http.MethodGet, "/api/profile", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	other, err := NewTokens("another-secret-0123456789abcdefgh", "deeplearn", time.Hour)
	require.NoError(t, err)
	forged, err := other.Issue("u1", "", "")
	require.NoError(t, err)
	code, _ = e.do(t, http.MethodGet, "/api/profile", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestProfileLifecycle(t *testing.T) {
	e := newEnv(t, correctOracle())
	tok := e.token(t, "u1")

	code, _ := e.do(t, http.MethodGet, "/api/profile", tok, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, resp := e.do(t, http.MethodPost, "/api/profile", tok, nil)
	require.Equal(t, http.StatusCreated, code)
	assert.Contains(t, string(resp.Data), `"name":"Ada"`)

	code, _ = e.do(t, http.MethodPost, "/api/profile", tok, nil)
	assert.Equal(t, http.StatusConflict, code)

	code, resp = e.do(t, http.MethodGet, "/api/profile", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"solvedProjects":0`)
}

type submitData struct {
	CreditedNow           bool   `json:"creditedNow"`
	RecommendationPending bool   `json:"recommendationPending"`
	Recommendation        string `json:"recommendation"`
	Verdict               struct {
		IsCorrect bool `json:"isCorrect"`
	} `json:"verdict"`
	Profile struct {
		SolvedProjects   int `json:"solvedProjects"`
		TotalSubmissions int `json:"totalSubmissions"`
	} `json:"profile"`
}

func TestSubmitProject(t *testing.T) {
	e := newEnv(t, correctOracle())
	tok := e.token(t, "u1")
	_, _ = e.do(t, http.MethodPost, "/api/profile", tok, nil)

	code, resp := e.do(t, http.MethodPost, "/api/projects/sentiment-analyzer/submissions", tok, gin.H{"code": "print(1)"})
	require.Equal(t, http.StatusOK, code, resp.Message)
	var first submitData
	require.NoError(t, json.Unmarshal(resp.Data, &first))
	assert.True(t, first.CreditedNow)
	assert.True(t, first.Verdict.IsCorrect)
	assert.Equal(t, 1, first.Profile.SolvedProjects)
	assert.Equal(t, "Try the digit recognizer next.", first.Recommendation)
	assert.False(t, first.RecommendationPending)

	code, resp = e.do(t, http.MethodPost, "/api/projects/sentiment-analyzer/submissions", tok, gin.H{"code": "print(1)"})
	require.Equal(t, http.StatusOK, code)
	var second submitData
	require.NoError(t, json.Unmarshal(resp.Data, &second))
	assert.False(t, second.CreditedNow)
	assert.Equal(t, 1, second.Profile.SolvedProjects)
	assert.Equal(t, 2, second.Profile.TotalSubmissions)
	assert.Empty(t, second.Recommendation)
}

func TestSubmitProjectErrors(t *testing.T) {
	failing := grading.OracleFunc(func(context.Context, grading.Submission) (*grading.Verdict, error) {
		return nil, &llm.ErrInvalidResponse{Err: errors.New("no verdict")}
	})
	e := newEnv(t, failing)
	tok := e.token(t, "u1")
	_, _ = e.do(t, http.MethodPost, "/api/profile", tok, nil)

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"unknown project", "/api/projects/nope/submissions", gin.H{"code": "x"}, http.StatusNotFound},
		{"missing code", "/api/projects/sentiment-analyzer/submissions", gin.H{}, http.StatusBadRequest},
		{"blank code", "/api/projects/sentiment-analyzer/submissions", gin.H{"code": "   "}, http.StatusBadRequest},
		{"oracle failure", "/api/projects/sentiment-analyzer/submissions", gin.H{"code": "x"}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := e.do(t, http.MethodPost, tt.path, tok, tt.body)
			assert.Equal(t, tt.want, code)
		})
	}
}

// stubSubmitter returns a verdict together with a ledger failure.
type stubSubmitter struct{}

func (stubSubmitter) Submit(_ context.Context, userID, projectID, _ string) (*submission.Outcome, error) {
	out := &submission.Outcome{ProjectID: projectID, Verdict: &grading.Verdict{IsCorrect: true}}
	return out, &ledger.TxError{Op: "record project solve", UserID: userID, Err: store.ErrConflict}
}

func TestSubmitLedgerFailureKeepsVerdict(t *testing.T) {
	e := newEnv(t, correctOracle(), func(d *Deps) { d.Submissions = stubSubmitter{} })
	tok := e.token(t, "u1")

	code, resp := e.do(t, http.MethodPost, "/api/projects/sentiment-analyzer/submissions", tok, gin.H{"code": "x"})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	var data submitData
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.True(t, data.Verdict.IsCorrect)
}

func TestCompleteCourse(t *testing.T) {
	e := newEnv(t, correctOracle())
	tok := e.token(t, "u1")
	_, _ = e.do(t, http.MethodPost, "/api/profile", tok, nil)

	code, _ := e.do(t, http.MethodPost, "/api/courses/nope/complete", tok, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, resp := e.do(t, http.MethodPost, "/api/courses/ml-foundations/complete", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"completedNow":true`)

	code, resp = e.do(t, http.MethodPost, "/api/courses/ml-foundations/complete", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"completedNow":false`)
	assert.Contains(t, string(resp.Data), `"coursesCompleted":1`)
}

func TestQuizFeedbackAndAssistant(t *testing.T) {
	e := newEnv(t, correctOracle())
	tok := e.token(t, "u1")

	e.llm.AddResponse(llm.MockJSON(map[string]string{"feedback": "Revisit backpropagation."}))
	code, resp := e.do(t, http.MethodPost, "/api/quizzes/nn-basics-quiz/feedback", tok, gin.H{"answers": gin.H{"q1": "Backpropagation"}})
	require.Equal(t, http.StatusOK, code, resp.Message)
	assert.Contains(t, string(resp.Data), "Revisit backpropagation.")
	assert.Contains(t, string(resp.Data), `"total":5`)

	// Queue is empty now, so feedback falls back.
	code, resp = e.do(t, http.MethodPost, "/api/quizzes/nn-basics-quiz/feedback", tok, gin.H{"answers": gin.H{}})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"fallback":true`)

	code, _ = e.do(t, http.MethodPost, "/api/quizzes/nope/feedback", tok, gin.H{"answers": gin.H{}})
	assert.Equal(t, http.StatusNotFound, code)

	e.llm.AddResponse(llm.MockJSON(map[string]string{"answer": "A loss function measures error."}))
	code, resp = e.do(t, http.MethodPost, "/api/assistant", tok, gin.H{"question": "What is a loss function?"})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), "A loss function measures error.")

	code, _ = e.do(t, http.MethodPost, "/api/assistant", tok, gin.H{"question": "   "})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(t, http.MethodPost, "/api/assistant", tok, gin.H{"question": "still there?"})
	assert.Equal(t, http.StatusBadGateway, code, "empty mock queue means provider unavailable")
}

func TestDiscussions(t *testing.T) {
	e := newEnv(t, correctOracle())
	tok := e.token(t, "u1")

	code, _ := e.do(t, http.MethodPost, "/api/discussions", tok, gin.H{"title": "", "content": "x"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp := e.do(t, http.MethodPost, "/api/discussions", tok, gin.H{"title": "Overfitting?", "content": "How do I spot it?"})
	require.Equal(t, http.StatusCreated, code)
	assert.Contains(t, string(resp.Data), `"userName":"Ada"`)

	code, resp = e.do(t, http.MethodGet, "/api/discussions?limit=10", tok, nil)
	require.Equal(t, http.StatusOK, code)
	var posts []discussion.Post
	require.NoError(t, json.Unmarshal(resp.Data, &posts))
	require.Len(t, posts, 1)
	assert.Equal(t, "Overfitting?", posts[0].Title)
	assert.Equal(t, "u1", posts[0].UserID)
}

func TestRateLimit(t *testing.T) {
	e := newEnv(t, correctOracle(), func(d *Deps) {
		d.RateLimit = 1
		d.Burst = 1
	})
	tok := e.token(t, "u1")
	e.llm.AddResponse(llm.MockJSON(map[string]string{"answer": "ok"}))

	code, _ := e.do(t, http.MethodPost, "/api/assistant", tok, gin.H{"question": "one"})
	assert.Equal(t, http.StatusOK, code)
	code, _ = e.do(t, http.MethodPost, "/api/assistant", tok, gin.H{"question": "two"})
	assert.Equal(t, http.StatusTooManyRequests, code)

	// Limits are per user.
	code, _ = e.do(t, http.MethodPost, "/api/assistant", e.token(t, "u2"), gin.H{"question": "   "})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ledger.ErrProfileNotFound, http.StatusNotFound},
		{&ledger.TxError{Err: &store.AbortedError{Attempts: 5, Err: store.ErrConflict}}, http.StatusServiceUnavailable},
		{&submission.OracleError{Err: errors.New("x")}, http.StatusBadGateway},
		{&submission.OracleError{Err: &llm.ErrCircuitOpen{Name: "llm-gemini"}}, http.StatusServiceUnavailable},
		{&llm.ErrRateLimit{}, http.StatusTooManyRequests},
		{&llm.ErrMaxTokensExceeded{}, http.StatusBadGateway},
		{&llm.ErrRequestRejected{StatusCode: 401, Err: errors.New("bad key")}, http.StatusBadGateway},
		{assistant.ErrUnavailable, http.StatusServiceUnavailable},
		{store.ErrAlreadyExists, http.StatusConflict},
		{submission.ErrEmptyCode, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, _ := statusOf(tt.err)
		assert.Equal(t, tt.want, got, "error %v", tt.err)
	}
}

func TestTokens(t *testing.T) {
	tokens, err := NewTokens(testSecret, "deeplearn", time.Hour)
	require.NoError(t, err)

	tok, err := tokens.Issue("u1", "Ada", "ada@example.com")
	require.NoError(t, err)
	claims, err := tokens.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID())
	assert.Equal(t, "Ada", claims.Name)

	tokens.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = tokens.Parse(tok)
	assert.Error(t, err, "expired token")

	_, err = NewTokens("", "deeplearn", time.Hour)
	assert.Error(t, err)
}
