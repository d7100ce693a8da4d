// Package api exposes the learning service over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abhisek/deeplearn/internal/catalog"
	"github.com/abhisek/deeplearn/internal/discussion"
	"github.com/abhisek/deeplearn/internal/grading"
	"github.com/abhisek/deeplearn/internal/ledger"
	"github.com/abhisek/deeplearn/internal/metrics"
	"github.com/abhisek/deeplearn/internal/profile"
	"github.com/abhisek/deeplearn/internal/quizfeedback"
	"github.com/abhisek/deeplearn/internal/submission"
)

// Ledger is the profile side of the progress ledger.
type Ledger interface {
	CreateProfile(ctx context.Context, userID, name, email string) (*profile.UserProfile, error)
	Profile(ctx context.Context, userID string) (*profile.UserProfile, error)
	CompleteCourse(ctx context.Context, userID, courseID string) (*ledger.CompletionResult, error)
}

// Submitter grades and records project submissions.
type Submitter interface {
	Submit(ctx context.Context, userID, projectID, code string) (*submission.Outcome, error)
}

// QuizEvaluator scores quiz answers.
type QuizEvaluator interface {
	Evaluate(ctx context.Context, quizSlug string, answers map[string]string) (*quizfeedback.Result, error)
}

// Asker answers free-form questions.
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

// Discussions posts and lists community posts.
type Discussions interface {
	Post(ctx context.Context, p discussion.Post) (*discussion.Post, error)
	List(ctx context.Context, limit int) ([]discussion.Post, error)
}

// Deps wires the server to its services.
type Deps struct {
	Catalog     *catalog.Catalog
	Ledger      Ledger
	Submissions Submitter
	Quizzes     QuizEvaluator
	Assistant   Asker
	Discussions Discussions
	Tokens      *Tokens
	Metrics     *metrics.Metrics
	Logger      *zap.Logger

	// RateLimit and Burst throttle LLM-backed routes per user per minute.
	RateLimit float64
	Burst     int

	// RefreshWait is how long a submission response waits for the
	// recommendation refresh before reporting it as pending.
	RefreshWait time.Duration
}

// Server holds the HTTP handlers.
type Server struct {
	deps Deps
	log  *zap.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Deps) *gin.Engine {
	s := &Server{deps: deps, log: deps.Logger}
	if s.log == nil {
		s.log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log), deps.Metrics.Middleware())

	r.GET("/healthz", func(c *gin.Context) { success(c, gin.H{"status": "ok"}) })
	r.GET("/metrics", deps.Metrics.Handler())

	api := r.Group("/api")
	api.GET("/catalog", s.getCatalog)
	api.GET("/projects/:id", s.getProject)

	authed := api.Group("", authMiddleware(deps.Tokens))
	authed.POST("/profile", s.createProfile)
	authed.GET("/profile", s.getProfile)
	authed.POST("/courses/:id/complete", s.completeCourse)
	authed.GET("/discussions", s.listDiscussions)
	authed.POST("/discussions", s.postDiscussion)

	limited := authed.Group("", rateLimit(deps.RateLimit, deps.Burst))
	limited.POST("/projects/:id/submissions", s.submitProject)
	limited.POST("/quizzes/:slug/feedback", s.quizFeedback)
	limited.POST("/assistant", s.ask)

	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) getCatalog(c *gin.Context) {
	success(c, s.deps.Catalog)
}

type projectResponse struct {
	*catalog.Project
	Brief string `json:"brief"`
}

func (s *Server) getProject(c *gin.Context) {
	p, ok := s.deps.Catalog.Project(c.Param("id"))
	if !ok {
		fail(c, http.StatusNotFound, "unknown project")
		return
	}
	success(c, projectResponse{Project: p, Brief: p.Brief()})
}

type createProfileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s *Server) createProfile(c *gin.Context) {
	claims := claimsFrom(c)
	req := createProfileRequest{Name: claims.Name, Email: claims.Email}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	p, err := s.deps.Ledger.CreateProfile(c.Request.Context(), claims.UserID(), req.Name, req.Email)
	if err != nil {
		s.fail(c, err)
		return
	}
	created(c, p)
}

func (s *Server) getProfile(c *gin.Context) {
	p, err := s.deps.Ledger.Profile(c.Request.Context(), claimsFrom(c).UserID())
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, p)
}

type submitRequest struct {
	Code string `json:"code" binding:"required"`
}

// submissionResponse reports the verdict, the credit and, as far as it has
// progressed, the recommendation refresh.
type submissionResponse struct {
	ProjectID             string               `json:"projectId"`
	Verdict               *grading.Verdict     `json:"verdict"`
	CreditedNow           bool                 `json:"creditedNow"`
	Profile               *profile.UserProfile `json:"profile,omitempty"`
	RecommendationPending bool                 `json:"recommendationPending,omitempty"`
	Recommendation        string               `json:"recommendation,omitempty"`
	RecommendationError   string               `json:"recommendationError,omitempty"`
}

func (s *Server) submitProject(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "code is required")
		return
	}
	ctx := c.Request.Context()

	out, err := s.deps.Submissions.Submit(ctx, claimsFrom(c).UserID(), c.Param("id"), req.Code)
	if err != nil {
		if out != nil && out.Verdict != nil {
			// Graded but not recorded: return the feedback with the error.
			code, msg := statusOf(err)
			failWithData(c, code, msg, submissionResponse{ProjectID: out.ProjectID, Verdict: out.Verdict})
			return
		}
		s.fail(c, err)
		return
	}

	resp := submissionResponse{ProjectID: out.ProjectID, Verdict: out.Verdict, Profile: out.Profile}
	if out.Solve != nil {
		resp.CreditedNow = out.Solve.CreditedNow
		s.reportRefresh(ctx, out.Solve.Refresh, &resp)
	}
	success(c, resp)
}

func (s *Server) reportRefresh(ctx context.Context, r *ledger.Refresh, resp *submissionResponse) {
	if r == nil {
		return
	}
	if s.deps.RefreshWait > 0 {
		wctx, cancel := context.WithTimeout(ctx, s.deps.RefreshWait)
		defer cancel()
		_, _ = r.Wait(wctx)
	}
	select {
	case <-r.Done():
		// Done is closed, so Wait returns immediately.
		text, err := r.Wait(context.Background())
		if err != nil {
			resp.RecommendationError = err.Error()
			return
		}
		resp.Recommendation = text
	default:
		resp.RecommendationPending = true
	}
}

type completionResponse struct {
	CourseID     string               `json:"courseId"`
	CompletedNow bool                 `json:"completedNow"`
	Profile      *profile.UserProfile `json:"profile"`
}

func (s *Server) completeCourse(c *gin.Context) {
	courseID := c.Param("id")
	if _, ok := s.deps.Catalog.Course(courseID); !ok {
		fail(c, http.StatusNotFound, "unknown course")
		return
	}
	res, err := s.deps.Ledger.CompleteCourse(c.Request.Context(), claimsFrom(c).UserID(), courseID)
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, completionResponse{CourseID: courseID, CompletedNow: res.CompletedNow, Profile: res.Profile})
}

type quizRequest struct {
	Answers map[string]string `json:"answers" binding:"required"`
}

func (s *Server) quizFeedback(c *gin.Context) {
	var req quizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "answers are required")
		return
	}
	res, err := s.deps.Quizzes.Evaluate(c.Request.Context(), c.Param("slug"), req.Answers)
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, res)
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
}

func (s *Server) ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "question is required")
		return
	}
	answer, err := s.deps.Assistant.Ask(c.Request.Context(), req.Question)
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, gin.H{"answer": answer})
}

type listQuery struct {
	Limit int `form:"limit"`
}

func (s *Server) listDiscussions(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid limit")
		return
	}
	posts, err := s.deps.Discussions.List(c.Request.Context(), q.Limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, posts)
}

type postRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (s *Server) postDiscussion(c *gin.Context) {
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	claims := claimsFrom(c)
	name := claims.Name
	if name == "" {
		name = "Anonymous"
	}
	p, err := s.deps.Discussions.Post(c.Request.Context(), discussion.Post{
		UserID:   claims.UserID(),
		UserName: name,
		Title:    req.Title,
		Content:  req.Content,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	created(c, p)
}

func (s *Server) fail(c *gin.Context, err error) {
	code, msg := statusOf(err)
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", code),
			zap.Error(err),
		)
	}
	fail(c, code, msg)
}
