// Package submission grades project code and records the result on the
// learner's profile.
package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/abhisek/deeplearn/internal/catalog"
	"github.com/abhisek/deeplearn/internal/grading"
	"github.com/abhisek/deeplearn/internal/ledger"
	"github.com/abhisek/deeplearn/internal/llm"
	"github.com/abhisek/deeplearn/internal/metrics"
	"github.com/abhisek/deeplearn/internal/profile"
)

var (
	// ErrUnknownProject is returned for a project id not in the catalog.
	ErrUnknownProject = errors.New("unknown project")

	// ErrEmptyCode is returned when the submitted code is blank.
	ErrEmptyCode = errors.New("submitted code is empty")
)

// OracleError reports that no verdict could be obtained.
type OracleError struct {
	ProjectID string
	Err       error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("grade project %s: %v", e.ProjectID, e.Err)
}

func (e *OracleError) Unwrap() error { return e.Err }

// Projects looks up catalog projects.
type Projects interface {
	Project(id string) (*catalog.Project, bool)
}

// Recorder is the part of the ledger a submission writes to.
type Recorder interface {
	RecordProjectSolve(ctx context.Context, userID, projectID string) (*ledger.SolveResult, error)
	RecordAttempt(ctx context.Context, userID string) (*profile.UserProfile, error)
}

// Outcome is the result of a graded submission.
type Outcome struct {
	ProjectID string
	Verdict   *grading.Verdict

	// Solve is set for correct submissions once the ledger recorded them.
	Solve *ledger.SolveResult

	// Profile is the committed profile, when the ledger write succeeded.
	Profile *profile.UserProfile
}

// Service runs the grade-then-record workflow.
type Service struct {
	projects Projects
	oracle   grading.Oracle
	ledger   Recorder
	log      *zap.Logger
	metrics  *metrics.Metrics
}

// NewService creates a submission Service.
func NewService(projects Projects, oracle grading.Oracle, rec Recorder, log *zap.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{projects: projects, oracle: oracle, ledger: rec, log: log, metrics: m}
}

// Submit grades code for projectID and records the outcome.
//
// When grading succeeds but recording fails, the returned Outcome still
// carries the verdict alongside the ledger error.
func (s *Service) Submit(ctx context.Context, userID, projectID, code string) (*Outcome, error) {
	project, ok := s.projects.Project(projectID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProject, projectID)
	}
	if strings.TrimSpace(code) == "" {
		return nil, ErrEmptyCode
	}

	ctx = llm.WithUser(ctx, userID)
	verdict, err := s.oracle.Grade(ctx, grading.Submission{
		ProjectTitle: project.Title,
		SolutionCode: project.SolutionCode(),
		UserCode:     code,
	})
	if err != nil {
		s.log.Warn("grading failed",
			zap.String("user_id", userID),
			zap.String("project_id", projectID),
			zap.Error(err),
		)
		return nil, &OracleError{ProjectID: projectID, Err: err}
	}
	s.metrics.Graded(verdict.IsCorrect)

	out := &Outcome{ProjectID: projectID, Verdict: verdict}
	if verdict.IsCorrect {
		res, err := s.ledger.RecordProjectSolve(ctx, userID, projectID)
		if err != nil {
			return out, err
		}
		out.Solve = res
		out.Profile = res.Profile
		return out, nil
	}

	p, err := s.ledger.RecordAttempt(ctx, userID)
	if err != nil {
		return out, err
	}
	out.Profile = p
	return out, nil
}
