// Package ledger owns every mutation of a learner's progress profile.
//
// Credits are recorded in a single store transaction that reads the profile,
// decides whether the project or course is new, and applies the counter and
// set updates together, so repeated or concurrent submissions never credit
// the same item twice. A first-time credit then triggers a best-effort
// recommendation refresh that runs after the transaction has committed.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/deeplearn/internal/metrics"
	"github.com/abhisek/deeplearn/internal/profile"
	"github.com/abhisek/deeplearn/internal/recommend"
	"github.com/abhisek/deeplearn/internal/store"
)

// DefaultRefreshTimeout bounds a recommendation refresh.
const DefaultRefreshTimeout = 30 * time.Second

// Documents is the subset of the document store the ledger needs.
type Documents interface {
	Get(ctx context.Context, path string) (*store.Snapshot, error)
	Create(ctx context.Context, path string, doc store.Doc) error
	Update(ctx context.Context, path string, ops ...store.FieldOp) error
	RunTransaction(ctx context.Context, fn func(tx *store.Tx) error) error
}

// Titles lists the catalog items offered in recommendations.
type Titles interface {
	CourseTitles() []string
	ProjectTitles() []string
}

// Options configures a Ledger. Zero values select defaults.
type Options struct {
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	Clock          func() time.Time
	RefreshTimeout time.Duration
}

// Ledger records project solves and course completions.
type Ledger struct {
	docs    Documents
	rec     recommend.Requester
	titles  Titles
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	timeout time.Duration

	wg sync.WaitGroup
}

// New creates a Ledger. A nil Requester disables recommendation refreshes.
func New(docs Documents, rec recommend.Requester, titles Titles, opts Options) *Ledger {
	l := &Ledger{
		docs:    docs,
		rec:     rec,
		titles:  titles,
		log:     opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Clock,
		timeout: opts.RefreshTimeout,
	}
	if l.log == nil {
		l.log = zap.NewNop()
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.timeout <= 0 {
		l.timeout = DefaultRefreshTimeout
	}
	return l
}

// SolveResult is the outcome of RecordProjectSolve.
type SolveResult struct {
	// CreditedNow is true only for the call that first credited the project.
	CreditedNow bool

	// Profile is the profile as committed by this call.
	Profile *profile.UserProfile

	// Refresh tracks the recommendation refresh started by a first-time
	// credit. It is nil when nothing was credited or refreshes are disabled.
	Refresh *Refresh
}

// CompletionResult is the outcome of CompleteCourse.
type CompletionResult struct {
	CompletedNow bool
	Profile      *profile.UserProfile
	Refresh      *Refresh
}

// CreateProfile stores a fresh profile for userID.
// It fails with store.ErrAlreadyExists if one is already present.
func (l *Ledger) CreateProfile(ctx context.Context, userID, name, email string) (*profile.UserProfile, error) {
	p := profile.New(userID, name, email, l.now())
	doc, err := p.Doc()
	if err != nil {
		return nil, err
	}
	if err := l.docs.Create(ctx, profile.Path(userID), doc); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	l.log.Info("profile created", zap.String("user_id", userID))
	return p, nil
}

// Profile returns the current profile of userID.
func (l *Ledger) Profile(ctx context.Context, userID string) (*profile.UserProfile, error) {
	snap, err := l.docs.Get(ctx, profile.Path(userID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return profile.FromSnapshot(snap)
}

// RecordProjectSolve records a correct submission of projectID. Every call
// counts towards totalSubmissions; only the first call for a project
// credits it.
func (l *Ledger) RecordProjectSolve(ctx context.Context, userID, projectID string) (*SolveResult, error) {
	path := profile.Path(userID)
	var res SolveResult

	err := l.docs.RunTransaction(ctx, func(tx *store.Tx) error {
		res = SolveResult{}
		p, err := readProfile(ctx, tx, path)
		if err != nil {
			return err
		}

		ops := []store.FieldOp{store.Increment(profile.FieldTotalSubmissions, 1)}
		if !p.HasSolved(projectID) {
			res.CreditedNow = true
			ops = append(ops,
				store.Increment(profile.FieldSolvedProjects, 1),
				store.ArrayUnion(profile.FieldSolvedProjectIDs, projectID),
				store.ArrayAppend(profile.FieldProjectCompletionLog, profile.Date(l.now())),
			)
		}
		if err := tx.Update(path, ops...); err != nil {
			return err
		}
		res.Profile, err = readProfile(ctx, tx, path)
		return err
	})
	if err != nil {
		return nil, l.txError("record project solve", userID, err)
	}

	l.log.Info("project submission recorded",
		zap.String("user_id", userID),
		zap.String("project_id", projectID),
		zap.Bool("credited", res.CreditedNow),
		zap.Int("total_submissions", res.Profile.TotalSubmissions),
	)
	if res.CreditedNow {
		l.metrics.Credited("project")
		res.Refresh = l.startRefresh(ctx, userID, res.Profile)
	}
	return &res, nil
}

// RecordAttempt counts a graded submission that did not solve the project.
func (l *Ledger) RecordAttempt(ctx context.Context, userID string) (*profile.UserProfile, error) {
	path := profile.Path(userID)
	var out *profile.UserProfile

	err := l.docs.RunTransaction(ctx, func(tx *store.Tx) error {
		if _, err := readProfile(ctx, tx, path); err != nil {
			return err
		}
		if err := tx.Update(path, store.Increment(profile.FieldTotalSubmissions, 1)); err != nil {
			return err
		}
		var err error
		out, err = readProfile(ctx, tx, path)
		return err
	})
	if err != nil {
		return nil, l.txError("record attempt", userID, err)
	}
	return out, nil
}

// CompleteCourse marks courseID as completed. Repeat calls change nothing.
func (l *Ledger) CompleteCourse(ctx context.Context, userID, courseID string) (*CompletionResult, error) {
	path := profile.Path(userID)
	var res CompletionResult

	err := l.docs.RunTransaction(ctx, func(tx *store.Tx) error {
		res = CompletionResult{}
		p, err := readProfile(ctx, tx, path)
		if err != nil {
			return err
		}
		if p.HasCompleted(courseID) {
			res.Profile = p
			return nil
		}

		today := profile.Date(l.now())
		res.CompletedNow = true
		err = tx.Update(path,
			store.Increment(profile.FieldCoursesCompleted, 1),
			store.ArrayUnion(profile.FieldCompletedCourseIDs, courseID),
			store.ArrayAppend(profile.FieldCourseCompletionLog, today),
			store.ArrayAppend(profile.FieldActivityLog, today),
		)
		if err != nil {
			return err
		}
		res.Profile, err = readProfile(ctx, tx, path)
		return err
	})
	if err != nil {
		return nil, l.txError("complete course", userID, err)
	}

	if res.CompletedNow {
		l.log.Info("course completed", zap.String("user_id", userID), zap.String("course_id", courseID))
		l.metrics.Credited("course")
		res.Refresh = l.startRefresh(ctx, userID, res.Profile)
	}
	return &res, nil
}

// Wait blocks until all in-flight refreshes have finished or ctx is done.
func (l *Ledger) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func readProfile(ctx context.Context, tx *store.Tx, path string) (*profile.UserProfile, error) {
	snap, err := tx.Get(ctx, path)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return profile.FromSnapshot(snap)
}

func (l *Ledger) txError(op, userID string, err error) error {
	if errors.Is(err, ErrProfileNotFound) {
		return ErrProfileNotFound
	}
	l.metrics.TxFailed()
	l.log.Error("ledger transaction failed",
		zap.String("op", op),
		zap.String("user_id", userID),
		zap.Error(err),
	)
	return &TxError{Op: op, UserID: userID, Err: err}
}

// startRefresh requests a new recommendation for the committed profile and
// stores it. It runs detached from the caller's cancellation.
func (l *Ledger) startRefresh(ctx context.Context, userID string, p *profile.UserProfile) *Refresh {
	if l.rec == nil {
		return nil
	}
	r := newRefresh()
	ctx = context.WithoutCancel(ctx)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, l.timeout)
		defer cancel()

		text, err := l.refresh(ctx, userID, p)
		if err != nil {
			l.metrics.Refreshed(metrics.RefreshFailed)
			l.log.Warn("recommendation refresh failed", zap.String("user_id", userID), zap.Error(err))
		} else {
			l.metrics.Refreshed(metrics.RefreshOK)
		}
		r.finish(text, err)
	}()
	return r
}

func (l *Ledger) refresh(ctx context.Context, userID string, p *profile.UserProfile) (string, error) {
	snap := recommend.LearnerSnapshot{
		UserName:         p.Name,
		CoursesCompleted: p.CoursesCompleted,
		SolvedProjects:   p.SolvedProjects,
		QuizPerformance:  recommend.QuizNotTracked,
	}
	if l.titles != nil {
		snap.AvailableCourses = l.titles.CourseTitles()
		snap.AvailableProjects = l.titles.ProjectTitles()
	}

	text, err := l.rec.Recommend(ctx, snap)
	if err != nil {
		return "", fmt.Errorf("request recommendation: %w", err)
	}
	if err := l.docs.Update(ctx, profile.Path(userID), store.Set(profile.FieldLastRecommendation, text)); err != nil {
		return "", fmt.Errorf("store recommendation: %w", err)
	}
	return text, nil
}
