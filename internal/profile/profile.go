// Package profile defines the learner profile document and its field names.
package profile

import (
	"fmt"
	"slices"
	"time"

	"github.com/abhisek/deeplearn/internal/store"
)

// DateLayout is the yyyy-MM-dd stamp used by the completion logs.
const DateLayout = "2006-01-02"

// Document field names.
const (
	FieldSolvedProjects       = "solvedProjects"
	FieldSolvedProjectIDs     = "solvedProjectIds"
	FieldTotalSubmissions     = "totalSubmissions"
	FieldCoursesCompleted     = "coursesCompleted"
	FieldCompletedCourseIDs   = "completedCourseIds"
	FieldLastRecommendation   = "lastRecommendation"
	FieldActivityLog          = "activityLog"
	FieldProjectCompletionLog = "projectCompletionLog"
	FieldCourseCompletionLog  = "courseCompletionLog"
)

// UserProfile is the per-learner progress document.
type UserProfile struct {
	ID                   string   `json:"id"`
	UserID               string   `json:"userId"`
	Name                 string   `json:"name"`
	Email                string   `json:"email"`
	SolvedProjects       int      `json:"solvedProjects"`
	SolvedProjectIDs     []string `json:"solvedProjectIds"`
	TotalSubmissions     int      `json:"totalSubmissions"`
	CoursesCompleted     int      `json:"coursesCompleted"`
	CompletedCourseIDs   []string `json:"completedCourseIds"`
	LastRecommendation   string   `json:"lastRecommendation"`
	ActivityLog          []string `json:"activityLog"`
	ProjectCompletionLog []string `json:"projectCompletionLog"`
	CourseCompletionLog  []string `json:"courseCompletionLog"`
}

// Path returns the document path of a learner's profile.
func Path(userID string) string {
	return "users/" + userID + "/userProfiles/" + userID
}

// New returns a fresh profile with zero counters and today's activity stamp.
func New(userID, name, email string, now time.Time) *UserProfile {
	return &UserProfile{
		ID:                   userID,
		UserID:               userID,
		Name:                 name,
		Email:                email,
		SolvedProjectIDs:     []string{},
		CompletedCourseIDs:   []string{},
		ActivityLog:          []string{Date(now)},
		ProjectCompletionLog: []string{},
		CourseCompletionLog:  []string{},
	}
}

// Date formats t as a completion log stamp.
func Date(t time.Time) string {
	return t.Format(DateLayout)
}

// FromSnapshot decodes a profile document.
func FromSnapshot(snap *store.Snapshot) (*UserProfile, error) {
	var p UserProfile
	if err := snap.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Doc encodes the profile as a store document.
func (p *UserProfile) Doc() (store.Doc, error) {
	return store.ToDoc(p)
}

// HasSolved reports whether the project has already been credited.
func (p *UserProfile) HasSolved(projectID string) bool {
	return slices.Contains(p.SolvedProjectIDs, projectID)
}

// HasCompleted reports whether the course has already been credited.
func (p *UserProfile) HasCompleted(courseID string) bool {
	return slices.Contains(p.CompletedCourseIDs, courseID)
}

// Check verifies that the counters agree with the id sets.
func (p *UserProfile) Check() error {
	if p.SolvedProjects != len(p.SolvedProjectIDs) {
		return fmt.Errorf("solvedProjects = %d but %d solved ids", p.SolvedProjects, len(p.SolvedProjectIDs))
	}
	if p.CoursesCompleted != len(p.CompletedCourseIDs) {
		return fmt.Errorf("coursesCompleted = %d but %d completed ids", p.CoursesCompleted, len(p.CompletedCourseIDs))
	}
	if p.TotalSubmissions < 0 {
		return fmt.Errorf("totalSubmissions is negative: %d", p.TotalSubmissions)
	}
	return nil
}
