// Package discussion stores community posts.
package discussion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abhisek/deeplearn/internal/store"
)

// Collection holds all posts.
const Collection = "discussions"

// List limits.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Field length limits in bytes.
const (
	MaxTitleLen   = 200
	MaxContentLen = 10000
)

var (
	ErrEmptyTitle   = errors.New("title is empty")
	ErrEmptyContent = errors.New("content is empty")
	ErrTooLong      = errors.New("post is too long")
)

// Post is a discussion board entry.
type Post struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Documents is the subset of the document store used for posts.
type Documents interface {
	Add(ctx context.Context, collection string, doc store.Doc) (string, error)
	List(ctx context.Context, collection string, opts store.ListOpts) ([]*store.Snapshot, error)
}

// Service posts and lists discussions.
type Service struct {
	docs Documents
	now  func() time.Time
}

// NewService creates a discussion Service.
func NewService(docs Documents) *Service {
	return &Service{docs: docs, now: time.Now}
}

// Post validates and stores p, returning it with its id and timestamp set.
func (s *Service) Post(ctx context.Context, p Post) (*Post, error) {
	p.Title = strings.TrimSpace(p.Title)
	p.Content = strings.TrimSpace(p.Content)
	switch {
	case p.Title == "":
		return nil, ErrEmptyTitle
	case p.Content == "":
		return nil, ErrEmptyContent
	case len(p.Title) > MaxTitleLen || len(p.Content) > MaxContentLen:
		return nil, ErrTooLong
	}

	p.ID = ""
	p.CreatedAt = s.now().UTC()
	doc, err := store.ToDoc(p)
	if err != nil {
		return nil, err
	}
	delete(doc, "id")

	id, err := s.docs.Add(ctx, Collection, doc)
	if err != nil {
		return nil, fmt.Errorf("add post: %w", err)
	}
	p.ID = id
	return &p, nil
}

// List returns up to limit posts, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	snaps, err := s.docs.List(ctx, Collection, store.ListOpts{Limit: limit, Desc: true})
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	posts := make([]Post, 0, len(snaps))
	for _, snap := range snaps {
		var p Post
		if err := snap.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode post %s: %w", snap.Path, err)
		}
		p.ID = snap.ID()
		posts = append(posts, p)
	}
	return posts, nil
}
