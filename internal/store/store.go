package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Default transaction retry policy.
const (
	DefaultMaxAttempts = 5
	DefaultBaseBackoff = 5 * time.Millisecond
	DefaultMaxBackoff  = 200 * time.Millisecond
)

// Options tunes transaction retries and observability hooks.
type Options struct {
	// MaxAttempts bounds how often a transaction function is run when its
	// commit loses a race. Zero means DefaultMaxAttempts.
	MaxAttempts int

	// BaseBackoff and MaxBackoff bound the jittered wait between attempts.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// OnConflict is called after each commit that lost a race, with the
	// 1-based attempt number.
	OnConflict func(attempt int)
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = DefaultBaseBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	return o
}

// Store is a hierarchical document store with optimistic transactions.
// Paths alternate collection and document segments, e.g.
// "users/u1/userProfiles/u1".
type Store struct {
	be   backend
	db   *sql.DB
	opts Options
	now  func() time.Time
}

// Open creates a Store backed by the SQLite database at dsn.
// It applies recommended pragmas and creates the documents table.
func Open(dsn string, opts ...Options) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps pragmas applied and serializes commits.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	be, err := newSQLiteBackend(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	return newStore(be, db, opts), nil
}

// NewMemory returns a Store that keeps documents in process memory.
func NewMemory(opts ...Options) *Store {
	return newStore(newMemoryBackend(), nil, opts)
}

func newStore(be backend, db *sql.DB, opts []Options) *Store {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	return &Store{be: be, db: db, opts: o.withDefaults(), now: time.Now}
}

// DB returns the underlying *sql.DB, or nil for memory stores.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.be.close()
}

// Get reads the document at path. It returns ErrNotFound if absent.
func (s *Store) Get(ctx context.Context, path string) (*Snapshot, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	rec, err := s.be.load(ctx, path)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return rec.snapshot(), nil
}

// Create stores doc at path. It returns ErrAlreadyExists if a document is
// already there.
func (s *Store) Create(ctx context.Context, path string, doc Doc) error {
	return s.RunTransaction(ctx, func(tx *Tx) error {
		_, err := tx.Get(ctx, path)
		switch {
		case err == nil:
			return fmt.Errorf("%s: %w", path, ErrAlreadyExists)
		case !errors.Is(err, ErrNotFound):
			return err
		}
		return tx.Set(path, doc)
	})
}

// Update applies field operations to the existing document at path as one
// atomic write. It returns ErrNotFound if the document does not exist.
func (s *Store) Update(ctx context.Context, path string, ops ...FieldOp) error {
	return s.RunTransaction(ctx, func(tx *Tx) error {
		if _, err := tx.Get(ctx, path); err != nil {
			return err
		}
		return tx.Update(path, ops...)
	})
}

// Add creates a document with a generated id inside collection and returns
// its id.
func (s *Store) Add(ctx context.Context, collection string, doc Doc) (string, error) {
	id := uuid.NewString()
	if err := s.Create(ctx, collection+"/"+id, doc); err != nil {
		return "", err
	}
	return id, nil
}

// List returns documents of collection ordered by creation time.
func (s *Store) List(ctx context.Context, collection string, opts ListOpts) ([]*Snapshot, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	recs, err := s.be.list(ctx, collection, opts)
	if err != nil {
		return nil, err
	}
	out := make([]*Snapshot, len(recs))
	for i, r := range recs {
		out[i] = r.snapshot()
	}
	return out, nil
}

// NextSequence atomically returns the next value of the named counter,
// starting at 1.
func (s *Store) NextSequence(ctx context.Context, name string) (int64, error) {
	path := "sequences/" + name
	var next int64
	err := s.RunTransaction(ctx, func(tx *Tx) error {
		snap, err := tx.Get(ctx, path)
		switch {
		case errors.Is(err, ErrNotFound):
			next = 1
			return tx.Set(path, Doc{"value": next})
		case err != nil:
			return err
		}
		next = snap.Int("value") + 1
		return tx.Update(path, Increment("value", 1))
	})
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return next, nil
}

// RunTransaction runs fn against a consistent read set and commits its
// writes atomically. If another writer changed any document fn read, the
// writes are discarded and fn runs again, up to MaxAttempts times. An error
// returned by fn aborts without retry and is returned unchanged.
func (s *Store) RunTransaction(ctx context.Context, fn func(tx *Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		tx := newTx(s)
		if err := fn(tx); err != nil {
			return err
		}
		if len(tx.writes) == 0 {
			return nil
		}

		b, err := tx.batch(s.now())
		if err != nil {
			return err
		}
		err = s.be.commit(ctx, b)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return fmt.Errorf("commit: %w", err)
		}

		lastErr = err
		if s.opts.OnConflict != nil {
			s.opts.OnConflict(attempt)
		}
		if attempt == s.opts.MaxAttempts {
			break
		}
		if err := sleepCtx(ctx, s.backoff(attempt)); err != nil {
			return err
		}
	}
	return &AbortedError{Attempts: s.opts.MaxAttempts, Err: lastErr}
}

func (s *Store) backoff(attempt int) time.Duration {
	d := s.opts.BaseBackoff << (attempt - 1)
	if d > s.opts.MaxBackoff || d <= 0 {
		d = s.opts.MaxBackoff
	}
	// Full jitter.
	return time.Duration(rand.Int64N(int64(d)) + 1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// applyPragmas configures SQLite for concurrent readers and a single writer.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// DefaultDBPath resolves the database file path in priority order:
// 1. DEEPLEARN_DB environment variable
// 2. $XDG_DATA_HOME/deeplearn/deeplearn.db
// 3. ~/.local/share/deeplearn/deeplearn.db
func DefaultDBPath() (string, error) {
	if p := os.Getenv("DEEPLEARN_DB"); p != "" {
		return p, EnsureDir(p)
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}

	p := filepath.Join(dataHome, "deeplearn", "deeplearn.db")
	return p, EnsureDir(p)
}

// EnsureDir creates the parent directory of path if it doesn't exist.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}

// validatePath checks that path names a document: an even number of
// non-empty segments.
func validatePath(path string) error {
	segs := strings.Split(path, "/")
	if len(segs) < 2 || len(segs)%2 != 0 {
		return fmt.Errorf("%q: %w", path, ErrInvalidPath)
	}
	for _, seg := range segs {
		if seg == "" {
			return fmt.Errorf("%q: %w", path, ErrInvalidPath)
		}
	}
	return nil
}

func validateCollection(collection string) error {
	segs := strings.Split(collection, "/")
	if len(segs)%2 != 1 {
		return fmt.Errorf("%q: %w", collection, ErrInvalidPath)
	}
	for _, seg := range segs {
		if seg == "" {
			return fmt.Errorf("%q: %w", collection, ErrInvalidPath)
		}
	}
	return nil
}

// collectionOf returns the parent collection path of a document path.
func collectionOf(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return ""
	}
	return path[:i]
}
