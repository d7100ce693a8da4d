package store

import (
	"context"
	"fmt"
	"time"
)

// Tx is one attempt of a transaction. Every document it writes must have
// been read through the same Tx first; the commit fails with ErrConflict if
// any of those documents changed in the meantime.
type Tx struct {
	s        *Store
	versions map[string]int64 // path -> version seen, 0 for absent
	seen     map[string]*record
	pending  map[string]Doc
	writes   []string
}

func newTx(s *Store) *Tx {
	return &Tx{
		s:        s,
		versions: make(map[string]int64),
		seen:     make(map[string]*record),
		pending:  make(map[string]Doc),
	}
}

// Get reads the document at path and registers it in the read set.
// Reads after a write to the same path observe the pending write.
func (tx *Tx) Get(ctx context.Context, path string) (*Snapshot, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	if d, ok := tx.pending[path]; ok {
		raw, err := encodeDoc(d)
		if err != nil {
			return nil, err
		}
		return &Snapshot{Path: path, Version: tx.versions[path], raw: raw}, nil
	}
	if rec, ok := tx.seen[path]; ok {
		if rec == nil {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return rec.snapshot(), nil
	}

	rec, err := tx.s.be.load(ctx, path)
	if err != nil {
		return nil, err
	}
	tx.seen[path] = rec
	if rec == nil {
		tx.versions[path] = 0
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	tx.versions[path] = rec.version
	return rec.snapshot(), nil
}

// Set replaces the whole document at path, creating it if it was absent
// when read.
func (tx *Tx) Set(path string, doc Doc) error {
	if _, ok := tx.versions[path]; !ok {
		return fmt.Errorf("%s: %w", path, ErrNotRead)
	}
	raw, err := encodeDoc(doc)
	if err != nil {
		return err
	}
	d, err := decodeDoc(raw)
	if err != nil {
		return err
	}
	tx.stage(path, d)
	return nil
}

// Update applies field operations to the document at path, which must
// exist and have been read in this Tx.
func (tx *Tx) Update(path string, ops ...FieldOp) error {
	if _, ok := tx.versions[path]; !ok {
		return fmt.Errorf("%s: %w", path, ErrNotRead)
	}
	d, ok := tx.pending[path]
	if !ok {
		rec := tx.seen[path]
		if rec == nil {
			return fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		var err error
		if d, err = decodeDoc(rec.data); err != nil {
			return err
		}
	}
	if err := applyOps(d, ops); err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	tx.stage(path, d)
	return nil
}

func (tx *Tx) stage(path string, d Doc) {
	if _, ok := tx.pending[path]; !ok {
		tx.writes = append(tx.writes, path)
	}
	tx.pending[path] = d
}

func (tx *Tx) batch(now time.Time) (*batch, error) {
	b := &batch{reads: make(map[string]int64, len(tx.versions)), now: now}
	for path, v := range tx.versions {
		b.reads[path] = v
	}
	for _, path := range tx.writes {
		raw, err := encodeDoc(tx.pending[path])
		if err != nil {
			return nil, err
		}
		b.writes = append(b.writes, write{
			path:       path,
			collection: collectionOf(path),
			data:       raw,
			expect:     tx.versions[path],
		})
	}
	return b, nil
}
