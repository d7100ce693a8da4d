package store

import (
	"context"
	"time"
)

// ListOpts configures collection listings.
type ListOpts struct {
	Limit int  // max results (0 = unlimited)
	Desc  bool // newest first
}

// record is a stored document as held by a backend.
type record struct {
	path      string
	data      []byte
	version   int64
	createdAt time.Time
	updatedAt time.Time
}

func (r *record) snapshot() *Snapshot {
	return &Snapshot{
		Path:      r.path,
		Version:   r.version,
		CreatedAt: r.createdAt,
		UpdatedAt: r.updatedAt,
		raw:       append([]byte(nil), r.data...),
	}
}

type write struct {
	path       string
	collection string
	data       []byte
	expect     int64 // version read by the transaction, 0 = absent
}

// batch is the unit a backend commits atomically.
type batch struct {
	reads  map[string]int64
	writes []write
	now    time.Time
}

// backend persists records. load returns a nil record when the path is
// absent. commit applies every write or none, failing with ErrConflict if
// a version in reads no longer matches.
type backend interface {
	load(ctx context.Context, path string) (*record, error)
	commit(ctx context.Context, b *batch) error
	list(ctx context.Context, collection string, opts ListOpts) ([]*record, error)
	close() error
}
