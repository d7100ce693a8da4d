package store

import (
	"context"
	"sort"
	"sync"
)

// memoryBackend keeps records in a map guarded by a mutex.
type memoryBackend struct {
	mu      sync.RWMutex
	records map[string]*memRecord
	seq     int64
}

type memRecord struct {
	record
	collection string
	order      int64
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{records: make(map[string]*memRecord)}
}

func (m *memoryBackend) load(_ context.Context, path string) (*record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[path]
	if !ok {
		return nil, nil
	}
	cp := r.record
	cp.data = append([]byte(nil), r.data...)
	return &cp, nil
}

func (m *memoryBackend) commit(_ context.Context, b *batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for path, want := range b.reads {
		if m.version(path) != want {
			return ErrConflict
		}
	}

	for _, w := range b.writes {
		r, ok := m.records[w.path]
		if !ok {
			m.seq++
			r = &memRecord{
				record: record{
					path:      w.path,
					createdAt: b.now,
				},
				collection: w.collection,
				order:      m.seq,
			}
			m.records[w.path] = r
		}
		r.data = append([]byte(nil), w.data...)
		r.version = w.expect + 1
		r.updatedAt = b.now
	}
	return nil
}

func (m *memoryBackend) version(path string) int64 {
	if r, ok := m.records[path]; ok {
		return r.version
	}
	return 0
}

func (m *memoryBackend) list(_ context.Context, collection string, opts ListOpts) ([]*record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*memRecord
	for _, r := range m.records {
		if r.collection == collection {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if opts.Desc {
			return matched[i].order > matched[j].order
		}
		return matched[i].order < matched[j].order
	})
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	out := make([]*record, len(matched))
	for i, r := range matched {
		cp := r.record
		cp.data = append([]byte(nil), r.data...)
		out[i] = &cp
	}
	return out, nil
}

func (m *memoryBackend) close() error { return nil }
