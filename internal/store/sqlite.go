package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

const documentsTable = "documents"

// timeFormat is fixed width so timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// sqliteBackend stores one row per document. Versions are checked inside a
// SQL transaction so a commit either lands whole or reports ErrConflict.
type sqliteBackend struct {
	drv *entsql.Driver
}

func newSQLiteBackend(db *sql.DB) (*sqliteBackend, error) {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			path TEXT PRIMARY KEY,
			collection TEXT NOT NULL,
			data TEXT NOT NULL,
			version INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS documents_collection_created
			ON documents (collection, created_at)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return nil, fmt.Errorf("create documents table: %w", err)
		}
	}
	return &sqliteBackend{drv: entsql.OpenDB(dialect.SQLite, db)}, nil
}

func builder() *entsql.DialectBuilder {
	return entsql.Dialect(dialect.SQLite)
}

func (b *sqliteBackend) load(ctx context.Context, path string) (*record, error) {
	query, args := builder().
		Select("path", "data", "version", "created_at", "updated_at").
		From(entsql.Table(documentsTable)).
		Where(entsql.EQ("path", path)).
		Query()

	recs, err := b.query(ctx, b.drv, query, args)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

func (b *sqliteBackend) list(ctx context.Context, collection string, opts ListOpts) ([]*record, error) {
	sel := builder().
		Select("path", "data", "version", "created_at", "updated_at").
		From(entsql.Table(documentsTable)).
		Where(entsql.EQ("collection", collection))
	if opts.Desc {
		sel.OrderBy(entsql.Desc("created_at"), entsql.Desc("path"))
	} else {
		sel.OrderBy(entsql.Asc("created_at"), entsql.Asc("path"))
	}
	if opts.Limit > 0 {
		sel.Limit(opts.Limit)
	}
	query, args := sel.Query()

	recs, err := b.query(ctx, b.drv, query, args)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return recs, nil
}

func (b *sqliteBackend) commit(ctx context.Context, bt *batch) (err error) {
	tx, err := b.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	written := make(map[string]bool, len(bt.writes))
	for _, w := range bt.writes {
		written[w.path] = true
	}
	// Reads that are not written still have to be unchanged.
	for path, want := range bt.reads {
		if written[path] {
			continue
		}
		got, err := b.version(ctx, tx, path)
		if err != nil {
			return err
		}
		if got != want {
			return ErrConflict
		}
	}

	now := bt.now.UTC().Format(timeFormat)
	for _, w := range bt.writes {
		if w.expect == 0 {
			err = b.insert(ctx, tx, w, now)
		} else {
			err = b.update(ctx, tx, w, now)
		}
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (b *sqliteBackend) version(ctx context.Context, q dialect.ExecQuerier, path string) (int64, error) {
	query, args := builder().
		Select("version").
		From(entsql.Table(documentsTable)).
		Where(entsql.EQ("path", path)).
		Query()

	var rows entsql.Rows
	if err := q.Query(ctx, query, args, &rows); err != nil {
		return 0, fmt.Errorf("read version %s: %w", path, err)
	}
	defer rows.Close()

	var v int64
	if rows.Next() {
		if err := rows.Scan(&v); err != nil {
			return 0, fmt.Errorf("scan version %s: %w", path, err)
		}
	}
	return v, rows.Err()
}

func (b *sqliteBackend) insert(ctx context.Context, q dialect.ExecQuerier, w write, now string) error {
	got, err := b.version(ctx, q, w.path)
	if err != nil {
		return err
	}
	if got != 0 {
		return ErrConflict
	}

	query, args := builder().
		Insert(documentsTable).
		Columns("path", "collection", "data", "version", "created_at", "updated_at").
		Values(w.path, w.collection, string(w.data), 1, now, now).
		Query()

	var res sql.Result
	if err := q.Exec(ctx, query, args, &res); err != nil {
		return fmt.Errorf("insert %s: %w", w.path, err)
	}
	return nil
}

func (b *sqliteBackend) update(ctx context.Context, q dialect.ExecQuerier, w write, now string) error {
	query, args := builder().
		Update(documentsTable).
		Set("data", string(w.data)).
		Set("version", w.expect+1).
		Set("updated_at", now).
		Where(entsql.And(
			entsql.EQ("path", w.path),
			entsql.EQ("version", w.expect),
		)).
		Query()

	var res sql.Result
	if err := q.Exec(ctx, query, args, &res); err != nil {
		return fmt.Errorf("update %s: %w", w.path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", w.path, err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func (b *sqliteBackend) query(ctx context.Context, q dialect.ExecQuerier, query string, args []any) ([]*record, error) {
	var rows entsql.Rows
	if err := q.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*record
	for rows.Next() {
		var (
			r                record
			data             string
			created, updated string
		)
		if err := rows.Scan(&r.path, &data, &r.version, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		r.data = []byte(data)
		r.createdAt, _ = time.Parse(timeFormat, created)
		r.updatedAt, _ = time.Parse(timeFormat, updated)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (b *sqliteBackend) close() error {
	return b.drv.Close()
}
