package docstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteBackend stores every collection in one documents table using
// modernc.org/sqlite, with documents kept as JSON text.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if strings.Contains(dsn, ":memory:") {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteBackend{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	doc_key    TEXT NOT NULL,
	doc        TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (collection, doc_key)
);

CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
`

func (b *SQLiteBackend) Migrate(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// Collection returns a handle on the named collection.
func (b *SQLiteBackend) Collection(name string) Store {
	return &SQLiteStore{db: b.db, name: name}
}

// SQLiteStore is one collection inside a SQLiteBackend.
type SQLiteStore struct {
	db   *sql.DB
	name string
}

func (s *SQLiteStore) Name() string { return s.name }

var safeFieldRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// sqliteJSONPath converts a dot path into a SQLite JSON path. Paths with
// list indices are not pushed down.
func sqliteJSONPath(field string) (string, bool) {
	if !safeFieldRe.MatchString(field) {
		return "", false
	}
	return "$." + field, true
}

// selectSQL narrows the scan with string equality/membership conditions.
// json_each over a scalar yields the scalar itself, so list and scalar
// fields are handled alike. The exact match is applied afterwards in Go.
func (s *SQLiteStore) selectSQL(cols string, c Criteria) (string, []any) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE collection = ?`, cols)
	args := []any{s.name}
	for _, cond := range c {
		vals, ok := cond.stringValues()
		if !ok {
			continue
		}
		path, ok := sqliteJSONPath(cond.Field)
		if !ok {
			continue
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(vals)), ",")
		query += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM json_each(documents.doc, ?) WHERE json_each.value IN (%s))`, placeholders)
		args = append(args, path)
		for _, v := range vals {
			args = append(args, v)
		}
	}
	query += ` ORDER BY rowid`
	return query, args
}

type keyedDoc struct {
	key string
	doc Document
}

func (s *SQLiteStore) scan(ctx context.Context, c Criteria) ([]keyedDoc, error) {
	query, args := s.selectSQL("doc_key, doc", c)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query %s", s.name)
	}
	defer rows.Close()

	var out []keyedDoc
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", s.name)
		}
		doc, err := decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		if c.Matches(doc) {
			out = append(out, keyedDoc{key: key, doc: doc})
		}
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: iterate %s", s.name)
}

func (s *SQLiteStore) Query(ctx context.Context, c Criteria, fields []string) ([]Document, error) {
	rows, err := s.scan(ctx, c)
	if err != nil {
		return nil, err
	}
	out := make([]Document, len(rows))
	for i, r := range rows {
		out[i] = project(r.doc, fields)
	}
	return out, nil
}

func (s *SQLiteStore) Distinct(ctx context.Context, field string, c Criteria) ([]any, error) {
	docs, err := s.Query(ctx, c, []string{field})
	if err != nil {
		return nil, err
	}
	return distinctValues(docs, field), nil
}

func (s *SQLiteStore) Count(ctx context.Context, c Criteria) (int, error) {
	rows, err := s.scan(ctx, c)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *SQLiteStore) RemoveMany(ctx context.Context, c Criteria) (int64, error) {
	rows, err := s.scan(ctx, c)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: remove: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM documents WHERE collection = ? AND doc_key = ?`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: remove: prepare")
	}
	defer stmt.Close()

	var removed int64
	for _, r := range rows {
		res, err := stmt.ExecContext(ctx, s.name, r.key)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: remove %s", r.key)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		removed += n
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: remove: commit tx")
	}
	return removed, nil
}

func (s *SQLiteStore) BulkUpsert(ctx context.Context, docs []Document, keys []string) (int64, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (collection, doc_key, doc, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (collection, doc_key) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert: prepare")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	var n int64
	for _, d := range docs {
		key, err := upsertKey(d, keys)
		if err != nil {
			return 0, err
		}
		_, raw, err := normalize(d)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, s.name, key, string(raw), now); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert %s", key)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert: commit tx")
	}
	return n, nil
}

func (s *SQLiteStore) EnsureIndex(ctx context.Context, field string) error {
	path, ok := sqliteJSONPath(field)
	if !ok {
		return eris.Errorf("sqlite: cannot index field %q", field)
	}
	name := indexName(s.name, field)
	stmt := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s ON documents(collection, json_extract(doc, '%s'))`,
		name, path,
	)
	_, err := s.db.ExecContext(ctx, stmt)
	return eris.Wrapf(err, "sqlite: ensure index %s", name)
}

var nonIdentRe = regexp.MustCompile(`[^A-Za-z0-9_]`)

func indexName(collection, field string) string {
	return "idx_" + nonIdentRe.ReplaceAllString(collection, "_") + "_" + nonIdentRe.ReplaceAllString(field, "_")
}
