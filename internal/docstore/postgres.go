package docstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/materials-cli/internal/db"
)

// PostgresBackend stores every collection in one JSONB documents table.
type PostgresBackend struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresBackend with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresBackend, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresBackend{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool (used by tests with pgxmock).
func NewPostgresWithPool(pool db.Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	doc_key    TEXT NOT NULL,
	doc        JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, doc_key)
);

CREATE INDEX IF NOT EXISTS idx_documents_doc ON documents USING GIN (doc jsonb_path_ops);
`

func (b *PostgresBackend) Migrate(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (b *PostgresBackend) Close() error {
	if b.closeFn != nil {
		b.closeFn()
	}
	return nil
}

// Collection returns a handle on the named collection.
func (b *PostgresBackend) Collection(name string) Store {
	return &PostgresStore{pool: b.pool, name: name}
}

// PostgresStore is one collection inside a PostgresBackend.
type PostgresStore struct {
	pool db.Pool
	name string
}

func (s *PostgresStore) Name() string { return s.name }

// selectSQL narrows the scan with string equality/membership conditions on
// scalar or array-valued fields; the exact match is applied in Go.
func (s *PostgresStore) selectSQL(cols string, c Criteria) (string, []any) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE collection = $1`, cols)
	args := []any{s.name}
	for _, cond := range c {
		vals, ok := cond.stringValues()
		if !ok || !safeFieldRe.MatchString(cond.Field) {
			continue
		}
		path := strings.Split(cond.Field, ".")
		args = append(args, path, vals)
		pi, vi := len(args)-1, len(args)
		query += fmt.Sprintf(
			` AND (doc #>> $%[1]d::text[] = ANY($%[2]d::text[]) OR EXISTS (SELECT 1 FROM jsonb_array_elements_text(CASE WHEN jsonb_typeof(doc #> $%[1]d::text[]) = 'array' THEN doc #> $%[1]d::text[] ELSE '[]'::jsonb END) e WHERE e = ANY($%[2]d::text[])))`,
			pi, vi,
		)
	}
	query += ` ORDER BY doc_key`
	return query, args
}

func (s *PostgresStore) scan(ctx context.Context, c Criteria) ([]keyedDoc, error) {
	query, args := s.selectSQL("doc_key, doc", c)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query %s", s.name)
	}
	defer rows.Close()

	var out []keyedDoc
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", s.name)
		}
		doc, err := decode(raw)
		if err != nil {
			return nil, err
		}
		if c.Matches(doc) {
			out = append(out, keyedDoc{key: key, doc: doc})
		}
	}
	return out, eris.Wrapf(rows.Err(), "postgres: iterate %s", s.name)
}

func (s *PostgresStore) Query(ctx context.Context, c Criteria, fields []string) ([]Document, error) {
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

func (s *PostgresStore) Distinct(ctx context.Context, field string, c Criteria) ([]any, error) {
	docs, err := s.Query(ctx, c, []string{field})
	if err != nil {
		return nil, err
	}
	return distinctValues(docs, field), nil
}

func (s *PostgresStore) Count(ctx context.Context, c Criteria) (int, error) {
	rows, err := s.scan(ctx, c)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *PostgresStore) RemoveMany(ctx context.Context, c Criteria) (int64, error) {
	rows, err := s.scan(ctx, c)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	keys := make([]string, len(rows))
	for i, r := range rows {
		keys[i] = r.key
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND doc_key = ANY($2::text[])`,
		s.name, keys,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: remove from %s", s.name)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) BulkUpsert(ctx context.Context, docs []Document, keys []string) (int64, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	rows, err := s.stageRows(docs, keys, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "documents",
		Columns:      []string{"collection", "doc_key", "doc", "updated_at"},
		ConflictKeys: []string{"collection", "doc_key"},
	}, rows)
	return n, eris.Wrapf(err, "postgres: upsert into %s", s.name)
}

// stageRows encodes docs as document rows with one row per key. When docs
// repeat a key the last one wins, since ON CONFLICT cannot touch the same
// row twice in one statement.
func (s *PostgresStore) stageRows(docs []Document, keys []string, now time.Time) ([][]any, error) {
	seen := make(map[string]int, len(docs))
	rows := make([][]any, 0, len(docs))
	for _, d := range docs {
		key, err := upsertKey(d, keys)
		if err != nil {
			return nil, err
		}
		_, raw, err := normalize(d)
		if err != nil {
			return nil, err
		}
		row := []any{s.name, key, raw, now}
		if i, dup := seen[key]; dup {
			rows[i] = row
			continue
		}
		seen[key] = len(rows)
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *PostgresStore) EnsureIndex(ctx context.Context, field string) error {
	if !safeFieldRe.MatchString(field) {
		return eris.Errorf("postgres: cannot index field %q", field)
	}
	name := indexName(s.name, field)
	path := "{" + strings.ReplaceAll(field, ".", ",") + "}"
	stmt := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s ON documents ((doc #>> '%s')) WHERE collection = '%s'`,
		name, path, strings.ReplaceAll(s.name, "'", "''"),
	)
	_, err := s.pool.Exec(ctx, stmt)
	return eris.Wrapf(err, "postgres: ensure index %s", name)
}
