package db

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "materials.documents",
		Columns:      []string{"id", "name"},
		ConflictKeys: []string{"id"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "materials.documents",
		ConflictKeys: []string{"id"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:   "materials.documents",
		Columns: []string{"id", "name"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TEMP TABLE "_tmp_upsert_documents" (LIKE "documents" INCLUDING DEFAULTS) ON COMMIT DROP`)).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_documents"}, []string{"collection", "doc_key", "doc"}).
		WillReturnResult(2)
	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT ("collection", "doc_key") DO UPDATE SET "doc" = EXCLUDED."doc"`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	mock.ExpectRollback()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "documents",
		Columns:      []string{"collection", "doc_key", "doc"},
		ConflictKeys: []string{"collection", "doc_key"},
	}, [][]any{
		{"materials", "k1", []byte(`{}`)},
		{"materials", "k2", []byte(`{}`)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestBulkUpsert_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_documents"}, []string{"collection", "doc_key", "doc"}).
		WillReturnError(fmt.Errorf("copy failed"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "documents",
		Columns:      []string{"collection", "doc_key", "doc"},
		ConflictKeys: []string{"collection", "doc_key"},
	}, [][]any{{"materials", "k1", []byte(`{}`)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table for documents")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSQL_ExplicitUpdateCols(t *testing.T) {
	sql := UpsertSQL("documents", "_tmp", []string{"a", "b", "c"}, []string{"a"}, []string{"c"})
	assert.Equal(t,
		`INSERT INTO "documents" ("a", "b", "c") SELECT "a", "b", "c" FROM "_tmp" ON CONFLICT ("a") DO UPDATE SET "c" = EXCLUDED."c"`,
		sql)
}

func TestTempTableName(t *testing.T) {
	assert.Equal(t, "_tmp_upsert_materials_documents", TempTableName("materials.documents"))
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"materials.documents", `"materials"."documents"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeTable(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"id", "name", "value"})
	assert.Equal(t, `"id", "name", "value"`, result)
}
