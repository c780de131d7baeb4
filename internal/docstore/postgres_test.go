package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockBackend(t *testing.T) (pgxmock.PgxPoolIface, *PostgresBackend) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPostgresWithPool(mock)
}

func TestPostgres_Migrate(t *testing.T) {
	mock, b := newMockBackend(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS documents").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, b.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_QueryPushesDownStringConditions(t *testing.T) {
	mock, b := newMockBackend(t)
	rows := pgxmock.NewRows([]string{"doc_key", "doc"}).
		AddRow(`task_id|["mp-1"]`, []byte(`{"task_id":"mp-1","formula_pretty":"Si","nsites":2}`)).
		AddRow(`task_id|["mp-2"]`, []byte(`{"task_id":"mp-2","formula_pretty":"Si","nsites":8}`))
	mock.ExpectQuery(`SELECT doc_key, doc FROM documents WHERE collection = \$1 AND \(doc #>> \$2::text\[\] = ANY\(\$3::text\[\]\)`).
		WithArgs("tasks", []string{"formula_pretty"}, []string{"Si"}).
		WillReturnRows(rows)

	docs, err := b.Collection("tasks").Query(context.Background(),
		Where(Eq("formula_pretty", "Si"), Lt("nsites", 4)), []string{"task_id"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, Document{"task_id": "mp-1"}, docs[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_QueryError(t *testing.T) {
	mock, b := newMockBackend(t)
	mock.ExpectQuery("SELECT doc_key, doc FROM documents").
		WithArgs("tasks").
		WillReturnError(errors.New("conn reset"))

	_, err := b.Collection("tasks").Query(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: query tasks")
}

func TestPostgres_RemoveMany(t *testing.T) {
	mock, b := newMockBackend(t)
	rows := pgxmock.NewRows([]string{"doc_key", "doc"}).
		AddRow("k1", []byte(`{"material_id":"mp-1"}`))
	mock.ExpectQuery("SELECT doc_key, doc FROM documents").
		WithArgs("materials", []string{"material_id"}, []string{"mp-1"}).
		WillReturnRows(rows)
	mock.ExpectExec(`DELETE FROM documents WHERE collection = \$1 AND doc_key = ANY`).
		WithArgs("materials", []string{"k1"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	n, err := b.Collection("materials").RemoveMany(context.Background(), Where(In("material_id", []string{"mp-1"})))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RemoveManyNothingMatched(t *testing.T) {
	mock, b := newMockBackend(t)
	mock.ExpectQuery("SELECT doc_key, doc FROM documents").
		WithArgs("materials").
		WillReturnRows(pgxmock.NewRows([]string{"doc_key", "doc"}))

	n, err := b.Collection("materials").RemoveMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_BulkUpsert(t *testing.T) {
	mock, b := newMockBackend(t)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_documents"}, []string{"collection", "doc_key", "doc", "updated_at"}).
		WillReturnResult(1)
	mock.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	// Both documents share a key, so only the last one is staged.
	n, err := b.Collection("materials").BulkUpsert(context.Background(), []Document{
		{"material_id": "mp-1", "v": 1},
		{"material_id": "mp-1", "v": 2},
	}, []string{"material_id"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPostgres_StageRowsLastDuplicateWins(t *testing.T) {
	_, b := newMockBackend(t)
	s := b.Collection("materials").(*PostgresStore)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	rows, err := s.stageRows([]Document{
		{"material_id": "mp-1", "v": 1},
		{"material_id": "mp-2", "v": 1},
		{"material_id": "mp-1", "v": 2},
	}, []string{"material_id"}, now)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.NotEqual(t, rows[0][1], rows[1][1])
	assert.Equal(t, "materials", rows[0][0])
	assert.JSONEq(t, `{"material_id":"mp-1","v":2}`, string(rows[0][2].([]byte)))
	assert.Equal(t, now, rows[0][3])
}

func TestPostgres_BulkUpsertMissingKey(t *testing.T) {
	_, b := newMockBackend(t)
	_, err := b.Collection("materials").BulkUpsert(context.Background(),
		[]Document{{"v": 1}}, []string{"material_id"})
	assert.Error(t, err)
}

func TestPostgres_EnsureIndex(t *testing.T) {
	mock, b := newMockBackend(t)
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS idx_tasks_output_energy ON documents \(\(doc #>> '\{output,energy\}'\)\) WHERE collection = 'tasks'`).
		WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))

	require.NoError(t, b.Collection("tasks").EnsureIndex(context.Background(), "output.energy"))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Error(t, b.Collection("tasks").EnsureIndex(context.Background(), "bad field"))
}
