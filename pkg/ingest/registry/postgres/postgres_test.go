package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
)

func setupMockRegistry(t *testing.T) (*Registry, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg, err := NewWithDB(db, DefaultConfig())
	require.NoError(t, err)
	return reg, mock
}

func TestRegistry_GetLatest_NoRows(t *testing.T) {
	reg, mock := setupMockRegistry(t)
	mock.ExpectQuery("SELECT .* FROM schema_registry").
		WillReturnError(sql.ErrNoRows)

	rec, err := reg.GetLatest(context.Background())
	require.NoError(t, err)
	require.Nil(t, rec)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistry_GetLatest_Found(t *testing.T) {
	reg, mock := setupMockRegistry(t)

	schemaJSON, _ := model.Schema{Properties: map[string]model.PropertyDef{
		"id": {Type: model.NewTypes(model.TypeInteger)},
	}}.Canonical()

	rows := sqlmock.NewRows([]string{
		"version", "schema_json", "diff_json", "created_at", "source_job_id",
		"sample_docs_json", "field_stats_json", "pending_promotion", "promoted_at",
	}).AddRow(3, schemaJSON, []byte(`{}`), time.Now(), "job-3", []byte(`[]`), []byte(`{}`), true, nil)

	mock.ExpectQuery("SELECT .* FROM schema_registry").WillReturnRows(rows)

	rec, err := reg.GetLatest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, 3, rec.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistry_HealthCheck(t *testing.T) {
	reg, mock := setupMockRegistry(t)
	mock.ExpectPing()

	err := reg.HealthCheck(context.Background())
	require.NoError(t, err)
}

func TestRegistry_MarkPromoted(t *testing.T) {
	reg, mock := setupMockRegistry(t)
	mock.ExpectExec("UPDATE schema_registry").WillReturnResult(sqlmock.NewResult(0, 1))

	err := reg.MarkPromoted(context.Background(), 5)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistry_Equal(t *testing.T) {
	reg, _ := setupMockRegistry(t)
	a := model.Schema{Properties: map[string]model.PropertyDef{"id": {Type: model.NewTypes(model.TypeInteger)}}}
	b := model.Schema{Properties: map[string]model.PropertyDef{"id": {Type: model.NewTypes(model.TypeInteger)}}}
	require.True(t, reg.Equal(a, b))
	// second call exercises the memo cache path
	require.True(t, reg.Equal(a, b))
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, containsUniqueViolationHint("pq: duplicate key value violates unique constraint \"schema_registry_version_key\""))
	require.False(t, containsUniqueViolationHint("pq: connection refused"))
}
