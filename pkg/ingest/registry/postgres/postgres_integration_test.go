// +build integration

package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
)

// schemaRegistryDDL matches the column list this package's SQL strings
// already read and write; there is no migrations runner in this repo, so
// the integration test creates the table itself.
const schemaRegistryDDL = `
CREATE TABLE schema_registry (
	version          INTEGER PRIMARY KEY,
	schema_json      JSONB NOT NULL,
	diff_json        JSONB NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	source_job_id    TEXT NOT NULL,
	sample_docs_json JSONB NOT NULL,
	field_stats_json JSONB NOT NULL,
	pending_promotion BOOLEAN NOT NULL DEFAULT false,
	promoted_at      TIMESTAMPTZ
)`

// setupPostgresContainer starts a real Postgres container and returns a
// Registry wired to it, skipping the test when Docker/Podman isn't
// available rather than failing the suite outright.
func setupPostgresContainer(t *testing.T) (*Registry, func()) {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration test")
	}
	defer provider.Close()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("chrysalis_test"),
		postgres.WithUsername("chrysalis"),
		postgres.WithPassword("chrysalis_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("failed to start postgres container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	require.NoError(t, db.Ping())

	_, err = db.Exec(schemaRegistryDDL)
	require.NoError(t, err)

	reg, err := NewWithDB(db, DefaultConfig())
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("warning: failed to terminate postgres container: %v", err)
		}
	}

	return reg, cleanup
}

func TestRegistry_CreateGetAndPromote_RealPostgres(t *testing.T) {
	reg, cleanup := setupPostgresContainer(t)
	defer cleanup()
	ctx := context.Background()

	none, err := reg.GetLatest(ctx)
	require.NoError(t, err)
	require.Nil(t, none)

	schema := model.Schema{Properties: map[string]model.PropertyDef{
		"id": {Type: model.NewTypes(model.TypeInteger)},
	}}
	diff := model.Diff{Added: map[string]model.AddedEntry{
		"id": {Type: model.NewTypes(model.TypeInteger), Present: 3, PresentPct: 1.0},
	}}

	rec, err := reg.CreateNewVersion(ctx, schema, diff, "job-1", []model.Document{{"id": 1.0}}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, rec.Version)
	require.False(t, rec.PendingPromotion)

	latest, err := reg.GetLatest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, 1, latest.Version)
	require.Equal(t, 3, latest.Diff.Added["id"].Present)

	byVersion, err := reg.GetByVersion(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, latest.Version, byVersion.Version)

	require.NoError(t, reg.MarkPromoted(ctx, 1))
	promoted, err := reg.GetByVersion(ctx, 1)
	require.NoError(t, err)
	require.True(t, promoted.PendingPromotion)
	require.NotNil(t, promoted.PromotedAt)

	require.NoError(t, reg.HealthCheck(ctx))
}

func TestRegistry_CreateNewVersion_AllocatesSequentialVersions(t *testing.T) {
	reg, cleanup := setupPostgresContainer(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec, err := reg.CreateNewVersion(ctx, model.Schema{}, model.Diff{}, "job", nil, nil)
		require.NoError(t, err)
		require.Equal(t, i+1, rec.Version)
	}
}
