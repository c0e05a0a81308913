package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetLatest_EmptyIsNilNil(t *testing.T) {
	r := New()
	rec, err := r.GetLatest(context.Background())
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestRegistry_CreateNewVersion_MonotonicVersions(t *testing.T) {
	r := New()
	ctx := context.Background()

	rec1, err := r.CreateNewVersion(ctx, model.Schema{}, model.Diff{}, "job-1", nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, rec1.Version)

	rec2, err := r.CreateNewVersion(ctx, model.Schema{}, model.Diff{}, "job-2", nil, nil)
	require.NoError(t, err)
	require.Equal(t, 2, rec2.Version)

	latest, err := r.GetLatest(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, latest.Version)
}

func TestRegistry_CreateNewVersion_ConcurrentCallersGetDistinctVersions(t *testing.T) {
	r := New()
	ctx := context.Background()
	const n = 50

	var wg sync.WaitGroup
	seen := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := r.CreateNewVersion(ctx, model.Schema{}, model.Diff{}, "job", nil, nil)
			require.NoError(t, err)
			seen <- rec.Version
		}()
	}
	wg.Wait()
	close(seen)

	versions := make(map[int]bool)
	for v := range seen {
		require.False(t, versions[v], "duplicate version allocated: %d", v)
		versions[v] = true
	}
	require.Len(t, versions, n)
}

func TestRegistry_SampleDocsCapped(t *testing.T) {
	r := New()
	docs := make([]model.Document, 10)
	for i := range docs {
		docs[i] = model.Document{"i": i}
	}
	rec, err := r.CreateNewVersion(context.Background(), model.Schema{}, model.Diff{}, "job", docs, nil)
	require.NoError(t, err)
	require.Len(t, rec.SampleDocs, model.MaxSampleDocs)
}

func TestRegistry_MarkPromoted(t *testing.T) {
	r := New()
	ctx := context.Background()
	rec, err := r.CreateNewVersion(ctx, model.Schema{}, model.Diff{}, "job", nil, nil)
	require.NoError(t, err)
	require.False(t, rec.PendingPromotion)

	require.NoError(t, r.MarkPromoted(ctx, rec.Version))
	got, err := r.GetByVersion(ctx, rec.Version)
	require.NoError(t, err)
	require.True(t, got.PendingPromotion)
	require.NotNil(t, got.PromotedAt)
}

func TestRegistry_Equal(t *testing.T) {
	r := New()
	a := model.Schema{Properties: map[string]model.PropertyDef{"id": {Type: model.NewTypes(model.TypeInteger)}}}
	b := model.Schema{Properties: map[string]model.PropertyDef{"id": {Type: model.NewTypes(model.TypeInteger)}}}
	require.True(t, r.Equal(a, b))

	c := model.Schema{Properties: map[string]model.PropertyDef{"id": {Type: model.NewTypes(model.TypeString)}}}
	require.False(t, r.Equal(a, c))
}
