package multivec

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelCatalogRegistry(t *testing.T) {
	ctx := context.Background()
	m := trainedTestModel(t)

	catalog := NewModelCatalog()
	require.Zero(t, catalog.Len())

	catalog.Add("beta", m)
	catalog.Add("alpha", m)
	assert.Equal(t, 2, catalog.Len())
	assert.Equal(t, []string{"alpha", "beta"}, catalog.IDs())

	got, err := catalog.Get(ctx, "alpha")
	require.NoError(t, err)
	require.Same(t, m, got)

	catalog.Remove("alpha")
	assert.Equal(t, []string{"beta"}, catalog.IDs())

	_, err = catalog.Get(ctx, "alpha")
	require.ErrorIs(t, err, ErrModelNotFound)

	_, err = catalog.Get(ctx, "")
	require.ErrorIs(t, err, ErrModelNotFound)

	// Adding with an empty ID or a nil model is ignored.
	catalog.Add("", m)
	catalog.Add("ghost", nil)
	assert.Equal(t, []string{"beta"}, catalog.IDs())
}

func TestModelCatalogLoadDir(t *testing.T) {
	ctx := context.Background()
	m := trainedTestModel(t)

	dir := t.TempDir()
	require.NoError(t, m.Save(filepath.Join(dir, "news-en.mvec")))
	require.NoError(t, m.Save(filepath.Join(dir, "news-da.mvec")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a model"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive.mvec"), 0o755))

	catalog := NewModelCatalog()
	loaded, err := catalog.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)
	assert.Equal(t, []string{"news-da", "news-en"}, catalog.IDs())

	got, err := catalog.Get(ctx, "news-en")
	require.NoError(t, err)
	assert.Equal(t, m.VocabSize(), got.VocabSize())
}

func TestModelCatalogLoadDirErrors(t *testing.T) {
	catalog := NewModelCatalog()

	_, err := catalog.LoadDir(filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, os.ErrNotExist)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.mvec"), []byte("XXXX"), 0o644))
	_, err = catalog.LoadDir(dir)
	require.Error(t, err)
}

func TestModelCatalogStoreFallback(t *testing.T) {
	ctx := context.Background()
	modelID := "model-fallback"

	m := trainedTestModel(t)
	store := NewModelStore(&LocalBlobStore{Root: t.TempDir()})
	_, err := store.Publish(ctx, modelID, m)
	require.NoError(t, err)

	catalog := NewModelCatalogWithStore(store)

	fetched, err := catalog.Get(ctx, modelID)
	require.NoError(t, err)
	assert.Equal(t, m.VocabSize(), fetched.VocabSize())

	// A second Get must hit the cache, not the store.
	again, err := catalog.Get(ctx, modelID)
	require.NoError(t, err)
	require.Same(t, fetched, again)

	_, err = catalog.Get(ctx, "never-published")
	require.ErrorIs(t, err, ErrModelNotFound)
}
