package blobstore_test

import (
	"path/filepath"
	"testing"

	"github.com/book-expert/speakctl/internal/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := blobstore.New(t.TempDir())
	require.NoError(t, err)

	err = store.Put("abc123", []byte(`{"hello":"world"}`))
	require.NoError(t, err)

	data, err := store.Get("abc123")
	require.NoError(t, err)
	assert.Equal(t, `{"hello":"world"}`, string(data))
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	store, err := blobstore.New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get("missing")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestPutIsAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := blobstore.New(dir)
	require.NoError(t, err)

	require.NoError(t, store.Put("k", []byte("v1")))
	require.NoError(t, store.Put("k", []byte("v2")))

	entries, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, entries)

	data, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	// No stray temp files should survive a successful Put.
	matches, err := filepath.Glob(filepath.Join(dir, ".*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestDeleteAndClear(t *testing.T) {
	t.Parallel()

	store, err := blobstore.New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put("a", []byte("1")))
	require.NoError(t, store.Put("b", []byte("2")))

	require.NoError(t, store.Delete("a"))

	keys, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)

	require.NoError(t, store.Clear())

	keys, err = store.List()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestDeleteMissingIsNotError(t *testing.T) {
	t.Parallel()

	store, err := blobstore.New(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, store.Delete("never-existed"))
}
