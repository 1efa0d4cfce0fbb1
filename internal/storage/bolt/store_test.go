package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorusys/indigo-proof-of-yield/internal/storage"
)

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", DefaultFile)

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "c/abc", []byte(`{"a":1}`)))
	require.NoError(t, s.Put(ctx, "c/abc", []byte(`{"a":2}`)))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, ok, err := s.Get(ctx, "c/abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(got))

	_, ok, err = s.Get(ctx, "c/missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreClosed(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), DefaultFile))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err = s.Put(context.Background(), "k", []byte("v"))
	assert.ErrorIs(t, err, storage.ErrClosed)
	_, _, err = s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, storage.ErrClosed)
}

func TestPutBatchKeepsExistingKeys(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), DefaultFile))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(ctx, "c/a", []byte("a")))
	require.NoError(t, s.PutBatch(ctx, []storage.Blob{
		{Key: "c/a", Value: []byte("overwrite")},
		{Key: "q/a", Value: []byte("a")},
	}))

	got, ok, err := s.Get(ctx, "c/a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", string(got))

	got, ok, err = s.Get(ctx, "q/a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", string(got))
}
