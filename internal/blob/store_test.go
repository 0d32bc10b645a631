package blob

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Put(ctx, "raw", "b/raw/a.png", []byte("a")))
	require.NoError(t, s.Put(ctx, "raw", "b/raw/b.png", []byte("b")))
	require.NoError(t, s.Put(ctx, "raw", "other/raw/c.png", []byte("c")))
	require.NoError(t, s.Put(ctx, "archive", "b/compressed/a.png", []byte("z")))

	keys, err := s.List(ctx, "raw", "b/raw/")
	require.NoError(t, err)
	assert.Equal(t, []string{"b/raw/a.png", "b/raw/b.png"}, keys)

	data, err := s.Get("archive", "b/compressed/a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("z"), data)

	require.NoError(t, s.Delete(ctx, "raw", "b/raw/a.png"))
	require.NoError(t, s.Delete(ctx, "raw", "missing"))
	_, err = s.Get("raw", "b/raw/a.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeletePrefix(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, k := range []string{"Batch 1/raw/a", "Batch 1/raw/b", "Batch 1/compressed/a", "Batch 2/raw/a"} {
		require.NoError(t, s.Put(ctx, "raw", k, []byte(k)))
	}

	n, err := DeletePrefix(ctx, s, "raw", "Batch 1/raw/")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	keys, err := s.List(ctx, "raw", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Batch 1/compressed/a", "Batch 2/raw/a"}, keys)
}

type failingDeletes struct {
	*MemoryStore
	fail map[string]bool
}

func (f failingDeletes) Delete(ctx context.Context, bucket, key string) error {
	if f.fail[key] {
		return errors.New("permission denied")
	}
	return f.MemoryStore.Delete(ctx, bucket, key)
}

func TestDeletePrefixContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	for _, k := range []string{"p/a", "p/b", "p/c"} {
		require.NoError(t, mem.Put(ctx, "raw", k, nil))
	}
	s := failingDeletes{MemoryStore: mem, fail: map[string]bool{"p/b": true}}

	n, err := DeletePrefix(ctx, s, "raw", "p/")
	assert.Equal(t, 2, n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "raw/p/b")

	keys, _ := mem.List(ctx, "raw", "p/")
	assert.Equal(t, []string{"p/b"}, keys)
}

func TestURI(t *testing.T) {
	assert.Equal(t, "gs://raw/Batch 1/raw/a.png", URI("raw", "Batch 1/raw/a.png"))
}
