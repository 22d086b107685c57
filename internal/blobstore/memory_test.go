package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, "scan-results/scan_1/result.json", []byte(`{"a":1}`), "application/json"))

	data, err := store.Get(ctx, "scan-results/scan_1/result.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "scan-results/nope/result.json")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, "k", []byte("v1"), ""))
	require.NoError(t, store.Put(ctx, "k", []byte("v2"), ""))

	data, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, "k", []byte("abc"), ""))

	data, err := store.Get(ctx, "k")
	require.NoError(t, err)
	data[0] = 'x'

	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}
