package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	payload := []byte("some audio bytes")
	err := store.Put(ctx, "tracks/song.wav", bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)

	rc, err := store.Open(ctx, "tracks/song.wav")
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestLocalStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	require.NoError(t, store.Put(ctx, "blob", strings.NewReader("first"), -1))
	require.NoError(t, store.Put(ctx, "blob", strings.NewReader("second"), -1))

	rc, err := store.Open(ctx, "blob")
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestLocalStoreNotFound(t *testing.T) {
	store := NewLocalStore(t.TempDir())

	_, err := store.Open(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalStoreEscapingName(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	_, err := store.Open(ctx, "../outside")
	require.Error(t, err)

	err = store.Put(ctx, "../outside", strings.NewReader("x"), -1)
	require.Error(t, err)
}

func TestLocalStoreCanceledContext(t *testing.T) {
	store := NewLocalStore(t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Open(ctx, "blob")
	require.ErrorIs(t, err, context.Canceled)

	err = store.Put(ctx, "blob", strings.NewReader("x"), -1)
	require.ErrorIs(t, err, context.Canceled)
}
