package storage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestLocalStorage_PutGetDelete(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()
	data := []byte("hello media")

	require.NoError(t, s.Put(ctx, "uploads/2026/10/a.txt", bytes.NewReader(data), int64(len(data)), "text/plain", "private"))

	obj, err := s.GetStream(ctx, "uploads/2026/10/a.txt")
	require.NoError(t, err)
	got, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	require.NoError(t, obj.Body.Close())

	assert.Equal(t, data, got)
	assert.Equal(t, "text/plain", obj.ContentType)
	assert.Equal(t, int64(len(data)), obj.ContentLength)
	assert.False(t, obj.LastModified.IsZero())
	assert.Regexp(t, `^"[0-9a-f]{32}"$`, obj.ETag)

	require.NoError(t, s.Delete(ctx, "uploads/2026/10/a.txt"))
	_, err = s.GetStream(ctx, "uploads/2026/10/a.txt")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	// deleting twice is fine
	assert.NoError(t, s.Delete(ctx, "uploads/2026/10/a.txt"))
}

func TestLocalStorage_MissingKey(t *testing.T) {
	s := newLocal(t)
	_, err := s.GetStream(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalStorage_RejectsTraversal(t *testing.T) {
	s := newLocal(t)
	err := s.Put(context.Background(), "../escape", bytes.NewReader([]byte("x")), 1, "text/plain", "")
	assert.Error(t, err)
	_, err = s.GetStream(context.Background(), "../../etc/passwd")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalStorage_SizeMismatchLeavesNothing(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()
	err := s.Put(ctx, "short", bytes.NewReader([]byte("abc")), 10, "text/plain", "")
	require.Error(t, err)
	_, err = s.GetStream(ctx, "short")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalStorage_CanceledPut(t *testing.T) {
	s := newLocal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Put(ctx, "canceled", bytes.NewReader([]byte("abc")), 3, "text/plain", "")
	require.ErrorIs(t, err, context.Canceled)
	_, err = s.GetStream(context.Background(), "canceled")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestQuoteETag(t *testing.T) {
	assert.Equal(t, `"abc"`, quoteETag("abc"))
	assert.Equal(t, `"abc"`, quoteETag(`"abc"`))
	assert.Equal(t, `W/"abc"`, quoteETag(`W/"abc"`))
	assert.Equal(t, "", quoteETag("  "))
}
