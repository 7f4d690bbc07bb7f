package storage

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeMinio(t *testing.T, logs *bytes.Buffer) (*fakeS3, *MinioStorage) {
	t.Helper()
	fake := &fakeS3{puts: map[string]http.Header{}, objects: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := NewMinioStorage(context.Background(), MinioOptions{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "test",
		SecretKey: "test",
		Bucket:    "media",
		Region:    "us-east-1",
	}, zerolog.New(logs).Level(zerolog.DebugLevel))
	require.NoError(t, err)
	return fake, s
}

func TestMinioStorage_PutAndDeleteAreLogged(t *testing.T) {
	var logs bytes.Buffer
	fake, s := newFakeMinio(t, &logs)
	ctx := context.Background()
	key := "uploads/2026/03/med_x-poster.webp"

	require.NoError(t, s.Put(ctx, key, strings.NewReader("hello"), 5, "image/webp", "public-read"))
	require.Contains(t, fake.puts, key)
	assert.Equal(t, "public-read", fake.puts[key].Get("X-Amz-Acl"))

	require.NoError(t, s.Delete(ctx, key))
	assert.Equal(t, []string{key}, fake.deletes)

	out := logs.String()
	assert.Contains(t, out, `"component":"minio-storage"`)
	assert.Contains(t, out, `"message":"object written"`)
	assert.Contains(t, out, `"message":"object removed"`)
	assert.Contains(t, out, `"key":"`+key+`"`)
	assert.Equal(t, "minio", s.Backend())
}
