// Package storage defines the interface for object storage operations.
// Swap implementations by changing the concrete type injected at startup:
// MinIO works with any S3-compatible provider, S3 uses the AWS SDK, and the
// local backend keeps objects on disk for development.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// ErrObjectNotFound is returned when no object exists under the requested key.
var ErrObjectNotFound = errors.New("object not found")

// Object is an open byte stream plus the metadata the backend reported for it.
// The caller must Close Body.
type Object struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64 // -1 when unknown
	LastModified  time.Time
	ETag          string // quoted, ready for the ETag header; empty when unknown
}

// Storage is the interface for writing, streaming and removing objects.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Put writes size bytes from body under key with the given content type and canned ACL.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType, acl string) error
	// GetStream opens key for reading. It returns ErrObjectNotFound when the key is absent.
	GetStream(ctx context.Context, key string) (*Object, error)
	// Delete removes the object at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Backend names the implementation, used as a metrics label.
	Backend() string
}

// quoteETag returns etag wrapped in double quotes as required by RFC 9110.
func quoteETag(etag string) string {
	etag = strings.TrimSpace(etag)
	if etag == "" {
		return ""
	}
	if strings.HasPrefix(etag, `"`) || strings.HasPrefix(etag, `W/"`) {
		return etag
	}
	return `"` + etag + `"`
}
