package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// metaSuffix names the sidecar file that keeps content type and ETag next to each object.
const metaSuffix = ".meta.json"

type localMeta struct {
	ContentType string `json:"contentType"`
	ETag        string `json:"etag"`
	ACL         string `json:"acl,omitempty"`
}

// LocalStorage keeps objects on the local filesystem. Intended for development
// and single-node deployments.
type LocalStorage struct {
	basePath string
	log      zerolog.Logger
}

// NewLocalStorage creates basePath if needed and returns a LocalStorage rooted there.
func NewLocalStorage(basePath string, log zerolog.Logger) (*LocalStorage, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("local storage path is empty")
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve local storage path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create local storage directory: %w", err)
	}
	logger := log.With().Str("component", "local-storage").Logger()
	logger.Info().Str("path", abs).Msg("local storage initialized")
	return &LocalStorage{basePath: abs, log: logger}, nil
}

// objectPath resolves key inside basePath, rejecting traversal outside of it.
func (l *LocalStorage) objectPath(key string) (string, error) {
	if key == "" || strings.HasSuffix(key, metaSuffix) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	p := filepath.Join(l.basePath, filepath.FromSlash(key))
	if !strings.HasPrefix(p, l.basePath+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return p, nil
}

// Put writes body to a temp file and renames it into place so readers never
// observe a partial object.
func (l *LocalStorage) Put(ctx context.Context, key string, body io.Reader, size int64, contentType, acl string) error {
	p, err := l.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	hash := md5.New()
	written, err := io.Copy(io.MultiWriter(tmp, hash), &ctxReader{ctx: ctx, r: body})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write object %q: %w", key, err)
	}
	if size >= 0 && written != size {
		return fmt.Errorf("write object %q: wrote %d bytes, expected %d", key, written, size)
	}

	meta, err := json.Marshal(localMeta{
		ContentType: contentType,
		ETag:        quoteETag(hex.EncodeToString(hash.Sum(nil))),
		ACL:         acl,
	})
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.WriteFile(p+metaSuffix, meta, 0o644); err != nil {
		return fmt.Errorf("write metadata %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("commit object %q: %w", key, err)
	}

	l.log.Debug().Str("key", key).Int64("bytes", written).Msg("object written")
	return nil
}

// GetStream opens the file at key.
func (l *LocalStorage) GetStream(ctx context.Context, key string) (*Object, error) {
	p, err := l.objectPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("get object %q: %w", key, ErrObjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open object %q: %w", key, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat object %q: %w", key, err)
	}

	obj := &Object{
		Body:          f,
		ContentType:   "application/octet-stream",
		ContentLength: info.Size(),
		LastModified:  info.ModTime().UTC(),
	}
	if raw, err := os.ReadFile(p + metaSuffix); err == nil {
		var meta localMeta
		if err := json.Unmarshal(raw, &meta); err == nil {
			if meta.ContentType != "" {
				obj.ContentType = meta.ContentType
			}
			obj.ETag = meta.ETag
		}
	}
	return obj, nil
}

// Delete removes the object and its sidecar.
func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	p, err := l.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove object %q: %w", key, err)
	}
	if err := os.Remove(p + metaSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove metadata %q: %w", key, err)
	}
	return nil
}

// Backend implements Storage.
func (l *LocalStorage) Backend() string { return "local" }

// ctxReader stops a copy as soon as ctx is canceled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
