package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// MinioStorage implements Storage using a MinIO (or any S3-compatible) backend.
type MinioStorage struct {
	client *minio.Client
	bucket string
	log    zerolog.Logger
}

// MinioOptions configures NewMinioStorage.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// NewMinioStorage creates a MinIO client, ensures the bucket exists and returns
// a ready-to-use MinioStorage. Objects stay private at the bucket level; they
// are served through the delivery proxy.
func NewMinioStorage(ctx context.Context, opts MinioOptions, log zerolog.Logger) (*MinioStorage, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	logger := log.With().Str("component", "minio-storage").Logger()

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", opts.Bucket, err)
		}
		logger.Info().Str("bucket", opts.Bucket).Msg("created bucket")
	}

	return &MinioStorage{client: client, bucket: opts.Bucket, log: logger}, nil
}

// Put streams body to MinIO under key. size must be the exact byte count.
// The canned ACL travels as the x-amz-acl header.
func (s *MinioStorage) Put(ctx context.Context, key string, body io.Reader, size int64, contentType, acl string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if acl != "" {
		opts.UserMetadata = map[string]string{"x-amz-acl": acl}
	}
	info, err := s.client.PutObject(ctx, s.bucket, key, body, size, opts)
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	s.log.Debug().Str("key", key).Int64("bytes", info.Size).Str("etag", info.ETag).Msg("object written")
	return nil
}

// GetStream opens key and stats it so headers are known before the first byte is read.
func (s *MinioStorage) GetStream(ctx context.Context, key string) (*Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.translate(key, err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, s.translate(key, err)
	}
	return &Object{
		Body:          obj,
		ContentType:   info.ContentType,
		ContentLength: info.Size,
		LastModified:  info.LastModified,
		ETag:          quoteETag(info.ETag),
	}, nil
}

// Delete removes the object at key from the bucket.
func (s *MinioStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %q: %w", key, err)
	}
	s.log.Debug().Str("key", key).Msg("object removed")
	return nil
}

// Backend implements Storage.
func (s *MinioStorage) Backend() string { return "minio" }

func (s *MinioStorage) translate(key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("get object %q: %w", key, ErrObjectNotFound)
	}
	return fmt.Errorf("get object %q: %w", key, err)
}
