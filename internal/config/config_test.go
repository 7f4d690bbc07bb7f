package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendMinio, cfg.StorageBackend)
	assert.Equal(t, int64(100<<20), cfg.Media.MaxFileBytes)
	assert.Equal(t, int64(500<<20), cfg.Media.MaxBatchBytes)
	assert.Equal(t, 10, cfg.Media.MaxBatchFiles)
	assert.Equal(t, 5, cfg.Media.UploadConcurrency)
	assert.Equal(t, 1024, cfg.Media.TranscodeMaxDimension)
	assert.Equal(t, 80, cfg.Media.TranscodeQuality)
	assert.Equal(t, time.Hour, cfg.Media.SweepInterval)
	assert.Empty(t, cfg.Media.DefaultACL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", " S3 ")
	t.Setenv("PUBLIC_BASE_URL", "https://cdn.example.com/")
	t.Setenv("MEDIA_MAX_FILE_BYTES", "2048")
	t.Setenv("MEDIA_UPLOAD_CONCURRENCY", "2")
	t.Setenv("MEDIA_DEFAULT_ACL", "public-read")
	t.Setenv("MEDIA_SWEEP_INTERVAL", "0s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendS3, cfg.StorageBackend)
	assert.Equal(t, "https://cdn.example.com", cfg.PublicBaseURL)
	assert.Equal(t, int64(2048), cfg.Media.MaxFileBytes)
	assert.Equal(t, 2, cfg.Media.UploadConcurrency)
	assert.Equal(t, "public-read", cfg.Media.DefaultACL)
	assert.Zero(t, cfg.Media.SweepInterval)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown backend", "STORAGE_BACKEND", "ftp"},
		{"unknown acl", "MEDIA_DEFAULT_ACL", "world-writable"},
		{"zero file limit", "MEDIA_MAX_FILE_BYTES", "0"},
		{"zero concurrency", "MEDIA_UPLOAD_CONCURRENCY", "0"},
		{"quality too high", "MEDIA_TRANSCODE_QUALITY", "101"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestIsProduction(t *testing.T) {
	assert.True(t, (&Config{AppEnv: "production"}).IsProduction())
	assert.False(t, (&Config{AppEnv: "development"}).IsProduction())
}
