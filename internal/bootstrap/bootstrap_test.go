package bootstrap

import (
	"bytes"
	"context"
	"testing"

	"github.com/bandsite/service/internal/config"
	"github.com/bandsite/service/internal/media"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&config.Config{AppEnv: "production", LogLevel: "warn"}, &buf)

	log.Info().Msg("hidden")
	log.Warn().Str("key", "uploads/a").Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"shown"`)
	assert.Contains(t, buf.String(), `"service":"site"`)
}

func TestNewLogger_BadLevelFallsBackToInfo(t *testing.T) {
	log := NewLogger(&config.Config{AppEnv: "production", LogLevel: "chatty"}, &bytes.Buffer{})
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestNewStorage_Local(t *testing.T) {
	cfg := &config.Config{StorageBackend: config.BackendLocal, StorageLocalPath: t.TempDir()}
	store, err := NewStorage(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "local", store.Backend())
}

func TestNewStorage_Unknown(t *testing.T) {
	_, err := NewStorage(context.Background(), &config.Config{StorageBackend: "ftp"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestMediaConfig(t *testing.T) {
	cfg := &config.Config{PublicBaseURL: "https://example.com"}
	cfg.Media.MaxFileBytes = 10
	cfg.Media.MaxBatchFiles = 3
	cfg.Media.DefaultACL = "public-read"

	got := MediaConfig(cfg)
	assert.Equal(t, int64(10), got.MaxFileBytes)
	assert.Equal(t, 3, got.MaxBatchFiles)
	assert.Equal(t, media.ACLPublicRead, got.DefaultACL)
	assert.Equal(t, "https://example.com", got.PublicBaseURL)
}
