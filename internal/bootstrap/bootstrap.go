// Package bootstrap wires configuration into the long-lived dependencies
// shared by the API server and the mediactl tool.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bandsite/service/internal/config"
	"github.com/bandsite/service/internal/db"
	"github.com/bandsite/service/internal/media"
	"github.com/bandsite/service/internal/storage"
	"github.com/bandsite/service/internal/transcode"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// App holds the wired dependencies.
type App struct {
	Config  *config.Config
	Log     zerolog.Logger
	Pool    *pgxpool.Pool
	Store   storage.Storage
	Repo    *media.PostgresRepository
	Media   *media.Service
	Sweeper *media.Sweeper
}

// NewLogger builds the process logger. Development gets console output,
// production gets JSON.
func NewLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if !cfg.IsProduction() {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "site").Logger()
}

// NewStorage opens the configured object store backend, instrumented with metrics.
func NewStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storage.Storage, error) {
	var (
		store storage.Storage
		err   error
	)
	switch cfg.StorageBackend {
	case config.BackendMinio:
		store, err = storage.NewMinioStorage(ctx, storage.MinioOptions{
			Endpoint:  cfg.StorageEndpoint,
			AccessKey: cfg.StorageAccessKey,
			SecretKey: cfg.StorageSecretKey,
			Bucket:    cfg.StorageBucket,
			Region:    cfg.StorageRegion,
			UseSSL:    cfg.StorageUseSSL,
		}, log)
	case config.BackendS3:
		store, err = storage.NewS3Storage(ctx, storage.S3Options{
			Endpoint:     cfg.StorageEndpoint,
			Region:       cfg.StorageRegion,
			Bucket:       cfg.StorageBucket,
			AccessKey:    cfg.StorageAccessKey,
			SecretKey:    cfg.StorageSecretKey,
			UsePathStyle: cfg.StorageUsePathStyle,
		}, log)
	case config.BackendLocal:
		store, err = storage.NewLocalStorage(cfg.StorageLocalPath, log)
	default:
		err = fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s storage: %w", cfg.StorageBackend, err)
	}
	return storage.WithMetrics(store), nil
}

// MediaConfig translates the env configuration into service limits.
func MediaConfig(cfg *config.Config) media.Config {
	return media.Config{
		MaxFileBytes:      cfg.Media.MaxFileBytes,
		MaxBatchBytes:     cfg.Media.MaxBatchBytes,
		MaxBatchFiles:     cfg.Media.MaxBatchFiles,
		UploadConcurrency: cfg.Media.UploadConcurrency,
		DefaultACL:        media.ACL(cfg.Media.DefaultACL),
		PublicBaseURL:     cfg.PublicBaseURL,
	}
}

// New connects to the database, applies migrations, opens the object store
// and wires repository → service. Close releases what New opened.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	pool, err := db.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := db.Migrate(cfg.DatabaseURL, log); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	store, err := NewStorage(ctx, cfg, log)
	if err != nil {
		pool.Close()
		return nil, err
	}

	var transcoder media.Transcoder
	if cfg.Media.TranscodeImages {
		transcoder = transcode.New(transcode.Options{
			MaxDimension: cfg.Media.TranscodeMaxDimension,
			Quality:      cfg.Media.TranscodeQuality,
		})
	}

	repo := media.NewRepository(pool)
	svc := media.NewService(repo, store, transcoder, MediaConfig(cfg), log)
	sweeper := media.NewSweeper(repo, store, media.SweeperConfig{
		Interval: cfg.Media.SweepInterval,
		Grace:    cfg.Media.SweepGrace,
		Batch:    cfg.Media.SweepBatch,
	}, log)

	return &App{
		Config:  cfg,
		Log:     log,
		Pool:    pool,
		Store:   store,
		Repo:    repo,
		Media:   svc,
		Sweeper: sweeper,
	}, nil
}

// Close releases the database pool.
func (a *App) Close() {
	a.Pool.Close()
}
