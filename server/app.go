package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"io"
	"os"
	"os/signal"
	"syscall"
	"video-pipeline/config"
	"video-pipeline/constant"
	"video-pipeline/pkg/encoder"
	"video-pipeline/pkg/layout"
	"video-pipeline/pkg/lock"
	"video-pipeline/pkg/storage"
	"video-pipeline/repository"
	"video-pipeline/service"
)

// App holds the dependencies shared by every command.
type App struct {
	Config  *config.Config
	Repo    repository.VideoRepository
	Layout  *layout.Layout
	Mirror  storage.Mirror
	Videos  service.VideoService
	Job     *service.Job
	Redis   *redis.Client
	closers []io.Closer
}

// NewContext returns the root context carrying the logger, cancelled on
// SIGINT or SIGTERM.
func NewContext(cfg *config.Config) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	l, err := layout.New(cfg.Media.Root)
	if err != nil {
		return nil, err
	}

	db, err := config.NewDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	app := &App{
		Config: cfg,
		Repo:   repository.NewRepo(db),
		Layout: l,
	}
	if sqlDB, err := db.DB(); err == nil {
		app.closers = append(app.closers, sqlDB)
	}

	minioClient, err := config.NewMinio(ctx, cfg.MinIO)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("connect minio: %w", err)
	}
	if minioClient != nil {
		app.Mirror = storage.NewMinioMirror(minioClient, cfg.MinIO.Bucket)
	}

	app.Redis, err = config.NewRedis(ctx, cfg.Redis)
	if err != nil {
		app.Close()
		return nil, err
	}
	if app.Redis != nil {
		app.closers = append(app.closers, app.Redis)
	}

	ffmpeg := encoder.New(encoder.Settings{
		Binary:         cfg.Encoder.Binary,
		Timeout:        cfg.Encoder.Timeout,
		Preset:         cfg.Encoder.Preset,
		CRF:            cfg.Encoder.CRF,
		GOP:            cfg.Encoder.GOP,
		SegmentSeconds: cfg.Encoder.SegmentSeconds,
		AudioCodec:     cfg.Encoder.AudioCodec,
	})
	app.Job = service.NewJob(app.Repo, l, ffmpeg, service.JobOptions{
		Renditions:     service.DefaultRenditions,
		ThumbnailWidth: cfg.Thumbnail.Width,
		Mirror:         app.Mirror,
	})
	app.Videos = service.NewVideoService(app.Repo, l, cfg.Media.SourceDir, service.NewCleaner(l, app.Mirror))

	zerolog.Ctx(ctx).Info().
		Str("media_root", l.Root()).
		Str("database", cfg.Database.Driver).
		Str("queue", cfg.Queue.Driver).
		Bool("mirror", app.Mirror != nil).
		Bool("redis_lock", app.Redis != nil).
		Msg("application initialised")
	return app, nil
}

// Locker returns the Redis lock when Redis is configured, otherwise an
// in-process one.
func (a *App) Locker() lock.Locker {
	if a.Redis != nil {
		return lock.NewRedis(a.Redis, a.Config.Redis.LockTTL)
	}
	return lock.NewLocal()
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Log to standard output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
