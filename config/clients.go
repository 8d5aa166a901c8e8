package config

import (
	"context"
	"database/sql"
	"fmt"
	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"time"
	"video-pipeline/constant"
)

// NewDB opens the video database for the configured driver.
func NewDB(cfg *Config) (*gorm.DB, error) {
	level := logger.Warn
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		level = logger.Info
	}

	switch constant.DatabaseDriver(cfg.Database.Driver) {
	case constant.DatabaseDriverSQLite:
		return OpenSQLite(cfg.Database.SQLitePath, level)
	default:
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		return gorm.Open(postgres.New(postgres.Config{
			Conn: db}),
			&gorm.Config{
				Logger:  logger.Default.LogMode(level),
				NowFunc: utcNow,
			},
		)
	}
}

// OpenSQLite opens a single-connection SQLite database. One connection
// keeps writers serialized instead of failing with SQLITE_BUSY.
func OpenSQLite(path string, level logger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=on&_busy_timeout=5000"), &gorm.Config{
		Logger:  logger.Default.LogMode(level),
		NowFunc: utcNow,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// NewRedis returns nil when no address is configured.
func NewRedis(ctx context.Context, cfg Redis) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	zerolog.Ctx(ctx).Info().Str("addr", cfg.Addr).Msg("Successfully connected to Redis")
	return client, nil
}

// NewMinio returns nil when mirroring is disabled.
func NewMinio(ctx context.Context, cfg MinIO) (*minio.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	client, err := minio.New(cfg.URL, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessID, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, err
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return client, nil
}
