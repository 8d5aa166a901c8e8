// Package testsupport builds throwaway dependencies for package tests.
package testsupport

import (
	"context"
	"github.com/rs/zerolog"
	"gorm.io/gorm/logger"
	"os"
	"path/filepath"
	"testing"
	"video-pipeline/config"
	"video-pipeline/repository"
)

// NewRepo returns a migrated repository backed by a SQLite file in a
// temporary directory.
func NewRepo(t *testing.T) repository.VideoRepository {
	t.Helper()
	db, err := config.OpenSQLite(filepath.Join(t.TempDir(), "videos.db"), logger.Silent)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	r := repository.NewRepo(db)
	if err := r.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return r
}

// Context carries a logger writing through t.Log.
func Context(t *testing.T) context.Context {
	t.Helper()
	log := zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.WarnLevel)
	if testing.Verbose() {
		log = log.Level(zerolog.DebugLevel)
	}
	return log.WithContext(context.Background())
}

// MediaRoot returns an absolute, symlink-free temporary media root.
func MediaRoot(t *testing.T) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	return root
}
