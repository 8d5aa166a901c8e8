package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/rs/zerolog"
	"os"
	"path/filepath"
	"strings"
	"video-pipeline/entities"
	"video-pipeline/pkg/layout"
	"video-pipeline/pkg/storage"
)

// CleanupFailure lists the artifacts that could not be removed after a
// video was deleted. It is logged and discarded by callers.
type CleanupFailure struct {
	VideoId string
	Errs    []error
}

func (e *CleanupFailure) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("cleanup of video %s incomplete: %s", e.VideoId, strings.Join(msgs, "; "))
}

func (e *CleanupFailure) Unwrap() []error {
	return e.Errs
}

type Cleaner struct {
	layout *layout.Layout
	mirror storage.Mirror
}

func NewCleaner(l *layout.Layout, mirror storage.Mirror) *Cleaner {
	return &Cleaner{layout: l, mirror: mirror}
}

// Remove deletes the source file, the HLS tree and the thumbnail of a
// deleted video, plus mirrored objects when a mirror is configured.
// Missing files are not failures.
func (c *Cleaner) Remove(ctx context.Context, video *entities.Video) *CleanupFailure {
	var errs []error
	id := video.ID

	if video.SourcePath != "" {
		src := video.SourcePath
		if !filepath.IsAbs(src) {
			src = filepath.Join(c.layout.Root(), src)
		}
		if !c.layout.Contains(src) {
			errs = append(errs, fmt.Errorf("source %q: %w", video.SourcePath, layout.ErrInvalidPath))
		} else if err := os.Remove(src); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}

	if err := os.RemoveAll(c.layout.VideoDir(id)); err != nil {
		errs = append(errs, err)
	}
	if err := os.Remove(c.layout.ThumbnailPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}

	if c.mirror != nil {
		if err := c.mirror.RemovePrefix(ctx, layout.HLSDir+"/"+id.String()+"/"); err != nil {
			errs = append(errs, fmt.Errorf("mirror: %w", err))
		}
		if err := c.mirror.RemovePrefix(ctx, storage.ObjectName(layout.ThumbnailDir, id.String()+".jpg")); err != nil {
			errs = append(errs, fmt.Errorf("mirror: %w", err))
		}
	}

	if len(errs) == 0 {
		zerolog.Ctx(ctx).Info().Str("video_id", id.String()).Msg("artifacts removed")
		return nil
	}
	return &CleanupFailure{VideoId: id.String(), Errs: errs}
}
