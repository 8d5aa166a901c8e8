package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"io"
	"os"
	"path/filepath"
	"strings"
	"video-pipeline/dto"
	"video-pipeline/entities"
	"video-pipeline/pkg/layout"
	"video-pipeline/repository"
)

type IngestRequest struct {
	Title       string
	Description string
	Category    string
	// File is the upload to store under the source directory.
	File string
}

type VideoService interface {
	Ingest(ctx context.Context, req IngestRequest) (*entities.Video, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Status(ctx context.Context, id uuid.UUID) (*dto.VideoStatus, error)
}

type videoService struct {
	repo      repository.VideoRepository
	layout    *layout.Layout
	sourceDir string
	cleaner   *Cleaner
}

func NewVideoService(repo repository.VideoRepository, l *layout.Layout, sourceDir string, cleaner *Cleaner) VideoService {
	return &videoService{
		repo:      repo,
		layout:    l,
		sourceDir: sourceDir,
		cleaner:   cleaner,
	}
}

// Ingest stores the upload and creates its video record. The record, its
// move to processing and its outbox entry commit together; when the
// transaction fails the stored upload is removed again.
func (s *videoService) Ingest(ctx context.Context, req IngestRequest) (*entities.Video, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, errors.New("title is required")
	}

	id := uuid.New()
	rel := filepath.ToSlash(filepath.Join(s.sourceDir, id.String()+strings.ToLower(filepath.Ext(req.File))))
	dst := filepath.Join(s.layout.Root(), rel)
	if err := s.layout.EnsureDir(filepath.Dir(dst)); err != nil {
		return nil, err
	}
	if err := copyFile(req.File, dst); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	video := &entities.Video{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		SourcePath:  rel,
	}
	if err := s.repo.CreateWithOutbox(ctx, video); err != nil {
		if rmErr := os.Remove(dst); rmErr != nil {
			zerolog.Ctx(ctx).Warn().Err(rmErr).Str("path", dst).Msg("failed to remove stored upload")
		}
		return nil, err
	}

	zerolog.Ctx(ctx).Info().Str("video_id", id.String()).Str("source_path", rel).Msg("video created")
	return video, nil
}

// Delete removes the record, then its files. Cleanup problems are logged
// and never fail the deletion.
func (s *videoService) Delete(ctx context.Context, id uuid.UUID) error {
	video, err := s.repo.DeleteVideo(ctx, id)
	if err != nil {
		return err
	}

	if failure := s.cleaner.Remove(ctx, video); failure != nil {
		zerolog.Ctx(ctx).Warn().Err(failure).Str("video_id", id.String()).Msg("cleanup incomplete")
	}
	zerolog.Ctx(ctx).Info().Str("video_id", id.String()).Msg("video deleted")
	return nil
}

func (s *videoService) Status(ctx context.Context, id uuid.UUID) (*dto.VideoStatus, error) {
	video, err := s.repo.FindVideoById(ctx, id)
	if err != nil {
		return nil, err
	}

	status := &dto.VideoStatus{
		Id:               video.ID,
		Title:            video.Title,
		Description:      video.Description,
		Category:         video.Category,
		ConversionStatus: video.ConversionStatus.String(),
		ErrorMessage:     video.ErrorMessage,
		CreatedAt:        video.CreatedAt,
	}
	if video.ThumbnailPath != nil {
		url := "/" + strings.TrimPrefix(filepath.ToSlash(*video.ThumbnailPath), "/")
		status.ThumbnailUrl = &url
	}
	return status, nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", src)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
		}
	}()

	_, err = io.Copy(out, in)
	return err
}
