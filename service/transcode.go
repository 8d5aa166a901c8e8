package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"video-pipeline/constant"
	"video-pipeline/entities"
	"video-pipeline/pkg/encoder"
	"video-pipeline/pkg/layout"
	"video-pipeline/pkg/metrics"
	"video-pipeline/pkg/storage"
	"video-pipeline/repository"
)

// DefaultRenditions is the HLS ladder, in the order it is encoded.
var DefaultRenditions = encoder.Ladder

type Encoder interface {
	Thumbnail(ctx context.Context, src, dst string) error
	Rendition(ctx context.Context, src string, r encoder.Rendition, outDir string) error
}

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeNotFound  Outcome = "not_found"
)

type JobOptions struct {
	Renditions     []encoder.Rendition
	ThumbnailWidth int
	// Mirror is optional. When set, the finished tree is uploaded before
	// the video is marked completed.
	Mirror storage.Mirror
}

// Job turns one processing video into a thumbnail plus an HLS tree.
type Job struct {
	repo           repository.VideoRepository
	layout         *layout.Layout
	encoder        Encoder
	renditions     []encoder.Rendition
	thumbnailWidth int
	mirror         storage.Mirror
}

func NewJob(repo repository.VideoRepository, l *layout.Layout, enc Encoder, opts JobOptions) *Job {
	renditions := opts.Renditions
	if len(renditions) == 0 {
		renditions = DefaultRenditions
	}
	return &Job{
		repo:           repo,
		layout:         l,
		encoder:        enc,
		renditions:     renditions,
		thumbnailWidth: opts.ThumbnailWidth,
		mirror:         opts.Mirror,
	}
}

func (j *Job) Renditions() []encoder.Rendition {
	return j.renditions
}

// Run executes the job for id and records the terminal status. The returned
// error is non-nil only when the outcome itself could not be recorded or
// ctx was cancelled mid-run; in the latter case the record stays processing.
func (j *Job) Run(ctx context.Context, id uuid.UUID) (Outcome, error) {
	log := zerolog.Ctx(ctx).With().Str("video_id", id.String()).Logger()
	ctx = log.WithContext(ctx)

	video, err := j.repo.FindVideoById(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Info().Msg("video no longer exists")
			return OutcomeNotFound, nil
		}
		return "", err
	}
	if video.ConversionStatus != constant.ConversionStatusProcessing {
		log.Info().Str("status", video.ConversionStatus.String()).Msg("video is not processing")
		return OutcomeSkipped, nil
	}

	runErr := j.run(ctx, id, video.SourcePath)
	if runErr != nil && ctx.Err() != nil {
		log.Warn().Err(runErr).Msg("job interrupted, video left processing")
		return "", ctx.Err()
	}

	switch {
	case errors.Is(runErr, repository.ErrNotFound):
		log.Info().Msg("video deleted while transcoding")
		j.discardArtifacts(ctx, id)
		return OutcomeNotFound, nil
	case errors.Is(runErr, repository.ErrTransitionRejected):
		log.Info().Msg("video left processing while transcoding")
		return OutcomeSkipped, nil
	case runErr != nil:
		log.Error().Err(runErr).Msg("transcode failed")
		return j.finish(ctx, id, constant.ConversionStatusFailed, runErr.Error())
	}

	log.Info().Msg("transcode completed")
	return j.finish(ctx, id, constant.ConversionStatusCompleted, "")
}

func (j *Job) finish(ctx context.Context, id uuid.UUID, to constant.ConversionStatus, message string) (Outcome, error) {
	err := j.repo.TransitionStatus(ctx, id, constant.ConversionStatusProcessing, to, message)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		j.discardArtifacts(ctx, id)
		return OutcomeNotFound, nil
	case errors.Is(err, repository.ErrTransitionRejected):
		return OutcomeSkipped, nil
	case err != nil:
		zerolog.Ctx(ctx).Error().Err(err).Str("status", to.String()).Msg("failed to update video status")
		return "", err
	}
	return Outcome(to), nil
}

// discardArtifacts removes what this run wrote for a video that was deleted
// meanwhile. The delete's own cleanup may have run before these files
// existed.
func (j *Job) discardArtifacts(ctx context.Context, id uuid.UUID) {
	if failure := NewCleaner(j.layout, j.mirror).Remove(ctx, &entities.Video{ID: id}); failure != nil {
		zerolog.Ctx(ctx).Warn().Err(failure).Msg("failed to discard artifacts of deleted video")
	}
}

func (j *Job) run(ctx context.Context, id uuid.UUID, sourcePath string) error {
	src, err := j.sourceFile(sourcePath)
	if err != nil {
		return err
	}

	thumbnail, err := j.thumbnail(ctx, id, src)
	if err != nil {
		return err
	}
	if err := j.repo.SetThumbnailPath(ctx, id, thumbnail); err != nil {
		return err
	}

	if err := j.encodeRenditions(ctx, id, src); err != nil {
		return err
	}

	if err := writeMasterManifest(j.layout.MasterManifestPath(id), j.renditions); err != nil {
		return fmt.Errorf("write master manifest: %w", err)
	}

	if j.mirror != nil {
		if err := j.mirrorArtifacts(ctx, id); err != nil {
			return fmt.Errorf("mirror artifacts: %w", err)
		}
	}

	if err := os.RemoveAll(j.layout.StagingRoot(id)); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to remove staging directory")
	}
	return nil
}

// sourceFile resolves a stored source path, relative to the media root or
// absolute inside it.
func (j *Job) sourceFile(sourcePath string) (string, error) {
	src := sourcePath
	if !filepath.IsAbs(src) {
		src = filepath.Join(j.layout.Root(), src)
	}
	if !j.layout.Contains(src) {
		return "", fmt.Errorf("source %q: %w", sourcePath, layout.ErrInvalidPath)
	}
	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("source %q: %w", sourcePath, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("source %q is not a regular file", sourcePath)
	}
	return src, nil
}

// thumbnail extracts a representative frame into staging, checks that it
// decodes, fits it to the configured width and moves it into place. It
// returns the stored path, relative to the media root.
func (j *Job) thumbnail(ctx context.Context, id uuid.UUID, src string) (string, error) {
	staging := j.layout.StagingRoot(id)
	if err := j.layout.EnsureDir(staging); err != nil {
		return "", err
	}
	frame := filepath.Join(staging, "thumbnail.jpg")

	err := j.encoder.Thumbnail(ctx, src, frame)
	recordInvocation("thumbnail", err)
	if err != nil {
		return "", err
	}

	img, err := imaging.Open(frame)
	if err != nil {
		return "", &encoder.EncodeFailure{Command: "thumbnail", Err: fmt.Errorf("decode extracted frame: %w", err)}
	}
	if j.thumbnailWidth > 0 && img.Bounds().Dx() > j.thumbnailWidth {
		img = imaging.Resize(img, j.thumbnailWidth, 0, imaging.Lanczos)
	}

	dst := j.layout.ThumbnailPath(id)
	if err := j.layout.EnsureDir(filepath.Dir(dst)); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+id.String()+"-*.jpg")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if err := imaging.Encode(tmp, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		tmp.Close()
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", err
	}

	zerolog.Ctx(ctx).Debug().Str("path", dst).Msg("thumbnail written")
	return filepath.ToSlash(filepath.Join(layout.ThumbnailDir, filepath.Base(dst))), nil
}

// encodeRenditions encodes each rendition into its staging directory and
// swaps it into place once the encoder has produced a manifest. A previous
// master manifest is removed first so a re-run never advertises a ladder
// that is being rewritten.
func (j *Job) encodeRenditions(ctx context.Context, id uuid.UUID, src string) error {
	if err := os.Remove(j.layout.MasterManifestPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	for _, r := range j.renditions {
		log := zerolog.Ctx(ctx).With().Str("rendition", r.Name).Logger()
		stage := j.layout.StagingDir(id, r.Name)
		if err := os.RemoveAll(stage); err != nil {
			return err
		}
		if err := j.layout.EnsureDir(stage); err != nil {
			return err
		}

		log.Info().Msg("encoding rendition")
		start := time.Now()
		err := j.encoder.Rendition(ctx, src, r, stage)
		recordInvocation("rendition", err)
		if err != nil {
			return err
		}
		if _, err := os.Stat(filepath.Join(stage, layout.ManifestName)); err != nil {
			return &encoder.EncodeFailure{Command: r.Name, Err: fmt.Errorf("encoder produced no manifest: %w", err)}
		}

		final := j.layout.RenditionDir(id, r.Name)
		if err := os.RemoveAll(final); err != nil {
			return err
		}
		if err := os.Rename(stage, final); err != nil {
			return err
		}
		log.Info().Dur("took", time.Since(start)).Msg("rendition encoded")
	}
	return nil
}

func (j *Job) mirrorArtifacts(ctx context.Context, id uuid.UUID) error {
	prefix := layout.HLSDir + "/" + id.String()
	if err := j.mirror.UploadDirectory(ctx, j.layout.VideoDir(id), prefix); err != nil {
		return err
	}
	thumb := j.layout.ThumbnailPath(id)
	return j.mirror.UploadFile(ctx, thumb, storage.ObjectName(layout.ThumbnailDir, filepath.Base(thumb)))
}

func recordInvocation(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		var failure *encoder.EncodeFailure
		if errors.As(err, &failure) && failure.TimedOut {
			result = "timeout"
		}
	}
	metrics.EncoderInvocations.WithLabelValues(kind, result).Inc()
}

// writeMasterManifest writes the master playlist next to a temporary name
// and renames it, so readers see either no master or a complete one.
func writeMasterManifest(path string, renditions []encoder.Rendition) error {
	var contentBuilder strings.Builder
	contentBuilder.WriteString("#EXTM3U\n")
	contentBuilder.WriteString("#EXT-X-VERSION:3\n")

	for _, r := range renditions {
		bandwidth, err := bitsPerSecond(r.MaxBitrate)
		if err != nil {
			return fmt.Errorf("rendition %s: %w", r.Name, err)
		}
		contentBuilder.WriteString(fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d,NAME=%q\n", bandwidth, r.Width, r.Height, r.Name))
		contentBuilder.WriteString(r.Name + "/" + layout.ManifestName + "\n")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".master-*.m3u8")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(contentBuilder.String()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// bitsPerSecond parses ffmpeg style rates such as "1400k" or "5M".
func bitsPerSecond(rate string) (int, error) {
	multiplier := 1
	switch {
	case strings.HasSuffix(rate, "k"), strings.HasSuffix(rate, "K"):
		multiplier = 1000
		rate = rate[:len(rate)-1]
	case strings.HasSuffix(rate, "M"):
		multiplier = 1000 * 1000
		rate = rate[:len(rate)-1]
	}
	n, err := strconv.Atoi(rate)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid bitrate %q", rate)
	}
	return n * multiplier, nil
}
