package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"time"
	"video-pipeline/pkg/metrics"
	"video-pipeline/repository"
)

// Sweeper re-triggers videos that have sat in processing past staleAfter
// with no work item queued, which is what a crashed worker leaves behind.
// It never changes a video's status.
type Sweeper struct {
	repo       repository.VideoRepository
	staleAfter time.Duration
	now        func() time.Time
}

func NewSweeper(repo repository.VideoRepository, staleAfter time.Duration) *Sweeper {
	return &Sweeper{
		repo:       repo,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.staleAfter)
	videos, err := s.repo.FindStaleProcessing(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.StuckVideos.Set(float64(len(videos)))

	var errs []error
	requeued := 0
	for _, video := range videos {
		zerolog.Ctx(ctx).Warn().
			Str("video_id", video.ID.String()).
			Time("updated_at", video.UpdatedAt).
			Msg("video stuck in processing, re-triggering")
		if err := s.repo.AddOutbox(ctx, video.ID); err != nil {
			errs = append(errs, fmt.Errorf("requeue %s: %w", video.ID, err))
			continue
		}
		requeued++
	}
	return requeued, errors.Join(errs...)
}

// Schedule runs Sweep on the cron spec until ctx is done.
func (s *Sweeper) Schedule(ctx context.Context, spec string) error {
	log := zerolog.Ctx(ctx)
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		n, err := s.Sweep(ctx)
		if err != nil {
			log.Error().Err(err).Msg("sweep failed")
		}
		if n > 0 {
			log.Info().Int("requeued", n).Msg("sweep requeued stuck videos")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}

	c.Start()
	log.Info().Str("schedule", spec).Dur("stale_after", s.staleAfter).Msg("stuck video sweep scheduled")
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
