package service

import (
	"context"
	"github.com/rs/zerolog"
	"time"
	"video-pipeline/dto"
	"video-pipeline/pkg/lock"
	"video-pipeline/pkg/metrics"
)

type Service interface {
	Process(ctx context.Context, message dto.TranscodeMessage) error
}

type service struct {
	job    *Job
	locker lock.Locker
}

// Process runs the transcode job for one delivered message. A delivery for
// a video that is already being transcoded is dropped; the running job
// terminates the record. Encode failures are recorded on the video and are
// not returned, so the message is acknowledged and never retried.
func (s *service) Process(ctx context.Context, message dto.TranscodeMessage) error {
	log := zerolog.Ctx(ctx).With().Str("video_id", message.VideoId.String()).Logger()
	ctx = log.WithContext(ctx)
	log.Info().Uint64("outbox_id", message.OutboxId).Msg("processing video")

	release, ok, err := s.locker.TryLock(ctx, message.VideoId.String())
	if err != nil {
		log.Error().Err(err).Msg("failed to claim video")
		return err
	}
	if !ok {
		log.Info().Msg("video already in flight, dropping duplicate delivery")
		metrics.JobsTotal.WithLabelValues(string(OutcomeSkipped)).Inc()
		return nil
	}
	defer release()

	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()
	start := time.Now()

	outcome, err := s.job.Run(ctx, message.VideoId)
	if err != nil {
		return err
	}

	metrics.JobsTotal.WithLabelValues(string(outcome)).Inc()
	if outcome == OutcomeCompleted || outcome == OutcomeFailed {
		metrics.JobDuration.Observe(time.Since(start).Seconds())
	}
	log.Info().Str("outcome", string(outcome)).Dur("took", time.Since(start)).Msg("video processed")
	return nil
}

func NewService(job *Job, locker lock.Locker) Service {
	if locker == nil {
		locker = lock.NewLocal()
	}
	return &service{
		job:    job,
		locker: locker,
	}
}
