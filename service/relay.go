package service

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"time"
	"video-pipeline/dto"
	"video-pipeline/pkg/metrics"
	"video-pipeline/pkg/queue"
	"video-pipeline/repository"
)

// Relay moves committed outbox entries onto the queue. An entry is deleted
// only after its publish succeeded, so a crash in between republishes it.
type Relay struct {
	repo      repository.VideoRepository
	publisher queue.Publisher
	interval  time.Duration
	batchSize int
}

func NewRelay(repo repository.VideoRepository, publisher queue.Publisher, interval time.Duration, batchSize int) *Relay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Relay{
		repo:      repo,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	log := zerolog.Ctx(ctx)
	log.Info().Dur("interval", r.interval).Msg("outbox relay started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		for {
			n, err := r.Flush(ctx)
			if err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("outbox flush failed")
			}
			if err != nil || n < r.batchSize {
				break
			}
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("outbox relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Flush publishes one batch, oldest first, and returns how many entries
// were published. It stops at the first entry that cannot be published.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	entries, err := r.repo.PendingOutbox(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, entry := range entries {
		body, err := json.Marshal(dto.TranscodeMessage{VideoId: entry.VideoId, OutboxId: entry.ID})
		if err != nil {
			return published, err
		}

		operation := func() (struct{}, error) {
			return struct{}{}, r.publisher.Publish(ctx, entry.VideoId.String(), body)
		}
		if _, err := backoff.Retry(ctx, operation,
			backoff.WithBackOff(backoff.NewExponentialBackOff()),
			backoff.WithMaxTries(3),
		); err != nil {
			metrics.OutboxPublishErrors.Inc()
			return published, fmt.Errorf("publish video %s: %w", entry.VideoId, err)
		}
		metrics.OutboxPublished.Inc()

		if err := r.repo.DeleteOutbox(ctx, entry.ID); err != nil {
			return published, fmt.Errorf("delete outbox entry %d: %w", entry.ID, err)
		}
		published++
		zerolog.Ctx(ctx).Debug().Str("video_id", entry.VideoId.String()).Uint64("outbox_id", entry.ID).Msg("work item published")
	}
	return published, nil
}
