package handler

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"video-pipeline/dto"
	"video-pipeline/service"
)

var ErrInvalidMessage = errors.New("invalid transcode message")

type ServiceDependencies struct {
	TranscodeService service.Service
}

// JobHandler decodes a transcode work item and runs it. Undecodable
// messages are returned as errors so brokers dead-letter them.
func JobHandler(ctx context.Context, body []byte, deps ServiceDependencies) error {
	var message dto.TranscodeMessage
	if err := json.Unmarshal(body, &message); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal transcode message")
		return errors.Join(ErrInvalidMessage, err)
	}
	if message.VideoId == uuid.Nil {
		zerolog.Ctx(ctx).Error().Msg("transcode message without video id")
		return ErrInvalidMessage
	}

	err := deps.TranscodeService.Process(ctx, message)
	if err != nil {
		return err
	}

	return nil
}
