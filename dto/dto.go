package dto

import (
	"github.com/google/uuid"
	"time"
)

// TranscodeMessage is the work item handed from the outbox relay to the
// worker pool. The video id is the idempotency key.
type TranscodeMessage struct {
	VideoId  uuid.UUID `json:"videoId"`
	OutboxId uint64    `json:"outboxId,omitempty"`
}

type VideoStatus struct {
	Id               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Category         string    `json:"category"`
	ThumbnailUrl     *string   `json:"thumbnail_url"`
	ConversionStatus string    `json:"conversion_status"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
