package entities

import (
	"github.com/google/uuid"
	"time"
)

// OutboxEntry is a transcode work item written in the same transaction as
// the video it refers to. The relay deletes it once published.
type OutboxEntry struct {
	ID        uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	VideoId   uuid.UUID `json:"video_id" gorm:"type:uuid;not null;index:idx_transcode_outbox_video_id"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

func (OutboxEntry) TableName() string {
	return "transcode_outbox"
}
