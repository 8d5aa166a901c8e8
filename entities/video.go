package entities

import (
	"github.com/google/uuid"
	"time"
	"video-pipeline/constant"
)

type Video struct {
	ID               uuid.UUID                 `json:"id" gorm:"type:uuid;primaryKey"`
	Title            string                    `json:"title" gorm:"type:varchar(255);not null"`
	Description      string                    `json:"description" gorm:"type:text"`
	Category         string                    `json:"category" gorm:"type:varchar(100)"`
	SourcePath       string                    `json:"source_path" gorm:"type:varchar(1024);not null"`
	ThumbnailPath    *string                   `json:"thumbnail_path" gorm:"type:varchar(1024)"`
	ConversionStatus constant.ConversionStatus `json:"conversion_status" gorm:"type:varchar(20);not null;default:'pending';index:idx_videos_conversion_status"`
	ErrorMessage     string                    `json:"error_message" gorm:"type:text;not null;default:''"`
	CreatedAt        time.Time                 `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time                 `json:"updated_at" gorm:"not null"`
}

func (Video) TableName() string {
	return "videos"
}
