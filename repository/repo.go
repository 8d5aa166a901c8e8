package repository

import (
	"context"
	"database/sql"
	"errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"time"
	"video-pipeline/constant"
	"video-pipeline/entities"
)

var (
	ErrNotFound           = errors.New("video not found")
	ErrTransitionRejected = errors.New("status transition rejected")
)

type VideoRepository interface {
	Transaction(ctx context.Context, callback func(tx VideoRepository) error, opts ...*sql.TxOptions) error
	GetDB() *gorm.DB
	Migrate(ctx context.Context) error
	CreateVideo(ctx context.Context, video *entities.Video) error
	CreateWithOutbox(ctx context.Context, video *entities.Video) error
	FindVideoById(ctx context.Context, id uuid.UUID) (*entities.Video, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to constant.ConversionStatus, errorMessage string) error
	SetThumbnailPath(ctx context.Context, id uuid.UUID, path string) error
	DeleteVideo(ctx context.Context, id uuid.UUID) (*entities.Video, error)
	AddOutbox(ctx context.Context, videoId uuid.UUID) error
	PendingOutbox(ctx context.Context, limit int) ([]*entities.OutboxEntry, error)
	DeleteOutbox(ctx context.Context, id uint64) error
	FindStaleProcessing(ctx context.Context, before time.Time) ([]*entities.Video, error)
}

type repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) VideoRepository {
	return &repo{
		db: db,
	}
}

func (r *repo) GetDB() *gorm.DB {
	return r.db
}

func (r *repo) Transaction(ctx context.Context, callback func(tx VideoRepository) error, opts ...*sql.TxOptions) error {
	return r.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return callback(&repo{db: tx})
	}, opts...)
}

func (r *repo) Migrate(ctx context.Context) error {
	return r.GetDB().WithContext(ctx).AutoMigrate(&entities.Video{}, &entities.OutboxEntry{})
}

func (r *repo) CreateVideo(ctx context.Context, video *entities.Video) error {
	if video.ID == uuid.Nil {
		video.ID = uuid.New()
	}
	video.ConversionStatus = constant.ConversionStatusPending
	return r.GetDB().WithContext(ctx).Create(video).Error
}

// CreateWithOutbox persists the video, moves it to processing and records
// the work item in one transaction. Nothing is visible to the relay unless
// all three commit.
func (r *repo) CreateWithOutbox(ctx context.Context, video *entities.Video) error {
	return r.Transaction(ctx, func(tx VideoRepository) error {
		if err := tx.CreateVideo(ctx, video); err != nil {
			return err
		}
		if err := tx.TransitionStatus(ctx, video.ID, constant.ConversionStatusPending, constant.ConversionStatusProcessing, ""); err != nil {
			return err
		}
		video.ConversionStatus = constant.ConversionStatusProcessing
		return tx.AddOutbox(ctx, video.ID)
	})
}

func (r *repo) FindVideoById(ctx context.Context, id uuid.UUID) (*entities.Video, error) {
	video := &entities.Video{}
	err := r.GetDB().WithContext(ctx).First(video, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Join(ErrNotFound, err)
		}
		return nil, err
	}

	return video, nil
}

// TransitionStatus is a compare-and-set on conversion_status. It returns
// ErrNotFound when the row is gone and ErrTransitionRejected when the row
// is no longer in from.
func (r *repo) TransitionStatus(ctx context.Context, id uuid.UUID, from, to constant.ConversionStatus, errorMessage string) error {
	if !constant.CanTransition(from, to) {
		return errors.Join(ErrTransitionRejected, errors.New(from.String()+" -> "+to.String()))
	}

	res := r.GetDB().WithContext(ctx).
		Model(&entities.Video{}).
		Where("id = ? AND conversion_status = ?", id, from).
		Updates(map[string]interface{}{
			"conversion_status": to,
			"error_message":     errorMessage,
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	return r.missingOrRejected(ctx, id)
}

func (r *repo) SetThumbnailPath(ctx context.Context, id uuid.UUID, path string) error {
	res := r.GetDB().WithContext(ctx).
		Model(&entities.Video{}).
		Where("id = ? AND conversion_status = ?", id, constant.ConversionStatusProcessing).
		Update("thumbnail_path", path)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	return r.missingOrRejected(ctx, id)
}

func (r *repo) missingOrRejected(ctx context.Context, id uuid.UUID) error {
	var count int64
	if err := r.GetDB().WithContext(ctx).Model(&entities.Video{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrTransitionRejected
}

// DeleteVideo removes the record and its pending work items, returning the
// deleted row so the caller can clean up its files.
func (r *repo) DeleteVideo(ctx context.Context, id uuid.UUID) (*entities.Video, error) {
	var deleted *entities.Video
	err := r.Transaction(ctx, func(tx VideoRepository) error {
		video, err := tx.FindVideoById(ctx, id)
		if err != nil {
			return err
		}
		db := tx.GetDB().WithContext(ctx)
		if err := db.Where("video_id = ?", id).Delete(&entities.OutboxEntry{}).Error; err != nil {
			return err
		}
		if err := db.Delete(&entities.Video{}, "id = ?", id).Error; err != nil {
			return err
		}
		deleted = video
		return nil
	})
	if err != nil {
		return nil, err
	}

	return deleted, nil
}

func (r *repo) AddOutbox(ctx context.Context, videoId uuid.UUID) error {
	entry := &entities.OutboxEntry{VideoId: videoId, CreatedAt: time.Now().UTC()}
	return r.GetDB().WithContext(ctx).Create(entry).Error
}

func (r *repo) PendingOutbox(ctx context.Context, limit int) ([]*entities.OutboxEntry, error) {
	var entries []*entities.OutboxEntry
	err := r.GetDB().WithContext(ctx).Order("id ASC").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) DeleteOutbox(ctx context.Context, id uint64) error {
	return r.GetDB().WithContext(ctx).Delete(&entities.OutboxEntry{}, "id = ?", id).Error
}

// FindStaleProcessing lists processing videos last touched before the
// cutoff that have no work item waiting in the outbox.
func (r *repo) FindStaleProcessing(ctx context.Context, before time.Time) ([]*entities.Video, error) {
	var videos []*entities.Video
	err := r.GetDB().WithContext(ctx).
		Where("conversion_status = ? AND updated_at < ?", constant.ConversionStatusProcessing, before).
		Where("NOT EXISTS (SELECT 1 FROM transcode_outbox o WHERE o.video_id = videos.id)").
		Order("updated_at ASC").
		Find(&videos).Error
	if err != nil {
		return nil, err
	}
	return videos, nil
}
