package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/models"
)

// NotificationRepository handles persistence for notification entities.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByRecipient(ctx context.Context, recipient string, limit, offset int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id uint, recipient string) (models.Notification, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository constructs a repository backed by GORM.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipient string, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var notifications []models.Notification
	if err := r.db.WithContext(ctx).
		Where("recipient = ?", recipient).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&notifications).Error; err != nil {
		return nil, err
	}

	return notifications, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id uint, recipient string) (models.Notification, error) {
	var notification models.Notification
	if err := r.db.WithContext(ctx).
		Where("id = ? AND recipient = ?", id, recipient).
		First(&notification).Error; err != nil {
		return models.Notification{}, err
	}

	if notification.Read {
		return notification, nil
	}

	if err := r.db.WithContext(ctx).
		Model(&notification).
		Update("read", true).Error; err != nil {
		return models.Notification{}, err
	}

	notification.Read = true
	return notification, nil
}
