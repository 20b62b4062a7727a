package repository

import (
	"context"
	"time"

	"looneca-storefront/internal/model"

	"gorm.io/gorm"
)

type WebhookEventRepository interface {
	Create(ctx context.Context, event *model.WebhookEvent) error
	MarkProcessed(ctx context.Context, id uint, processingErr error) error
	CountByEventID(ctx context.Context, eventID string) (int64, error)
}

type webhookEventRepositoryImpl struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepositoryImpl{db: db}
}

func (r *webhookEventRepositoryImpl) Create(ctx context.Context, event *model.WebhookEvent) error {
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(event).Error
}

// MarkProcessed targets the row by its own primary key so that redeliveries of
// the same gateway event keep independent outcomes.
func (r *webhookEventRepositoryImpl) MarkProcessed(ctx context.Context, id uint, processingErr error) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed":        processingErr == nil,
		"processed_at":     &now,
		"processing_error": "",
	}
	if processingErr != nil {
		updates["processing_error"] = processingErr.Error()
	}

	return r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *webhookEventRepositoryImpl) CountByEventID(ctx context.Context, eventID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	return count, err
}
