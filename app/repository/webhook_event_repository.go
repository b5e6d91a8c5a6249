package repository

import (
	"github.com/borikenlabs/athmovil/app/models"
	"gorm.io/gorm/clause"
)

// CreateWebhookEventIfNotExists inserts the event unless a row with the same
// idempotency key already exists. Either way the stored row is returned; the
// bool reports whether this call created it. The uniqueness constraint makes
// this race-safe under concurrent deliveries of the same logical event.
func (s *gormStore) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := s.db.Where("idempotency_key = ?", event.IdempotencyKey).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (s *gormStore) GetWebhookEventByID(id uint) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := s.db.First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *gormStore) GetWebhookEventForUpdate(id uint) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := s.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *gormStore) SaveWebhookEvent(event *models.WebhookEvent) error {
	return s.db.Save(event).Error
}

func (s *gormStore) RecordWebhookEventError(id uint, processingError, traceID string) error {
	updates := map[string]interface{}{
		"processing_error": processingError,
		"trace_id":         traceID,
	}
	return s.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
