package repository

import (
	"github.com/borikenlabs/athmovil/app/models"
)

func (s *gormStore) CreateRefund(refund *models.Refund) error {
	return s.db.Create(refund).Error
}

func (s *gormStore) GetRefundByReferenceNumber(referenceNumber string) (*models.Refund, error) {
	var refund models.Refund
	if err := s.db.Where("reference_number = ?", referenceNumber).First(&refund).Error; err != nil {
		return nil, err
	}
	return &refund, nil
}
