package repository

import (
	"time"

	"github.com/borikenlabs/athmovil/app/models"
	"gorm.io/gorm/clause"
)

func (s *gormStore) CreatePayment(payment *models.Payment) error {
	return s.db.Create(payment).Error
}

func (s *gormStore) SavePayment(payment *models.Payment) error {
	return s.db.Save(payment).Error
}

func (s *gormStore) GetPaymentByID(id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.First(&payment, id).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *gormStore) GetPaymentByEcommerceID(ecommerceID string) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.Preload("Refunds").Where("ecommerce_id = ?", ecommerceID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *gormStore) GetPaymentForUpdateByID(id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&payment, id).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *gormStore) GetPaymentForUpdateByEcommerceID(ecommerceID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("ecommerce_id = ?", ecommerceID).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *gormStore) GetPaymentForUpdateByReferenceNumber(referenceNumber string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reference_number = ?", referenceNumber).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *gormStore) ListPayments(offset, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&payments).Error
	return payments, err
}

func (s *gormStore) CountPayments() (int64, error) {
	var count int64
	err := s.db.Model(&models.Payment{}).Count(&count).Error
	return count, err
}

func (s *gormStore) ListReconcilablePayments(cutoff time.Time, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.
		Where("status IN ? AND created_at < ?", []string{models.PaymentStatusOpen, models.PaymentStatusConfirm}, cutoff).
		Order("created_at ASC").Limit(limit).Find(&payments).Error
	return payments, err
}
