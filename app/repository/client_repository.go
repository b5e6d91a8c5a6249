package repository

import (
	"github.com/borikenlabs/athmovil/app/models"
	"gorm.io/gorm/clause"
)

func (s *gormStore) CreateClient(client *models.Client) error {
	return s.db.Create(client).Error
}

func (s *gormStore) SaveClient(client *models.Client) error {
	return s.db.Save(client).Error
}

func (s *gormStore) GetClientForUpdateByPhone(phoneNumber string) (*models.Client, error) {
	var client models.Client
	err := s.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("phone_number = ?", phoneNumber).First(&client).Error
	if err != nil {
		return nil, err
	}
	return &client, nil
}
