package athm

import (
	"errors"

	"github.com/borikenlabs/athmovil/app/models"
	"github.com/borikenlabs/athmovil/app/repository"
	"gorm.io/gorm"
)

// ResolveClient gets or creates the client identified by the phone number and
// merges the incoming name/email with latest-non-empty-wins. The row is locked
// for the remainder of the caller's transaction. Returns nil (no error) when
// the phone number normalizes to nothing to key on.
func ResolveClient(tx repository.Store, phoneNumber, name, email string) (*models.Client, error) {
	normalized := models.NormalizePhoneNumber(phoneNumber)
	if normalized == "" {
		return nil, nil
	}

	client, err := tx.GetClientForUpdateByPhone(normalized)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		client = &models.Client{PhoneNumber: normalized}
		client.Merge(name, email)
		if err := tx.CreateClient(client); err != nil {
			return nil, err
		}
		return client, nil
	}
	if err != nil {
		return nil, err
	}

	if client.Merge(name, email) {
		if err := tx.SaveClient(client); err != nil {
			return nil, err
		}
	}
	return client, nil
}
