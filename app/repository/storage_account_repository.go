package repository

import (
	"github.com/cubbyhq/cubby/app/models"
	"gorm.io/gorm"
)

// storageAccountRepository implements the StorageAccountRepository interface
type storageAccountRepository struct {
	db *gorm.DB
}

// NewStorageAccountRepository creates a new storage account repository instance
func NewStorageAccountRepository(db *gorm.DB) StorageAccountRepository {
	return &storageAccountRepository{db: db}
}

func (r *storageAccountRepository) Create(account *models.StorageAccount) error {
	return r.db.Create(account).Error
}

func (r *storageAccountRepository) GetByID(id uint) (*models.StorageAccount, error) {
	var account models.StorageAccount
	err := r.db.First(&account, id).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *storageAccountRepository) GetByUserID(userID uint) ([]models.StorageAccount, error) {
	var accounts []models.StorageAccount
	err := r.db.Where("user_id = ?", userID).Order("label asc").Find(&accounts).Error
	return accounts, err
}

func (r *storageAccountRepository) GetByUserIDAndLabel(userID uint, label string) (*models.StorageAccount, error) {
	var account models.StorageAccount
	err := r.db.Where("user_id = ? AND label = ?", userID, label).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *storageAccountRepository) CountByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.StorageAccount{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (r *storageAccountRepository) Update(account *models.StorageAccount) error {
	return r.db.Save(account).Error
}

func (r *storageAccountRepository) Delete(id uint) error {
	return r.db.Delete(&models.StorageAccount{}, id).Error
}

// SetCurrent marks one profile as the selected one for a user. The clear and
// set run in one transaction so at most one row is ever current.
func (r *storageAccountRepository) SetCurrent(userID, accountID uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.StorageAccount{}).
			Where("user_id = ?", userID).
			Update("is_current", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.StorageAccount{}).
			Where("id = ? AND user_id = ?", accountID, userID).
			Update("is_current", true).Error
	})
}
