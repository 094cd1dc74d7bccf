package repository

import (
	"github.com/cubbyhq/cubby/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByActivationToken(token string) (*models.User, error)
	GetByPasswordResetToken(token string) (*models.User, error)
	Update(user *models.User) error
	Delete(id uint) error
	Count() (int64, error)
}

// StorageAccountRepository defines the interface for saved credential
// profile operations
type StorageAccountRepository interface {
	Create(account *models.StorageAccount) error
	GetByID(id uint) (*models.StorageAccount, error)
	GetByUserID(userID uint) ([]models.StorageAccount, error)
	GetByUserIDAndLabel(userID uint, label string) (*models.StorageAccount, error)
	CountByUserID(userID uint) (int64, error)
	Update(account *models.StorageAccount) error
	Delete(id uint) error
	SetCurrent(userID, accountID uint) error
}

// Repositories holds all repository instances
type Repositories struct {
	User           UserRepository
	StorageAccount StorageAccountRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:           NewUserRepository(db),
		StorageAccount: NewStorageAccountRepository(db),
	}
}
