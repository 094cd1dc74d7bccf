package models

import "time"

// StorageAccount is a saved S3/R2 credential profile for the desktop client.
// The client performs object operations itself; the API only stores profiles,
// verifies them on request and tracks which one is currently selected.
type StorageAccount struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	UserID         uint       `gorm:"not null;index:ux_storage_accounts_user_label,unique,priority:1" json:"user_id"`
	Label          string     `gorm:"type:varchar(100);not null;index:ux_storage_accounts_user_label,unique,priority:2" json:"label" validate:"required,min=1,max=100"`
	EndpointURL    string     `gorm:"type:varchar(255);default:''" json:"endpoint_url"`
	Region         string     `gorm:"type:varchar(50);not null;default:'auto'" json:"region"`
	Bucket         string     `gorm:"type:varchar(255);default:''" json:"bucket"`
	AccessKeyID    string     `gorm:"type:varchar(191);not null" json:"access_key_id" validate:"required"`
	SecretKeyEnc   string     `gorm:"type:text;not null" json:"-" validate:"required"`
	ForcePathStyle bool       `gorm:"default:true" json:"force_path_style"`
	IsCurrent      bool       `gorm:"default:false;index" json:"is_current"`
	LastVerifiedAt *time.Time `gorm:"type:timestamp;default:null" json:"last_verified_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
