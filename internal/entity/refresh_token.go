package entity

import (
	"time"

	"staffhub/internal/utils"

	"gorm.io/gorm"
)

// DbRefreshToken is the single live refresh credential of a user.
// Only the SHA-256 digest of the signed token is stored.
type DbRefreshToken struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	UserID    string    `gorm:"column:user_id;type:varchar(36);uniqueIndex;not null" json:"user_id"`
	TokenHash string    `gorm:"column:token_hash;type:char(64);uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time `gorm:"column:expires_at;index;not null" json:"expires_at"`
}

// TableName overrides default singular name.
func (DbRefreshToken) TableName() string {
	return "refresh_tokens"
}

// BeforeCreate assigns a UUID when none was set.
func (t *DbRefreshToken) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = utils.NewID()
	}
	return nil
}
