package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence. The full package document lives in a
// jsonb content column; the indexed columns exist for listing and scoping.
type PackageModel struct {
	ID        string         `gorm:"primaryKey"`
	OwnerID   string         `gorm:"not null;index"`
	ChannelID string         `gorm:"not null"`
	Title     string         `gorm:"not null"`
	Content   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"not null;index"`
	UpdatedAt time.Time      `gorm:"not null"`
}

type PreferencesModel struct {
	UserID              string `gorm:"primaryKey"`
	DefaultMood         string
	DefaultDuration     string
	EncryptedCredential []byte
	UpdatedAt           time.Time `gorm:"not null"`
}
