package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebSession persists the attribute bag of a browser session for the
// database session driver.
type WebSession struct {
	ID           string            `gorm:"primaryKey;size:64"`
	Payload      datatypes.JSONMap `gorm:"not null"`
	IPAddress    string            `gorm:"size:45"`
	UserAgent    string            `gorm:"size:512"`
	LastActivity time.Time         `gorm:"index"`
}
