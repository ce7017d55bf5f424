package models

import "time"

// SystemSetting is a persisted key/value pair for process-wide state such as
// a generated application key.
type SystemSetting struct {
	Key       string `gorm:"primaryKey;size:128"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}
