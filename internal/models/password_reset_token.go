package models

import "time"

// PasswordResetToken stores the sha256 of an outstanding reset token. There is
// at most one row per guard and email.
type PasswordResetToken struct {
	BaseModel

	Guard     string    `gorm:"not null;size:32;uniqueIndex:idx_password_reset_guard_email" json:"guard"`
	Email     string    `gorm:"not null;size:255;uniqueIndex:idx_password_reset_guard_email" json:"email"`
	TokenHash string    `gorm:"not null;size:64" json:"-"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
}

// Expired reports whether the token is no longer usable at now.
func (t *PasswordResetToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
