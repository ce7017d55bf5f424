package models

import (
	"fmt"
	"time"
)

// Partition names one of the principal tables.
type Partition string

const (
	PartitionUsers   Partition = "users"
	PartitionAdmins  Partition = "admins"
	PartitionSellers Partition = "sellers"
)

// Principal is an authenticable account. Users, admins and sellers share the
// shape but live in separate tables, so an email is unique per partition only.
type Principal struct {
	BaseModel

	Name            string     `gorm:"not null" json:"name"`
	Email           string     `gorm:"uniqueIndex;not null;size:255" json:"email"`
	Password        string     `gorm:"not null" json:"-"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	RememberToken   *string    `gorm:"size:100" json:"-"`

	// Version is bumped on every write and guards against lost updates.
	Version int `gorm:"not null;default:1" json:"-"`
}

// HasVerifiedEmail reports whether the email address has been proven.
func (p *Principal) HasVerifiedEmail() bool {
	return p != nil && p.EmailVerifiedAt != nil
}

// RememberTokenValue returns the stored remember token or an empty string.
func (p *Principal) RememberTokenValue() string {
	if p == nil || p.RememberToken == nil {
		return ""
	}
	return *p.RememberToken
}

// User, Admin and Seller bind Principal to its table for migrations.
type User struct{ Principal }

func (User) TableName() string { return string(PartitionUsers) }

type Admin struct{ Principal }

func (Admin) TableName() string { return string(PartitionAdmins) }

type Seller struct{ Principal }

func (Seller) TableName() string { return string(PartitionSellers) }

// PartitionModel returns the migration model backing partition.
func PartitionModel(partition Partition) (interface{}, error) {
	switch partition {
	case PartitionUsers:
		return &User{}, nil
	case PartitionAdmins:
		return &Admin{}, nil
	case PartitionSellers:
		return &Seller{}, nil
	default:
		return nil, fmt.Errorf("unknown principal partition %q", partition)
	}
}
