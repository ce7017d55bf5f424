package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/multiguard/internal/models"
)

// AutoMigrate creates or updates the schema: one principal table per
// partition plus the supporting session, cache and token tables.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	for _, partition := range []models.Partition{
		models.PartitionUsers,
		models.PartitionAdmins,
		models.PartitionSellers,
	} {
		model, err := models.PartitionModel(partition)
		if err != nil {
			return err
		}
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("migrate %s: %w", partition, err)
		}
	}

	return db.AutoMigrate(
		&models.WebSession{},
		&models.CacheEntry{},
		&models.PasswordResetToken{},
		&models.SystemSetting{},
	)
}
