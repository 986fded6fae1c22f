package database

import (
	"gorm.io/gorm"

	"github.com/mhalloran/curbshare/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.Membership{},
		&models.Request{},
		&models.Invite{},
		&models.Session{},
	)
}
