package db

import (
	"fmt"

	"github.com/certfolio/certfolio/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the schema for all persisted models.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if err := conn.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.Certificate{},
		&models.Visitor{},
	); err != nil {
		return fmt.Errorf("db: migrate: %w", err)
	}
	return nil
}
