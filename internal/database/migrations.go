package database

import (
	"gorm.io/gorm"

	"github.com/pagefeedhq/pagefeed/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Page{},
		&models.PageSettings{},
		&models.Visitor{},
		&models.PageView{},
	)
}
