package database

import (
	"gorm.io/gorm"

	"github.com/charlesng35/shopapp/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Role{},
		&models.User{},
		&models.Session{},
		&models.CacheEntry{},
	)
}

// SeedData inserts the built-in roles. Existing rows are left untouched.
func SeedData(db *gorm.DB) error {
	roles := []models.Role{
		{
			Name:        models.RoleAdmin,
			Description: "Manages accounts and their sessions",
			IsSystem:    true,
		},
		{
			Name:        models.RoleUser,
			Description: "Shop customer",
			IsSystem:    true,
		},
	}

	for _, role := range roles {
		if err := db.Where(models.Role{Name: role.Name}).Attrs(role).FirstOrCreate(&models.Role{}).Error; err != nil {
			return err
		}
	}
	return nil
}
