package models

import "gorm.io/gorm"

// AllModels returns all models for migration
// Note: Network must be migrated before the tables that reference it
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Network{},
		&APIKey{},
		&TableSchema{},
		&ElementRow{},
		&GroupEntry{},
	}
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
