// Package database owns the process-wide GORM handle.
package database

import (
	"os"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Open opens a SQLite database at the given path. A whole registry lives in
// one file, which keeps backups and offline maintenance trivial.
func Open(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logLevel())}
	return gorm.Open(sqlite.Open(dsn), cfg)
}

// Connect opens the database and installs it as the shared handle.
func Connect(dsn string) error {
	db, err := Open(dsn)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// GetDB returns the shared database handle.
func GetDB() *gorm.DB {
	return DB
}

func logLevel() logger.LogLevel {
	switch os.Getenv("GRIDREG_DB_LOG") {
	case "info":
		return logger.Info
	case "warn":
		return logger.Warn
	default:
		return logger.Error
	}
}
