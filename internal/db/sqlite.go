// Package db opens the local SQLite history database.
package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pysugar/vertex-nexus/internal/db/models"
)

// Open creates (or opens) the history database at path and migrates the
// request record table.
func Open(path string) (*gorm.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	database, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if err := database.AutoMigrate(&models.RequestRecord{}); err != nil {
		return nil, fmt.Errorf("migrate history database: %w", err)
	}
	return database, nil
}
