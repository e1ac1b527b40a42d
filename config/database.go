package config

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/studydeck/studydeck-api/models"
)

// Connect opens the postgres database and migrates the schema. The handle is
// returned to the caller for injection instead of being stored in a global.
func Connect(cfg Config) (*gorm.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DB_URL is not set")
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate applies the schema for every model. Split out so tests can run it
// against an in-memory sqlite database.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Deck{},
		&models.Flashcard{},
		&models.Generation{},
		&models.GenerationError{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate database: %w", err)
	}
	return nil
}
