package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/windoze95/groceryplan-api/internal/config"
	"github.com/windoze95/groceryplan-api/internal/logger"
	"github.com/windoze95/groceryplan-api/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// New creates a new database connection and migrates the corpus schema.
func New(cfg *config.Config) (*gorm.DB, error) {
	return connectToDatabaseWithRetry(cfg.EnvVars.DatabaseUrl)
}

// dialectorFor picks the gorm driver from the URL scheme. postgres:// and
// postgresql:// go to Postgres, anything else is a SQLite path or DSN.
func dialectorFor(databaseURL string) (gorm.Dialector, string) {
	lower := strings.ToLower(databaseURL)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return postgres.Open(databaseURL), "postgres"
	}
	return sqlite.Open(strings.TrimPrefix(databaseURL, "sqlite://")), "sqlite"
}

// connectToDatabaseWithRetry connects to the database and retries if necessary.
func connectToDatabaseWithRetry(databaseURL string) (*gorm.DB, error) {
	dialector, driver := dialectorFor(databaseURL)
	logger.Get().Info("connecting to database", zap.String("driver", driver))

	gormCfg := &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	}

	var database *gorm.DB
	var err error

	start := time.Now()
	for {
		database, err = gorm.Open(dialector, gormCfg)
		if err == nil {
			break
		}
		if time.Since(start) > 1*time.Minute {
			return nil, fmt.Errorf("could not connect to database after 1 minute: %w", err)
		}
		logger.Get().Warn("could not connect to database, retrying...", zap.Error(err))
		time.Sleep(5 * time.Second)
	}

	if driver == "sqlite" {
		// SQLite allows a single writer; one connection avoids "database is locked".
		if sqlDB, err := database.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	if err := Migrate(database); err != nil {
		return nil, err
	}
	return database, nil
}

// Migrate creates or updates the corpus tables.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.DietaryRestriction{},
		&models.Recipe{},
		&models.RecipeIngredient{},
	); err != nil {
		return fmt.Errorf("auto-migrate corpus schema: %w", err)
	}
	return nil
}
