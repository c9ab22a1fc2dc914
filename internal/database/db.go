package database

import (
	"fmt"

	"convogate/internal/config"
	"convogate/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Init opens the configured database and runs migrations. Sqlite is the
// default for local development; production runs on PostgreSQL.
func Init(cfg *config.Config) {
	var (
		db  *gorm.DB
		err error
	)

	switch cfg.DBDriver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
			cfg.DBHost, cfg.DBUser, cfg.DBPass, cfg.DBName, cfg.DBPort)
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
	default:
		db, err = gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
	}
	if err != nil {
		logrus.Fatalf("failed to connect to database: %v", err)
	}

	if err := Migrate(db); err != nil {
		logrus.Fatalf("failed to run auto-migration: %v", err)
	}

	DB = db
	logrus.WithField("driver", cfg.DBDriver).Info("database ready")
}

// Migrate creates or updates the schema for all persisted models.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Contact{},
		&models.Message{},
		&models.Template{},
		&models.ContingentSendJob{},
		&models.AutomationLog{},
	)
}
