package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"pictopercept/internal/config"
	logging "pictopercept/internal/logging"
	"pictopercept/internal/models"
)

// Open connects to postgres and runs migrations.
func Open(conf config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(conf.DSN()), &gorm.Config{
		Logger: logging.NewGormZapLogger(log).WithSlowThreshold(conf.SlowQuery),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("Database connection established successfully.")
	if err := runMigrations(db, log); err != nil {
		return nil, err
	}
	return db, nil
}

func runMigrations(db *gorm.DB, log *zap.Logger) error {
	// AutoMigrate creates tables, columns and the unique record_key index.
	if err := db.AutoMigrate(
		&models.Response{},
		&models.SessionSummary{},
	); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	log.Info("Database migrations completed successfully.")

	responsesIndex := `CREATE INDEX IF NOT EXISTS idx_responses_user_item ON responses (user_id, item_number);`
	if err := db.Exec(responsesIndex).Error; err != nil {
		return fmt.Errorf("failed to create custom index on responses table: %w", err)
	}
	log.Info("Custom indexes ensured successfully.")
	return nil
}
