package database

import (
	"gorm.io/gorm"

	"ares_api/internal/models"
)

// AutoMigrateAll creates or updates every table the service needs: the
// execution log, analysis tasks, strategy catalog, the logger's
// system_logs sink, and the candle cache. The progress store is
// file-backed and has no table.
func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Execution{},
		&models.AnalysisTask{},
		&models.StrategyConfiguration{},
		&models.SystemLog{},
		&models.CachedCandle{},
	)
}

// Migrate is an alias of AutoMigrateAll under a second name; cmd/migrate
// itself calls AutoMigrateAll directly.
func Migrate(db *gorm.DB) error {
	return AutoMigrateAll(db)
}
