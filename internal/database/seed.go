package database

import (
	"gorm.io/gorm"

	"ares_api/internal/models"
)

// SeedDefaultStrategies inserts the stock strategy configurations when the
// catalog is empty, so a fresh deployment can serve a default-mode
// AddSymbol without the admin path having run first. The base_leverage
// values carry the per-strategy leverage table forward as catalog
// parameters. Idempotent: a non-empty catalog is left untouched.
func SeedDefaultStrategies(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.StrategyConfiguration{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	defaults := []models.StrategyConfiguration{
		{
			Name:         "Conservative_ML@1h",
			BaseStrategy: "Conservative_ML",
			Timeframe:    "1h",
			Parameters:   models.JSONB{"base_leverage": 2.5},
			Description:  "ML-gated entries, low leverage, 1h bars",
			IsDefault:    true,
			IsActive:     true,
		},
		{
			Name:         "Aggressive_ML@4h",
			BaseStrategy: "Aggressive_ML",
			Timeframe:    "4h",
			Parameters:   models.JSONB{"base_leverage": 5.0},
			Description:  "ML-gated entries, higher leverage, 4h bars",
			IsDefault:    true,
			IsActive:     true,
		},
		{
			Name:         "Full_ML@1h",
			BaseStrategy: "Full_ML",
			Timeframe:    "1h",
			Parameters:   models.JSONB{"base_leverage": 4.0},
			Description:  "every filter driven by the ML signal",
			IsDefault:    true,
			IsActive:     true,
		},
		{
			Name:         "Aggressive_Traditional@15m",
			BaseStrategy: "Aggressive_Traditional",
			Timeframe:    "15m",
			Parameters:   models.JSONB{"base_leverage": 6.0},
			Description:  "technical-analysis entries, short bars",
			IsDefault:    false,
			IsActive:     true,
		},
	}

	return db.Create(&defaults).Error
}
