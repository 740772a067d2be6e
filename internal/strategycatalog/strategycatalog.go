// Package strategycatalog is the read-mostly strategy catalog: named
// parameter bundles identifying a base strategy, timeframe, and tunable
// parameters, validated at the boundary before anything downstream trusts
// them.
package strategycatalog

import (
	"fmt"

	"gorm.io/gorm"

	"ares_api/internal/models"
)

// Store wraps a *gorm.DB scoped to the strategy_configurations table.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by db.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// GetDefaults returns every configuration marked is_default and is_active.
func (s *Store) GetDefaults() ([]models.StrategyConfiguration, error) {
	var configs []models.StrategyConfiguration
	if err := s.db.Where("is_default = ? AND is_active = ?", true, true).Find(&configs).Error; err != nil {
		return nil, fmt.Errorf("strategycatalog: get_defaults: %w", err)
	}
	return configs, nil
}

// GetByIDs returns configurations matching the given ids, in no particular
// order; callers needing the request's ordering must re-sort.
func (s *Store) GetByIDs(ids []uint) ([]models.StrategyConfiguration, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var configs []models.StrategyConfiguration
	if err := s.db.Where("id IN ?", ids).Find(&configs).Error; err != nil {
		return nil, fmt.Errorf("strategycatalog: get_by_ids: %w", err)
	}
	return configs, nil
}

// ListActive returns every is_active configuration.
func (s *Store) ListActive() ([]models.StrategyConfiguration, error) {
	var configs []models.StrategyConfiguration
	if err := s.db.Where("is_active = ?", true).Find(&configs).Error; err != nil {
		return nil, fmt.Errorf("strategycatalog: list_active: %w", err)
	}
	return configs, nil
}

// Create inserts a new configuration, enforcing uniqueness of
// (name, base_strategy, timeframe) via the table's unique constraint; a
// violation surfaces as a wrapped gorm error.
func (s *Store) Create(config *models.StrategyConfiguration) error {
	if err := ValidateParameters(config.Parameters); err != nil {
		return fmt.Errorf("strategycatalog: invalid parameters: %w", err)
	}
	if config.Parameters == nil {
		config.Parameters = models.JSONB{}
	}
	if err := s.db.Create(config).Error; err != nil {
		return fmt.Errorf("strategycatalog: create: %w", err)
	}
	return nil
}
