package strategycatalog

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"ares_api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	if err := db.AutoMigrate(&models.StrategyConfiguration{}); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func TestCreateAndGetDefaults(t *testing.T) {
	store := New(setupTestDB(t))

	config := &models.StrategyConfiguration{
		Name:         "Conservative_ML 1h",
		BaseStrategy: "Conservative_ML",
		Timeframe:    "1h",
		Parameters:   models.JSONB{"base_leverage": 2.5},
		IsDefault:    true,
		IsActive:     true,
	}
	if err := store.Create(config); err != nil {
		t.Fatalf("Create: %v", err)
	}

	defaults, err := store.GetDefaults()
	if err != nil {
		t.Fatalf("GetDefaults: %v", err)
	}
	if len(defaults) != 1 {
		t.Fatalf("expected 1 default config, got %d", len(defaults))
	}
}

func TestGetByIDs(t *testing.T) {
	store := New(setupTestDB(t))
	a := &models.StrategyConfiguration{Name: "A", BaseStrategy: "Conservative_ML", Timeframe: "1h", IsActive: true}
	b := &models.StrategyConfiguration{Name: "B", BaseStrategy: "Full_ML", Timeframe: "4h", IsActive: true}
	if err := store.Create(a); err != nil {
		t.Fatalf("Create a: %v", err)
	}
	if err := store.Create(b); err != nil {
		t.Fatalf("Create b: %v", err)
	}

	configs, err := store.GetByIDs([]uint{a.ID})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(configs) != 1 || configs[0].Name != "A" {
		t.Fatalf("expected only config A, got %+v", configs)
	}
}

func TestGetByIDsEmptyReturnsNil(t *testing.T) {
	store := New(setupTestDB(t))
	configs, err := store.GetByIDs(nil)
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if configs != nil {
		t.Fatalf("expected nil for empty id list, got %v", configs)
	}
}

func TestValidateParametersRejectsOutOfRange(t *testing.T) {
	bad := models.JSONB{
		"filter_params": map[string]interface{}{
			"support_resistance": map[string]interface{}{
				"min_touch_count": 0, // must be >= 1
			},
		},
	}
	if err := ValidateParameters(bad); err == nil {
		t.Fatalf("expected validation error for min_touch_count=0")
	}
}

func TestValidateParametersAcceptsWithinRange(t *testing.T) {
	good := models.JSONB{
		"filter_params": map[string]interface{}{
			"support_resistance": map[string]interface{}{
				"min_touch_count": 2,
				"tolerance_pct":   0.05,
			},
		},
	}
	if err := ValidateParameters(good); err != nil {
		t.Fatalf("expected valid parameters, got %v", err)
	}
}

func TestValidateParametersEmptyIsValid(t *testing.T) {
	if err := ValidateParameters(nil); err != nil {
		t.Fatalf("expected nil parameters to be valid, got %v", err)
	}
}
