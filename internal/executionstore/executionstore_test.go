package executionstore

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
	if err := db.AutoMigrate(&models.Execution{}); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func TestCreateExecutionDefaultsToPending(t *testing.T) {
	store := New(setupTestDB(t))

	id, err := store.CreateExecution(CreateRequest{
		ExecutionType:       models.ExecutionTypeSymbolAddition,
		Symbol:              "BTCUSDT",
		SelectedStrategyIDs: []int{1, 2},
		ExecutionMode:       models.ModeSelective,
		EstimatedPatterns:   2,
	})
	if err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	if id == "" {
		t.Fatalf("expected a non-empty execution id")
	}

	execution, err := store.Lookup(id)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if execution.Status != models.ExecutionPending {
		t.Fatalf("status = %v, want %v", execution.Status, models.ExecutionPending)
	}
	if execution.EstimatedPatterns != 2 {
		t.Fatalf("estimated_patterns = %d, want 2", execution.EstimatedPatterns)
	}
	if len(execution.SelectedStrategyIDs) != 2 {
		t.Fatalf("selected_strategy_ids = %v, want len 2", execution.SelectedStrategyIDs)
	}
}

func TestMarkRunningThenSuccess(t *testing.T) {
	store := New(setupTestDB(t))
	id, err := store.CreateExecution(CreateRequest{ExecutionType: models.ExecutionTypeSymbolAddition, Symbol: "ETHUSDT"})
	if err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	if err := store.MarkRunning(id); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	execution, _ := store.Lookup(id)
	if execution.Status != models.ExecutionRunning {
		t.Fatalf("status = %v, want %v", execution.Status, models.ExecutionRunning)
	}

	if err := store.MarkSuccess(id); err != nil {
		t.Fatalf("MarkSuccess: %v", err)
	}
	execution, _ = store.Lookup(id)
	if execution.Status != models.ExecutionSuccess {
		t.Fatalf("status = %v, want %v", execution.Status, models.ExecutionSuccess)
	}
	if execution.ProgressPercentage != 100 {
		t.Fatalf("progress_percentage = %v, want 100", execution.ProgressPercentage)
	}
	if execution.TimestampEnd == nil {
		t.Fatalf("expected timestamp_end to be set")
	}
}

func TestMarkFailedAppendsError(t *testing.T) {
	store := New(setupTestDB(t))
	id, err := store.CreateExecution(CreateRequest{ExecutionType: models.ExecutionTypeSymbolAddition, Symbol: "SOLUSDT"})
	if err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	if err := store.MarkFailed(id, "worker crashed"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	execution, _ := store.Lookup(id)
	if execution.Status != models.ExecutionFailed {
		t.Fatalf("status = %v, want %v", execution.Status, models.ExecutionFailed)
	}
	if len(execution.Errors) != 1 || execution.Errors[0] != "worker crashed" {
		t.Fatalf("errors = %v, want [worker crashed]", execution.Errors)
	}
}

func TestListForSymbol(t *testing.T) {
	store := New(setupTestDB(t))
	if _, err := store.CreateExecution(CreateRequest{ExecutionType: models.ExecutionTypeSymbolAddition, Symbol: "BTCUSDT"}); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	if _, err := store.CreateExecution(CreateRequest{ExecutionType: models.ExecutionTypeSymbolAddition, Symbol: "ETHUSDT"}); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	executions, err := store.ListForSymbol("BTCUSDT")
	if err != nil {
		t.Fatalf("ListForSymbol: %v", err)
	}
	if len(executions) != 1 {
		t.Fatalf("expected 1 execution for BTCUSDT, got %d", len(executions))
	}
}
