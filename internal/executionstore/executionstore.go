// Package executionstore is the gorm-backed execution log store: one row
// per symbol-addition request, mutated only by the Coordinator.
package executionstore

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"ares_api/internal/models"
)

// Store wraps a *gorm.DB scoped to the execution_logs table.
type Store struct {
	db       *gorm.DB
	idFormat IDFormat
}

// New returns a Store backed by db, generating execution ids as random
// UUIDs. db is expected to already have run the execution_logs migration.
func New(db *gorm.DB) *Store {
	return &Store{db: db, idFormat: IDFormatUUID}
}

// NewWithIDFormat is New with an explicit id format
// (EXECUTION_ID_FORMAT=ulid selects sortable ids).
func NewWithIDFormat(db *gorm.DB, format IDFormat) *Store {
	return &Store{db: db, idFormat: format}
}

// CreateRequest is the input to CreateExecution.
type CreateRequest struct {
	ExecutionType       models.ExecutionType
	Symbol              string
	Symbols             string
	SelectedStrategyIDs []int
	ExecutionMode       models.ExecutionMode
	EstimatedPatterns   int
}

// CreateExecution inserts a new Execution row in PENDING status and returns
// its opaque ID.
func (s *Store) CreateExecution(req CreateRequest) (string, error) {
	execution := models.Execution{
		ExecutionID:         newExecutionID(s.idFormat),
		ExecutionType:       req.ExecutionType,
		Symbol:              req.Symbol,
		Symbols:             req.Symbols,
		TimestampStart:      time.Now(),
		Status:              models.ExecutionPending,
		SelectedStrategyIDs: models.IntList(req.SelectedStrategyIDs),
		ExecutionMode:       req.ExecutionMode,
		EstimatedPatterns:   req.EstimatedPatterns,
	}

	if err := s.db.Create(&execution).Error; err != nil {
		return "", fmt.Errorf("executionstore: create: %w", err)
	}
	return execution.ExecutionID, nil
}

// MarkRunning transitions an Execution to RUNNING.
func (s *Store) MarkRunning(executionID string) error {
	return s.db.Model(&models.Execution{}).
		Where("execution_id = ?", executionID).
		Update("status", models.ExecutionRunning).Error
}

// MarkSuccess transitions an Execution to SUCCESS and stamps timestamp_end.
func (s *Store) MarkSuccess(executionID string) error {
	now := time.Now()
	return s.db.Model(&models.Execution{}).
		Where("execution_id = ?", executionID).
		Updates(map[string]interface{}{
			"status":               models.ExecutionSuccess,
			"timestamp_end":        now,
			"progress_percentage":  100,
		}).Error
}

// MarkFailed transitions an Execution to FAILED, appending err to Errors and
// stamping timestamp_end.
func (s *Store) MarkFailed(executionID string, errMsg string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var execution models.Execution
		if err := tx.Where("execution_id = ?", executionID).First(&execution).Error; err != nil {
			return fmt.Errorf("executionstore: lookup for mark_failed: %w", err)
		}
		execution.AddError(errMsg)
		execution.Status = models.ExecutionFailed
		now := time.Now()
		execution.TimestampEnd = &now
		return tx.Save(&execution).Error
	})
}

// UpdateProgress updates the execution's progress percentage and current
// operation label.
func (s *Store) UpdateProgress(executionID string, pct float64, operation string) error {
	return s.db.Model(&models.Execution{}).
		Where("execution_id = ?", executionID).
		Updates(map[string]interface{}{
			"progress_percentage": pct,
			"current_operation":   operation,
		}).Error
}

// Lookup fetches a single Execution by ID.
func (s *Store) Lookup(executionID string) (*models.Execution, error) {
	var execution models.Execution
	if err := s.db.Where("execution_id = ?", executionID).First(&execution).Error; err != nil {
		return nil, fmt.Errorf("executionstore: lookup: %w", err)
	}
	return &execution, nil
}

// ListFilter narrows ListRecent.
type ListFilter struct {
	Status models.ExecutionStatus // empty = any
	Limit  int                    // 0 = default of 50
}

// ListRecent returns executions ordered newest first, optionally filtered
// by status.
func (s *Store) ListRecent(filter ListFilter) ([]models.Execution, error) {
	limit := filter.Limit
	if limit == 0 {
		limit = 50
	}

	query := s.db.Order("created_at desc").Limit(limit)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var executions []models.Execution
	if err := query.Find(&executions).Error; err != nil {
		return nil, fmt.Errorf("executionstore: list_recent: %w", err)
	}
	return executions, nil
}

// ListForSymbol returns every execution touching the given symbol.
func (s *Store) ListForSymbol(symbol string) ([]models.Execution, error) {
	var executions []models.Execution
	if err := s.db.Where("symbol = ?", symbol).Order("created_at desc").Find(&executions).Error; err != nil {
		return nil, fmt.Errorf("executionstore: list_for_symbol: %w", err)
	}
	return executions, nil
}
