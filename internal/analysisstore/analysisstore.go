// Package analysisstore is the gorm-backed analysis store: one row per
// (execution, symbol, timeframe, strategy-config) task, driven to a
// terminal state by exactly the worker that owns it.
package analysisstore

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"ares_api/internal/models"
)

// Store wraps a *gorm.DB scoped to the analyses table.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by db.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// InsertPendingTask creates a new pending Analysis Task row.
func (s *Store) InsertPendingTask(executionID, symbol, timeframe, config string, strategyConfigID *uint, strategyName string) (int64, error) {
	task := models.AnalysisTask{
		ExecutionID:      executionID,
		Symbol:           symbol,
		Timeframe:        timeframe,
		Config:           config,
		StrategyConfigID: strategyConfigID,
		StrategyName:     strategyName,
		TaskStatus:       models.TaskPending,
		TaskCreatedAt:    time.Now(),
	}
	if err := s.db.Create(&task).Error; err != nil {
		return 0, fmt.Errorf("analysisstore: insert_pending_task: %w", err)
	}
	return task.ID, nil
}

// MarkTaskRunning transitions a task to running and stamps task_started_at.
func (s *Store) MarkTaskRunning(taskID int64) error {
	now := time.Now()
	return s.db.Model(&models.AnalysisTask{}).
		Where("id = ?", taskID).
		Updates(map[string]interface{}{
			"task_status":     models.TaskRunning,
			"task_started_at": now,
		}).Error
}

// TaskResults carries the result fields written on successful completion.
type TaskResults struct {
	TotalTrades    *int
	WinRate        *float64
	TotalReturn    *float64
	SharpeRatio    *float64
	MaxDrawdown    *float64
	AvgLeverage    *float64
	ChartPath      string
	CompressedPath string
}

// MarkTaskCompleted transitions a task to completed with its result fields.
func (s *Store) MarkTaskCompleted(taskID int64, results TaskResults) error {
	now := time.Now()
	return s.db.Model(&models.AnalysisTask{}).
		Where("id = ?", taskID).
		Updates(map[string]interface{}{
			"task_status":       models.TaskCompleted,
			"task_completed_at": now,
			"total_trades":      results.TotalTrades,
			"win_rate":          results.WinRate,
			"total_return":      results.TotalReturn,
			"sharpe_ratio":      results.SharpeRatio,
			"max_drawdown":      results.MaxDrawdown,
			"avg_leverage":      results.AvgLeverage,
			"chart_path":        results.ChartPath,
			"compressed_path":   results.CompressedPath,
			"generated_at":      now,
		}).Error
}

// MarkTaskFailed transitions a single task to failed with an error message,
// truncated to the 500-char cap.
func (s *Store) MarkTaskFailed(taskID int64, errMsg string) error {
	now := time.Now()
	return s.db.Model(&models.AnalysisTask{}).
		Where("id = ?", taskID).
		Updates(map[string]interface{}{
			"task_status":       models.TaskFailed,
			"task_completed_at": now,
			"error_message":     models.TruncateErrorMessage(errMsg),
		}).Error
}

// MarkTaskFailedByExecution updates every pending task for (execution,
// symbol) to failed in one statement — idempotent under retry since it only
// ever matches task_status='pending'. Returns the number of rows updated.
func (s *Store) MarkTaskFailedByExecution(executionID, symbol, errMsg string) (int64, error) {
	now := time.Now()
	result := s.db.Model(&models.AnalysisTask{}).
		Where("execution_id = ? AND symbol = ? AND task_status = ?", executionID, symbol, models.TaskPending).
		Updates(map[string]interface{}{
			"task_status":       models.TaskFailed,
			"task_completed_at": now,
			"error_message":     models.TruncateErrorMessage(errMsg),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("analysisstore: mark_task_failed_by_execution: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// StatusCounts tallies task_status values for one execution.
type StatusCounts struct {
	Pending   int64
	Running   int64
	Completed int64
	Failed    int64
}

// CountByStatus tallies task statuses for one execution.
func (s *Store) CountByStatus(executionID string) (StatusCounts, error) {
	rows, err := s.db.Model(&models.AnalysisTask{}).
		Select("task_status, count(*) as count").
		Where("execution_id = ?", executionID).
		Group("task_status").
		Rows()
	if err != nil {
		return StatusCounts{}, fmt.Errorf("analysisstore: count_by_status: %w", err)
	}
	defer rows.Close()

	var counts StatusCounts
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return StatusCounts{}, fmt.Errorf("analysisstore: count_by_status scan: %w", err)
		}
		switch models.TaskStatus(status) {
		case models.TaskPending:
			counts.Pending = count
		case models.TaskRunning:
			counts.Running = count
		case models.TaskCompleted:
			counts.Completed = count
		case models.TaskFailed:
			counts.Failed = count
		}
	}
	return counts, nil
}

// FetchTasks returns every task for the given execution.
func (s *Store) FetchTasks(executionID string) ([]models.AnalysisTask, error) {
	var tasks []models.AnalysisTask
	if err := s.db.Where("execution_id = ?", executionID).Order("id").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("analysisstore: fetch_tasks: %w", err)
	}
	return tasks, nil
}
