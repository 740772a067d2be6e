package cascade

import (
	"testing"
	"time"

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
	if err := db.AutoMigrate(&models.Execution{}, &models.AnalysisTask{}); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func seedExecution(t *testing.T, db *gorm.DB, id string, status models.ExecutionStatus, taskCount int) {
	t.Helper()
	exec := models.Execution{
		ExecutionID:     id,
		ExecutionType:   models.ExecutionTypeSymbolAddition,
		Symbol:          "BTCUSDT",
		Status:          status,
		TimestampStart:  time.Now(),
	}
	if err := db.Create(&exec).Error; err != nil {
		t.Fatalf("seed execution: %v", err)
	}
	for i := 0; i < taskCount; i++ {
		task := models.AnalysisTask{
			ExecutionID: id,
			Symbol:      "BTCUSDT",
			Timeframe:   "1h",
			Config:      "Conservative_ML",
			TaskStatus:  models.TaskCompleted,
		}
		if err := db.Create(&task).Error; err != nil {
			t.Fatalf("seed task: %v", err)
		}
	}
}

func TestDeleteEmptyListIsNoop(t *testing.T) {
	store := New(setupTestDB(t))
	report, err := store.Delete(nil, Options{})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if report.ExecutionLogsDeleted != 0 || report.AnalysesDeleted != 0 {
		t.Fatalf("expected empty report, got %+v", report)
	}
}

func TestDeleteRefusesRunningExecution(t *testing.T) {
	db := setupTestDB(t)
	seedExecution(t, db, "exec-running", models.ExecutionRunning, 3)
	store := New(db)

	_, err := store.Delete([]string{"exec-running"}, Options{SkipBackup: true})
	if err == nil {
		t.Fatalf("expected ErrExecutionRunning")
	}
	if _, ok := err.(*ErrExecutionRunning); !ok {
		t.Fatalf("expected *ErrExecutionRunning, got %T: %v", err, err)
	}

	var remaining int64
	db.Model(&models.Execution{}).Where("execution_id = ?", "exec-running").Count(&remaining)
	if remaining != 1 {
		t.Fatalf("running execution should not have been touched")
	}
}

func TestDeleteRemovesRowsAndSkipsRunning(t *testing.T) {
	db := setupTestDB(t)
	seedExecution(t, db, "exec-running", models.ExecutionRunning, 3)
	seedExecution(t, db, "exec-done", models.ExecutionSuccess, 7)
	store := New(db)

	report, err := store.Delete([]string{"exec-running", "exec-done"}, Options{SkipBackup: true})
	if err != nil {
		t.Fatalf("Delete: %v, want nil — a RUNNING id in the batch should only be skipped, not abort the rest", err)
	}
	if report.ExecutionLogsDeleted != 1 {
		t.Fatalf("execution_logs_deleted = %d, want 1 (exec-done only)", report.ExecutionLogsDeleted)
	}
	if report.AnalysesDeleted != 7 {
		t.Fatalf("analyses_deleted = %d, want 7", report.AnalysesDeleted)
	}
	if len(report.Impact.RunningExecutionIDs) != 1 || report.Impact.RunningExecutionIDs[0] != "exec-running" {
		t.Fatalf("expected exec-running reported as skipped, got %v", report.Impact.RunningExecutionIDs)
	}

	var runningCount int64
	db.Model(&models.Execution{}).Where("execution_id = ?", "exec-running").Count(&runningCount)
	if runningCount != 1 {
		t.Fatalf("exec-running should never be touched")
	}

	var runningTaskCount int64
	db.Model(&models.AnalysisTask{}).Where("execution_id = ?", "exec-running").Count(&runningTaskCount)
	if runningTaskCount != 3 {
		t.Fatalf("exec-running's analysis rows should never be touched, got %d", runningTaskCount)
	}

	var doneCount int64
	db.Model(&models.Execution{}).Where("execution_id = ?", "exec-done").Count(&doneCount)
	if doneCount != 0 {
		t.Fatalf("exec-done should have been deleted")
	}

	var doneTaskCount int64
	db.Model(&models.AnalysisTask{}).Where("execution_id = ?", "exec-done").Count(&doneTaskCount)
	if doneTaskCount != 0 {
		t.Fatalf("expected all analysis rows for exec-done to be gone")
	}
}

func TestDeleteDryRunMakesNoMutations(t *testing.T) {
	db := setupTestDB(t)
	seedExecution(t, db, "exec-done", models.ExecutionSuccess, 7)
	store := New(db)

	report, err := store.Delete([]string{"exec-done"}, Options{DryRun: true})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if report.ExecutionLogsDeleted != 1 || report.AnalysesDeleted != 7 {
		t.Fatalf("dry run forecast mismatch: %+v", report)
	}

	var execCount, taskCount int64
	db.Model(&models.Execution{}).Where("execution_id = ?", "exec-done").Count(&execCount)
	db.Model(&models.AnalysisTask{}).Where("execution_id = ?", "exec-done").Count(&taskCount)
	if execCount != 1 || taskCount != 7 {
		t.Fatalf("dry run must not mutate: exec=%d tasks=%d", execCount, taskCount)
	}
}

func TestAnalyzeImpactFlagsMissingIDs(t *testing.T) {
	db := setupTestDB(t)
	seedExecution(t, db, "exec-done", models.ExecutionSuccess, 2)
	store := New(db)

	impact, err := store.AnalyzeImpact([]string{"exec-done", "exec-ghost"})
	if err != nil {
		t.Fatalf("AnalyzeImpact: %v", err)
	}
	if len(impact.MissingExecutionIDs) != 1 || impact.MissingExecutionIDs[0] != "exec-ghost" {
		t.Fatalf("missing ids = %v, want [exec-ghost]", impact.MissingExecutionIDs)
	}
	if impact.AnalysesAffected != 2 {
		t.Fatalf("analyses_affected = %d, want 2", impact.AnalysesAffected)
	}
	if impact.BySymbol["BTCUSDT"] != 2 {
		t.Fatalf("by_symbol[BTCUSDT] = %d, want 2", impact.BySymbol["BTCUSDT"])
	}
}
