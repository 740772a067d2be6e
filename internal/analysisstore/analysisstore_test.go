package analysisstore

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
	if err := db.AutoMigrate(&models.AnalysisTask{}); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func TestInsertPendingTaskThenComplete(t *testing.T) {
	store := New(setupTestDB(t))

	taskID, err := store.InsertPendingTask("exec-1", "BTCUSDT", "1h", "Conservative_ML", nil, "Conservative_ML")
	if err != nil {
		t.Fatalf("InsertPendingTask: %v", err)
	}

	if err := store.MarkTaskRunning(taskID); err != nil {
		t.Fatalf("MarkTaskRunning: %v", err)
	}

	trades := 12
	winRate := 0.6
	if err := store.MarkTaskCompleted(taskID, TaskResults{TotalTrades: &trades, WinRate: &winRate}); err != nil {
		t.Fatalf("MarkTaskCompleted: %v", err)
	}

	tasks, err := store.FetchTasks("exec-1")
	if err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].TaskStatus != models.TaskCompleted {
		t.Fatalf("task_status = %v, want %v", tasks[0].TaskStatus, models.TaskCompleted)
	}
	if tasks[0].TotalTrades == nil || *tasks[0].TotalTrades != 12 {
		t.Fatalf("total_trades = %v, want 12", tasks[0].TotalTrades)
	}
}

func TestMarkTaskFailedByExecutionOnlyTouchesPending(t *testing.T) {
	store := New(setupTestDB(t))

	pendingID, err := store.InsertPendingTask("exec-2", "BTCUSDT", "1h", "Conservative_ML", nil, "Conservative_ML")
	if err != nil {
		t.Fatalf("InsertPendingTask: %v", err)
	}
	completedID, err := store.InsertPendingTask("exec-2", "BTCUSDT", "4h", "Full_ML", nil, "Full_ML")
	if err != nil {
		t.Fatalf("InsertPendingTask: %v", err)
	}
	trades := 5
	if err := store.MarkTaskCompleted(completedID, TaskResults{TotalTrades: &trades}); err != nil {
		t.Fatalf("MarkTaskCompleted: %v", err)
	}

	updated, err := store.MarkTaskFailedByExecution("exec-2", "BTCUSDT", "worker crashed")
	if err != nil {
		t.Fatalf("MarkTaskFailedByExecution: %v", err)
	}
	if updated != 1 {
		t.Fatalf("updated = %d, want 1", updated)
	}

	tasks, err := store.FetchTasks("exec-2")
	if err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}
	for _, task := range tasks {
		if task.ID == pendingID && task.TaskStatus != models.TaskFailed {
			t.Fatalf("pending task should now be failed, got %v", task.TaskStatus)
		}
		if task.ID == completedID && task.TaskStatus != models.TaskCompleted {
			t.Fatalf("completed task should be untouched, got %v", task.TaskStatus)
		}
	}
}

func TestMarkTaskFailedByExecutionOnZeroPendingIsNoop(t *testing.T) {
	store := New(setupTestDB(t))

	updated, err := store.MarkTaskFailedByExecution("exec-none", "BTCUSDT", "n/a")
	if err != nil {
		t.Fatalf("MarkTaskFailedByExecution: %v", err)
	}
	if updated != 0 {
		t.Fatalf("updated = %d, want 0", updated)
	}
}

func TestCountByStatus(t *testing.T) {
	store := New(setupTestDB(t))

	id1, _ := store.InsertPendingTask("exec-3", "BTCUSDT", "1h", "Conservative_ML", nil, "Conservative_ML")
	id2, _ := store.InsertPendingTask("exec-3", "BTCUSDT", "4h", "Full_ML", nil, "Full_ML")
	if err := store.MarkTaskRunning(id1); err != nil {
		t.Fatalf("MarkTaskRunning: %v", err)
	}
	if err := store.MarkTaskFailed(id2, "decode error"); err != nil {
		t.Fatalf("MarkTaskFailed: %v", err)
	}

	counts, err := store.CountByStatus("exec-3")
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts.Running != 1 || counts.Failed != 1 {
		t.Fatalf("counts = %+v, want running=1 failed=1", counts)
	}
}

func TestMarkTaskFailedTruncatesErrorMessage(t *testing.T) {
	store := New(setupTestDB(t))
	taskID, _ := store.InsertPendingTask("exec-4", "BTCUSDT", "1h", "Conservative_ML", nil, "Conservative_ML")

	longMsg := make([]byte, 600)
	for i := range longMsg {
		longMsg[i] = 'x'
	}
	if err := store.MarkTaskFailed(taskID, string(longMsg)); err != nil {
		t.Fatalf("MarkTaskFailed: %v", err)
	}

	tasks, _ := store.FetchTasks("exec-4")
	if len(tasks[0].ErrorMessage) != 500 {
		t.Fatalf("error_message length = %d, want 500", len(tasks[0].ErrorMessage))
	}
}
