// Package cascade implements cascade deletion: removing an execution and
// every dependent Analysis Task row and on-disk artifact, atomically, with
// an optional backup, via gorm transactions over whichever driver backs
// the Execution Log / Analysis Store.
package cascade

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/gorm"

	"ares_api/internal/logger"
	"ares_api/internal/models"
)

// ErrExecutionRunning is returned when every requested execution is
// currently RUNNING; live state is never force-deleted.
type ErrExecutionRunning struct {
	ExecutionID string
}

func (e *ErrExecutionRunning) Error() string {
	return fmt.Sprintf("cascade: execution %s is in progress", e.ExecutionID)
}

// Options controls one Delete call.
type Options struct {
	DryRun      bool
	DeleteFiles bool
	SkipBackup  bool
	BackupRoot  string // defaults to "./backups" when the backup step runs (SkipBackup false)
}

// ImpactAnalysis is the pre-flight report of what a deletion would touch.
type ImpactAnalysis struct {
	ExecutionsFound    []models.Execution
	MissingExecutionIDs []string
	RunningExecutionIDs []string

	AnalysesAffected int
	BySymbol         map[string]int
	ByConfig         map[string]int

	ChartFiles      []string
	CompressedFiles []string
	TotalFileBytes  int64

	Warnings []string
}

// Report is the outcome of a Delete call.
type Report struct {
	Impact ImpactAnalysis

	DryRun              bool
	ExecutionLogsDeleted int
	AnalysesDeleted      int
	FilesDeleted         int
	FilesBytesFreed      int64
	BackupDir            string
	Errors               []string
}

// Store performs cascade deletion against the Execution Log / Analysis
// Store tables. Both live in db (either because they share one physical
// database, or because db has ATTACHed the second one) so a single
// *gorm.DB transaction can see both tables.
type Store struct {
	db *gorm.DB
}

// New builds a Store against db.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AnalyzeImpact computes ImpactAnalysis for the given execution ids without
// mutating anything.
func (s *Store) AnalyzeImpact(executionIDs []string) (ImpactAnalysis, error) {
	impact := ImpactAnalysis{
		BySymbol: map[string]int{},
		ByConfig: map[string]int{},
	}
	if len(executionIDs) == 0 {
		return impact, nil
	}

	var executions []models.Execution
	if err := s.db.Where("execution_id IN ?", executionIDs).Find(&executions).Error; err != nil {
		return impact, fmt.Errorf("cascade: lookup executions: %w", err)
	}
	impact.ExecutionsFound = executions

	found := make(map[string]bool, len(executions))
	for _, e := range executions {
		found[e.ExecutionID] = true
		if e.Status == models.ExecutionRunning {
			impact.RunningExecutionIDs = append(impact.RunningExecutionIDs, e.ExecutionID)
		}
	}
	for _, id := range executionIDs {
		if !found[id] {
			impact.MissingExecutionIDs = append(impact.MissingExecutionIDs, id)
		}
	}
	if len(impact.MissingExecutionIDs) > 0 {
		impact.Warnings = append(impact.Warnings, fmt.Sprintf("execution_id(s) not found: %v", impact.MissingExecutionIDs))
	}
	if len(impact.RunningExecutionIDs) > 0 {
		impact.Warnings = append(impact.Warnings, fmt.Sprintf("execution_id(s) currently RUNNING, will be skipped: %v", impact.RunningExecutionIDs))
	}

	if len(found) == 0 {
		return impact, nil
	}

	deletable := deletableIDs(executions)
	if len(deletable) == 0 {
		return impact, nil
	}

	var tasks []models.AnalysisTask
	if err := s.db.Where("execution_id IN ?", deletable).Find(&tasks).Error; err != nil {
		return impact, fmt.Errorf("cascade: lookup analysis tasks: %w", err)
	}
	impact.AnalysesAffected = len(tasks)

	for _, t := range tasks {
		impact.BySymbol[t.Symbol]++
		impact.ByConfig[t.Config]++
		if t.ChartPath != "" {
			if fi, err := os.Stat(t.ChartPath); err == nil {
				impact.ChartFiles = append(impact.ChartFiles, t.ChartPath)
				impact.TotalFileBytes += fi.Size()
			}
		}
		if t.CompressedPath != "" {
			if fi, err := os.Stat(t.CompressedPath); err == nil {
				impact.CompressedFiles = append(impact.CompressedFiles, t.CompressedPath)
				impact.TotalFileBytes += fi.Size()
			}
		}
	}

	return impact, nil
}

// deletableIDs excludes any execution currently RUNNING from the set a
// deletion actually touches. Delete and AnalyzeImpact both use it, so a dry
// run forecast covers exactly the subset a real run deletes.
func deletableIDs(executions []models.Execution) []string {
	ids := make([]string, 0, len(executions))
	for _, e := range executions {
		if e.Status != models.ExecutionRunning {
			ids = append(ids, e.ExecutionID)
		}
	}
	return ids
}

// Delete runs the full cascade deletion sequence: impact analysis, backup,
// analysis rows, artifact files, execution rows, vacuum. An empty
// executionIDs list is a no-op that returns an empty Report. A RUNNING
// execution in the batch is never force-deleted, but that only removes it
// from the batch — the rest of the requested ids are still deleted.
// ErrExecutionRunning is returned only when that leaves nothing deletable
// at all (every requested execution found is RUNNING), since then there is
// nothing left for the call to do.
func (s *Store) Delete(executionIDs []string, opts Options) (Report, error) {
	report := Report{DryRun: opts.DryRun}
	if len(executionIDs) == 0 {
		return report, nil
	}

	impact, err := s.AnalyzeImpact(executionIDs)
	if err != nil {
		return report, err
	}
	report.Impact = impact

	if len(impact.ExecutionsFound) == 0 {
		return report, nil
	}

	deletable := deletableIDs(impact.ExecutionsFound)
	if len(deletable) == 0 {
		return report, &ErrExecutionRunning{ExecutionID: impact.RunningExecutionIDs[0]}
	}

	if opts.DryRun {
		report.ExecutionLogsDeleted = len(deletable)
		report.AnalysesDeleted = impact.AnalysesAffected
		if opts.DeleteFiles {
			report.FilesDeleted = len(impact.ChartFiles) + len(impact.CompressedFiles)
			report.FilesBytesFreed = impact.TotalFileBytes
		}
		if !opts.SkipBackup {
			report.BackupDir = "(dry run - no backup taken)"
		}
		return report, nil
	}

	if !opts.SkipBackup {
		dir, err := s.backup(deletable, opts.BackupRoot)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("backup failed: %v", err))
			return report, fmt.Errorf("cascade: backup: %w", err)
		}
		report.BackupDir = dir
	}

	// Analysis rows first, inside one transaction: analyses must be gone
	// before execution_logs so a crash mid-sequence never leaves an
	// orphaned analyses row.
	var analysesDeleted int64
	err = s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("execution_id IN ?", deletable).Delete(&models.AnalysisTask{})
		if result.Error != nil {
			return fmt.Errorf("delete analyses: %w", result.Error)
		}
		analysesDeleted = result.RowsAffected
		return nil
	})
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return report, err
	}
	report.AnalysesDeleted = int(analysesDeleted)

	// Artifact files next. A per-file failure is recorded and does not
	// block the rest.
	if opts.DeleteFiles {
		deleted, freed, fileErrs := deleteFiles(append(impact.ChartFiles, impact.CompressedFiles...))
		report.FilesDeleted = deleted
		report.FilesBytesFreed = freed
		report.Errors = append(report.Errors, fileErrs...)
	}

	// Execution rows last, only after the analyses delete succeeded.
	var executionsDeleted int64
	err = s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("execution_id IN ?", deletable).Delete(&models.Execution{})
		if result.Error != nil {
			return fmt.Errorf("delete executions: %w", result.Error)
		}
		executionsDeleted = result.RowsAffected
		return nil
	})
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return report, err
	}
	report.ExecutionLogsDeleted = int(executionsDeleted)

	if err := s.db.Exec("VACUUM").Error; err != nil {
		logger.Warn("cascade: vacuum failed", "error", err.Error())
		report.Errors = append(report.Errors, fmt.Sprintf("vacuum failed: %v", err))
	}

	return report, nil
}

// backup copies the backing database to a timestamped directory with a
// manifest. When sqlite-backed, the database file is copied to a single
// `database_backup.db`; for a server-based engine (postgres) this instead
// writes a manifest-only backup recording the affected row ids, since
// file-copy backup does not apply to a networked database.
func (s *Store) backup(executionIDs []string, root string) (string, error) {
	if root == "" {
		root = "backups"
	}
	timestamp := time.Now().UTC().Format("20060102_150405")
	dir := filepath.Join(root, fmt.Sprintf("cascade_deletion_%s", timestamp))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cascade: create backup dir: %w", err)
	}

	manifest := map[string]interface{}{
		"timestamp":             timestamp,
		"target_execution_ids":  executionIDs,
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if dataSourceName := sqliteFilePath(s.db); dataSourceName != "" {
			if data, readErr := os.ReadFile(dataSourceName); readErr == nil {
				backupPath := filepath.Join(dir, "database_backup.db")
				if writeErr := os.WriteFile(backupPath, data, 0o644); writeErr == nil {
					manifest["database_backup"] = backupPath
				}
			}
		}
		_ = sqlDB.Ping()
	}

	manifestPath := filepath.Join(dir, "backup_info.json")
	if err := writeJSON(manifestPath, manifest); err != nil {
		return dir, fmt.Errorf("cascade: write manifest: %w", err)
	}
	return dir, nil
}

func deleteFiles(paths []string) (deleted int, bytesFreed int64, errs []string) {
	for _, p := range paths {
		fi, statErr := os.Stat(p)
		if statErr != nil {
			continue
		}
		if err := os.Remove(p); err != nil {
			errs = append(errs, fmt.Sprintf("delete %s: %v", p, err))
			continue
		}
		deleted++
		bytesFreed += fi.Size()
	}
	return deleted, bytesFreed, errs
}
