// Package progressstore implements the on-disk, lock-coordinated progress
// store: one JSON file per execution under progress/, an advisory
// per-record lock file under locks/, and an optional index hint. Sharing
// progress through the filesystem rather than process memory is what lets
// a separate dashboard process observe workers live.
package progressstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sys/unix"

	"ares_api/internal/concurrency"
	"ares_api/internal/eventbus"
	"ares_api/internal/logger"
	"ares_api/internal/models"
)

const (
	progressDir = "progress"
	locksDir    = "locks"
	indexDir    = "index"
	lockWait    = 5 * time.Second
)

// Store is the file-backed Progress Store rooted at a configurable directory.
type Store struct {
	root string
	bus  eventbus.EventBusInterface
}

// New creates a Store rooted at dir, creating the progress/locks/index
// subdirectories if they don't exist.
func New(dir string) (*Store, error) {
	s := &Store{root: dir}
	for _, sub := range []string{progressDir, locksDir, indexDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("progressstore: create %s: %w", sub, err)
		}
	}
	return s, nil
}

// WithEventBus attaches the optional publish side of the index/active.json
// hint: every successful mutation also publishes to the "progress.updated"
// topic so a watcher can react without polling progress/. Passing nil (the
// default) disables publication entirely; GetAllRecent/GetActiveExecutions
// never depend on it.
func (s *Store) WithEventBus(bus eventbus.EventBusInterface) *Store {
	s.bus = bus
	return s
}

func (s *Store) publish(rec *models.ProgressRecord) {
	if s.bus == nil {
		return
	}
	evt := eventbus.NewProgressUpdatedEvent(rec.ExecutionID, rec.Symbol, string(rec.CurrentStage), string(rec.OverallStatus))
	if err := s.bus.Publish(eventbus.EventTypeProgressUpdated, evt); err != nil {
		logger.Warn("progressstore: event bus publish failed", "execution_id", rec.ExecutionID, "error", err.Error())
	}
}

func (s *Store) recordPath(executionID string) string {
	return filepath.Join(s.root, progressDir, executionID+".json")
}

func (s *Store) lockPath(executionID string) string {
	return filepath.Join(s.root, locksDir, executionID+".lock")
}

// withLock acquires the per-record exclusive file lock, runs fn, and
// releases it. It retries with jittered backoff until lockWait elapses.
func (s *Store) withLock(executionID string, fn func() error) error {
	lockFile, err := os.OpenFile(s.lockPath(executionID), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("progressstore: open lock file: %w", err)
	}
	defer lockFile.Close()

	backoff := concurrency.NewExponentialBackoff(concurrency.BackoffConfig{
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
		Multiplier:   1.8,
		Jitter:       true,
		MaxRetries:   -1,
	})

	deadline := time.Now().Add(lockWait)
	for {
		err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("progressstore: could not acquire lock for %s within %s", executionID, lockWait)
		}
		time.Sleep(backoff.NextDelay())
	}
	defer unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)

	return fn()
}

// readRecord loads the current record, tolerating a missing or corrupt file
// by returning (nil, false, nil) — never an error for that case.
func (s *Store) readRecord(executionID string) (*models.ProgressRecord, bool, error) {
	data, err := os.ReadFile(s.recordPath(executionID))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var rec models.ProgressRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		logger.Warn("progressstore: corrupt record treated as absent", "execution_id", executionID, "error", err.Error())
		return nil, false, nil
	}
	return &rec, true, nil
}

// writeRecord writes rec atomically: write to a .tmp sibling, fsync, then
// rename over the final path, so a concurrent reader never observes a
// partial write.
func (s *Store) writeRecord(executionID string, rec *models.ProgressRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("progressstore: marshal: %w", err)
	}

	finalPath := s.recordPath(executionID)
	tmpPath := finalPath + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("progressstore: create tmp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("progressstore: write tmp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("progressstore: fsync tmp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("progressstore: close tmp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("progressstore: rename into place: %w", err)
	}
	return nil
}

// mutate reads the current record under lock (defaulting to a fresh one if
// absent only when allowCreate is true), applies fn, and writes it back.
func (s *Store) mutate(executionID string, allowCreate bool, fn func(*models.ProgressRecord)) error {
	return s.withLock(executionID, func() error {
		rec, found, err := s.readRecord(executionID)
		if err != nil {
			return err
		}
		if !found {
			if !allowCreate {
				return fmt.Errorf("progressstore: no record for execution %s", executionID)
			}
			rec = &models.ProgressRecord{ExecutionID: executionID}
		}
		fn(rec)
		if err := s.writeRecord(executionID, rec); err != nil {
			return err
		}
		s.publish(rec)
		return nil
	})
}

// StartAnalysis creates a fresh Progress Record for a task that is just
// starting.
func (s *Store) StartAnalysis(symbol, executionID string) (*models.ProgressRecord, error) {
	rec := models.NewProgressRecord(symbol, executionID, time.Now())
	if err := s.withLock(executionID, func() error {
		return s.writeRecord(executionID, rec)
	}); err != nil {
		return nil, err
	}
	s.publish(rec)
	return rec, nil
}

// UpdateStage advances the record's current stage.
func (s *Store) UpdateStage(executionID string, stage models.Stage) error {
	return s.mutate(executionID, false, func(r *models.ProgressRecord) {
		r.CurrentStage = stage
	})
}

// UpdateSupportResistance records the S/R sub-result.
func (s *Store) UpdateSupportResistance(executionID string, result models.SupportResistanceResult) error {
	return s.mutate(executionID, false, func(r *models.ProgressRecord) {
		r.SupportResistance = result
	})
}

// UpdateMLPrediction records the ML prediction sub-result.
func (s *Store) UpdateMLPrediction(executionID string, result models.MLPredictionResult) error {
	return s.mutate(executionID, false, func(r *models.ProgressRecord) {
		r.MLPrediction = result
	})
}

// UpdateBTCCorrelation records the BTC-correlation sub-result.
func (s *Store) UpdateBTCCorrelation(executionID string, result models.BTCCorrelationResult) error {
	return s.mutate(executionID, false, func(r *models.ProgressRecord) {
		r.BTCCorrelation = result
	})
}

// UpdateMarketContext records the market-context sub-result.
func (s *Store) UpdateMarketContext(executionID string, result models.MarketContextResult) error {
	return s.mutate(executionID, false, func(r *models.ProgressRecord) {
		r.MarketContext = result
	})
}

// UpdateLeverageDecision records the leverage-decision sub-result.
func (s *Store) UpdateLeverageDecision(executionID string, result models.LeverageDecisionResult) error {
	return s.mutate(executionID, false, func(r *models.ProgressRecord) {
		r.LeverageDecision = result
	})
}

// CompleteAnalysis finalizes the record as a success.
func (s *Store) CompleteAnalysis(executionID string, signal models.FinalSignal, message string) error {
	return s.mutate(executionID, false, func(r *models.ProgressRecord) {
		r.CurrentStage = models.StageCompleted
		r.OverallStatus = models.OverallSuccess
		r.FinalSignal = signal
		r.FinalMessage = message
	})
}

// FailAnalysis finalizes the record as a failure at the given stage.
func (s *Store) FailAnalysis(executionID string, stage models.Stage, message string) error {
	return s.mutate(executionID, false, func(r *models.ProgressRecord) {
		r.CurrentStage = stage
		r.OverallStatus = models.OverallFailed
		r.FinalSignal = models.SignalNone
		r.FailureStage = stage
		r.FinalMessage = message
	})
}

// GetProgress is lock-free: a parse failure or missing file both report
// "absent" rather than raising.
func (s *Store) GetProgress(executionID string) (*models.ProgressRecord, bool) {
	rec, found, err := s.readRecord(executionID)
	if err != nil {
		return nil, false
	}
	return rec, found
}

// GetAllRecent enumerates progress/, filters by start_time within the last
// `hours`, sorted newest first. It tolerates files that disappear mid-scan.
func (s *Store) GetAllRecent(hours float64) ([]*models.ProgressRecord, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, progressDir))
	if err != nil {
		return nil, fmt.Errorf("progressstore: read progress dir: %w", err)
	}

	cutoff := time.Now().Add(-time.Duration(hours * float64(time.Hour)))
	var recent []*models.ProgressRecord

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		executionID := trimJSONExt(entry.Name())
		rec, found, err := s.readRecord(executionID)
		if err != nil || !found {
			continue // tolerate disappearance mid-scan
		}
		if rec.StartTime.Before(cutoff) {
			continue
		}
		recent = append(recent, rec)
	}

	sort.Slice(recent, func(i, j int) bool {
		return recent[i].StartTime.After(recent[j].StartTime)
	})
	return recent, nil
}

// GetActiveExecutions returns records whose overall status is still running.
func (s *Store) GetActiveExecutions() ([]*models.ProgressRecord, error) {
	all, err := s.GetAllRecent(24 * 365) // effectively unbounded window
	if err != nil {
		return nil, err
	}
	var active []*models.ProgressRecord
	for _, rec := range all {
		if rec.OverallStatus == models.OverallRunning {
			active = append(active, rec)
		}
	}
	return active, nil
}

// CleanupOld removes records whose file mtime is older than the threshold.
func (s *Store) CleanupOld(hours float64) (int, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, progressDir))
	if err != nil {
		return 0, fmt.Errorf("progressstore: read progress dir: %w", err)
	}

	cutoff := time.Now().Add(-time.Duration(hours * float64(time.Hour)))
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		executionID := trimJSONExt(entry.Name())
		if err := os.Remove(s.recordPath(executionID)); err != nil && !os.IsNotExist(err) {
			logger.Warn("progressstore: cleanup failed to remove record", "execution_id", executionID, "error", err.Error())
			continue
		}
		os.Remove(s.lockPath(executionID))
		removed++
	}

	return removed, nil
}

func trimJSONExt(name string) string {
	const ext = ".json"
	if len(name) > len(ext) && name[len(name)-len(ext):] == ext {
		return name[:len(name)-len(ext)]
	}
	return name
}
