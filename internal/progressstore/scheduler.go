package progressstore

import (
	"github.com/robfig/cron/v3"

	"ares_api/internal/logger"
)

// RetentionScheduler runs CleanupOld(hours) on a cron interval instead of
// an ad-hoc ticker goroutine.
type RetentionScheduler struct {
	cron *cron.Cron
}

// StartRetentionScheduler schedules CleanupOld(retentionHours) to run on
// spec using cron syntax (e.g. "@hourly", "0 */1 * * *"). The returned
// scheduler is running; call Stop to halt it during shutdown.
func (s *Store) StartRetentionScheduler(spec string, retentionHours float64) (*RetentionScheduler, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		removed, err := s.CleanupOld(retentionHours)
		if err != nil {
			logger.Warn("progressstore: scheduled cleanup failed", "error", err.Error())
			return
		}
		if removed > 0 {
			logger.Info("progressstore: scheduled cleanup removed stale records", "removed", removed)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return &RetentionScheduler{cron: c}, nil
}

// Stop halts the scheduler. Safe to call on a nil receiver.
func (r *RetentionScheduler) Stop() {
	if r == nil || r.cron == nil {
		return
	}
	r.cron.Stop()
}
