package coordinator

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"ares_api/internal/concurrency"
)

// loadMonitor samples live CPU/memory pressure and feeds it into an
// AdaptiveBackoff so the worker pool slows its dispatch rate under system
// load instead of always pulling the next job as fast as a worker frees up.
type loadMonitor struct {
	backoff *concurrency.AdaptiveBackoff
}

func newLoadMonitor() *loadMonitor {
	return &loadMonitor{
		backoff: concurrency.NewAdaptiveBackoff(concurrency.DefaultBackoffConfig()),
	}
}

// throttle samples current system load and sleeps the AdaptiveBackoff's
// recommended delay when the host is under pressure. Sampling errors are
// treated as "no pressure" — a worker should never stall because a metrics
// probe failed.
func (m *loadMonitor) throttle() {
	cpuPercent := 0.0
	if samples, err := cpu.Percent(0, false); err == nil && len(samples) > 0 {
		cpuPercent = samples[0]
	}
	memPercent := 0.0
	if vm, err := mem.VirtualMemory(); err == nil {
		memPercent = vm.UsedPercent
	}

	m.backoff.AdjustLoadFactor(cpuPercent, memPercent)
	if cpuPercent < 80 && memPercent < 80 {
		return
	}
	delay := m.backoff.NextDelay()
	if delay > 0 {
		time.Sleep(delay)
	}
}
