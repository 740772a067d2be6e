package filterchain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ares_api/internal/dataprovider"
	"ares_api/internal/logger"
	"ares_api/internal/models"
)

// Trade is constructed only when every filter in the chain passes for an
// evaluation point.
type Trade struct {
	EvaluationTime  time.Time
	EntryPrice      float64
	StrategyName    string
	Leverage        float64
	ProfitPotential float64
	DownsideRisk    float64
	RiskReward      float64
	Confidence      float64
}

// FilterStats is the per-filter slice of the chain's running statistics.
type FilterStats struct {
	ExecutionCount int
	SuccessCount   int
	FailureCount   int
}

func (s FilterStats) SuccessRate() float64 {
	if s.ExecutionCount == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.ExecutionCount)
}

// Statistics is the chain's incrementally-maintained run summary: total
// evaluations, valid trades, per-filter exclusion counts, wall-clock time,
// and per-filter execution tallies, with efficiency metrics (pass rate /
// exclusion rate / average evaluation time) derived on demand.
type Statistics struct {
	mu sync.Mutex

	TotalEvaluations    int
	ValidTrades         int
	PerFilterExclusions [10]int // index 1..9 used, 0 unused
	ExecutionTime       time.Duration
	PerFilter           map[string]FilterStats
}

func newStatistics() *Statistics {
	return &Statistics{PerFilter: make(map[string]FilterStats)}
}

// EfficiencyMetrics reports pass rate, total/exclusion rate, and average
// evaluation time, derived rather than stored so they never drift from the
// raw counts.
type EfficiencyMetrics struct {
	PassRate            float64
	TotalExcluded        int
	ExclusionRate        float64
	AvgEvaluationTime    time.Duration
}

func (s *Statistics) EfficiencyMetrics() EfficiencyMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.TotalEvaluations == 0 {
		return EfficiencyMetrics{}
	}
	excluded := s.TotalEvaluations - s.ValidTrades
	return EfficiencyMetrics{
		PassRate:          float64(s.ValidTrades) / float64(s.TotalEvaluations) * 100,
		TotalExcluded:     excluded,
		ExclusionRate:     float64(excluded) / float64(s.TotalEvaluations) * 100,
		AvgEvaluationTime: s.ExecutionTime / time.Duration(s.TotalEvaluations),
	}
}

func (s *Statistics) snapshotFilter(name string) FilterStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PerFilter[name]
}

func (s *Statistics) recordExecution(name string, passed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs := s.PerFilter[name]
	fs.ExecutionCount++
	if passed {
		fs.SuccessCount++
	} else {
		fs.FailureCount++
	}
	s.PerFilter[name] = fs
}

// Chain runs an ordered sequence of Filters against evaluation points,
// stopping each point at the first rejection.
type Chain struct {
	filters    []Filter
	statistics *Statistics
}

// NewChain builds a chain from an ordered filter slice. Callers assemble
// the nine-filter default order via filters.DefaultChain(...); tests may
// pass a shorter slice to exercise chain mechanics in isolation.
func NewChain(fs []Filter) *Chain {
	return &Chain{filters: fs, statistics: newStatistics()}
}

// Statistics returns the chain's running statistics snapshot.
func (c *Chain) Statistics() *Statistics {
	return c.statistics
}

// ResetStatistics clears all counters, for backtests sharing one chain
// instance.
func (c *Chain) ResetStatistics() {
	c.statistics = newStatistics()
}

// ExecuteFiltering runs the chain across every evaluation point, returning
// the trades that passed all nine filters. progress, if non-nil, is called
// periodically (every 100 points, and on the final point) with (current,
// total, validSoFar).
func (c *Chain) ExecuteFiltering(ctx context.Context, data *dataprovider.Provider, strategy models.StrategyConfiguration, evalTimes []time.Time, progress func(current, total, valid int)) []Trade {
	start := time.Now()
	var trades []Trade

	c.statistics.mu.Lock()
	c.statistics.TotalEvaluations = len(evalTimes)
	c.statistics.mu.Unlock()

	for idx, evalTime := range evalTimes {
		result, failedAt, perFilter := c.executeOne(ctx, data, strategy, evalTime)
		if result.Passed {
			trade := c.simulateTrade(ctx, data, strategy, evalTime, perFilter)
			if trade != nil {
				trades = append(trades, *trade)
			}
		} else if failedAt >= 1 && failedAt <= 9 {
			c.statistics.mu.Lock()
			c.statistics.PerFilterExclusions[failedAt]++
			c.statistics.mu.Unlock()
		}

		if progress != nil && (idx%100 == 0 || idx == len(evalTimes)-1) {
			progress(idx+1, len(evalTimes), len(trades))
		}
	}

	c.statistics.mu.Lock()
	c.statistics.ValidTrades = len(trades)
	c.statistics.ExecutionTime = time.Since(start)
	c.statistics.mu.Unlock()

	return trades
}

// executeOne runs every filter in order for a single evaluation point,
// stopping at the first failure. Returns the 1-indexed position of the
// filter that failed (or 0 if every filter passed), plus every filter's
// own Metrics keyed by filter name so a fully-passed point can hand its
// real per-filter numbers (leverage, risk/reward, ...) to simulateTrade
// instead of re-deriving placeholder values.
func (c *Chain) executeOne(ctx context.Context, data *dataprovider.Provider, strategy models.StrategyConfiguration, evalTime time.Time) (Result, int, map[string]map[string]interface{}) {
	perFilter := make(map[string]map[string]interface{}, len(c.filters))
	for i, f := range c.filters {
		position := i + 1
		result := c.runWithTimeout(ctx, f, data, strategy, evalTime)
		c.statistics.recordExecution(f.Name(), result.Passed)
		perFilter[f.Name()] = result.Metrics

		if !result.Passed {
			return Result{
				Passed: false,
				Reason: fmt.Sprintf("filter %d (%s): %s", position, f.Name(), result.Reason),
				Metrics: map[string]interface{}{
					"failed_at_filter": position,
					"filter_name":      f.Name(),
					"filter_reason":    result.Reason,
					"filter_metrics":   result.Metrics,
				},
				Timestamp: evalTime,
			}, position, perFilter
		}
	}
	return Result{Passed: true, Reason: "all filters passed", Metrics: map[string]interface{}{"filters_passed": len(c.filters)}}, 0, perFilter
}

// runWithTimeout executes a filter, recovering a panic as a failing result
// so one bad evaluation point never aborts the walk, and logging a soft
// timeout when the filter's own max_execution_time budget is exceeded.
func (c *Chain) runWithTimeout(ctx context.Context, f Filter, data *dataprovider.Provider, strategy models.StrategyConfiguration, evalTime time.Time) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{Passed: false, Reason: fmt.Sprintf("execution error: %v", r)}
		}
	}()

	start := time.Now()
	result = f.Execute(ctx, data, strategy, evalTime)
	elapsed := time.Since(start)

	if elapsed > f.MaxExecutionTime() {
		logger.Warn("filterchain: filter exceeded its execution budget",
			"filter", f.Name(), "elapsed", elapsed.String(), "budget", f.MaxExecutionTime().String())
	}
	return result
}

// simulateTrade builds the trade record for a fully-passed evaluation
// point. The leverage filter (Filter 7) and risk_reward filter (Filter 8)
// compute real metrics during the chain, so the trade pulls their numbers
// out of perFilter instead of re-deriving them. perFilter may be nil or
// missing an entry (e.g. a test chain built from stub filters with no
// Metrics) — each lookup falls back to a conservative default.
func (c *Chain) simulateTrade(ctx context.Context, data *dataprovider.Provider, strategy models.StrategyConfiguration, evalTime time.Time, perFilter map[string]map[string]interface{}) *Trade {
	snapshot, err := data.Market.SnapshotAt(ctx, evalTime)
	if err != nil {
		logger.Warn("filterchain: trade simulation failed to read market snapshot", "error", err.Error())
		return nil
	}

	leverage := strategy.BaseLeverage()
	confidence := 0.75
	if m := perFilter["leverage"]; m != nil {
		if v, ok := m["optimal_leverage"].(float64); ok {
			leverage = v
		}
		if v, ok := m["confidence"].(float64); ok {
			confidence = v
		}
	}

	profitPotential := 0.05
	downsideRisk := 0.03
	riskReward := profitPotential / downsideRisk
	if m := perFilter["risk_reward"]; m != nil {
		if v, ok := m["potential_profit"].(float64); ok {
			profitPotential = v
		}
		if v, ok := m["potential_loss"].(float64); ok {
			downsideRisk = v
		}
		if v, ok := m["ratio"].(float64); ok {
			riskReward = v
		} else if downsideRisk > 0 {
			riskReward = profitPotential / downsideRisk
		}
	}

	return &Trade{
		EvaluationTime:  evalTime,
		EntryPrice:      snapshot.Price,
		StrategyName:    strategy.BaseStrategy,
		Leverage:        leverage,
		ProfitPotential: profitPotential,
		DownsideRisk:    downsideRisk,
		RiskReward:      riskReward,
		Confidence:      confidence,
	}
}
