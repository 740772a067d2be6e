// Package coordinator implements the symbol-addition coordinator: the
// fan-out entry point that turns one "add a symbol" request into a
// pre-materialized grid of Analysis Tasks, dispatches them to a bounded
// worker pool running the Orchestrator, and drives the owning Execution to
// a terminal status.
package coordinator

import (
	"context"
	"fmt"
	"regexp"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"ares_api/internal/analysisresult"
	"ares_api/internal/analysisstore"
	"ares_api/internal/concurrency"
	"ares_api/internal/executionstore"
	"ares_api/internal/logger"
	"ares_api/internal/models"
	"ares_api/internal/notifier"
	"ares_api/internal/orchestrator"
	"ares_api/internal/paramchannel"
	"ares_api/internal/strategycatalog"
)

var tracer = otel.Tracer("ares_api/internal/coordinator")

// symbolPattern accepts bare ticker symbols (e.g. "BTCUSDT").
var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{3,20}$`)

func validateSymbol(symbol string) (string, error) {
	if !symbolPattern.MatchString(symbol) {
		return "", fmt.Errorf("coordinator: invalid symbol shape %q", symbol)
	}
	return symbol, nil
}

// maxPoolSize caps the worker pool regardless of how many CPUs the host
// reports.
const maxPoolSize = 4

// Request is the input to AddSymbol.
type Request struct {
	Symbol              string
	ExecutionMode       models.ExecutionMode
	SelectedStrategyIDs []uint
	FilterParams        map[string]interface{}

	// CustomPeriod, when set, runs every resolved strategy as a backtest
	// trade-walk across the period instead of a single live evaluation.
	CustomPeriod *orchestrator.Period
}

// Coordinator owns a worker pool shared by every AddSymbol call. A single
// value is safe to reuse across requests; Cancel affects every in-flight
// fan-out.
type Coordinator struct {
	executions *executionstore.Store
	analyses   *analysisstore.Store
	strategies *strategycatalog.Store
	work       *orchestrator.Orchestrator
	notify     *notifier.Notifier

	poolSize int
	stopped  *concurrency.AtomicCounter // 0 = scheduling new tasks, 1 = stopped
	load     *loadMonitor
}

// New builds a Coordinator. poolSize defaults to min(runtime.NumCPU(), 4).
// notify may be nil, in which case terminal events are never published
// (equivalent to an unconfigured webhook sink).
func New(executions *executionstore.Store, analyses *analysisstore.Store, strategies *strategycatalog.Store, work *orchestrator.Orchestrator, notify *notifier.Notifier) *Coordinator {
	pool := runtime.NumCPU()
	if pool > maxPoolSize {
		pool = maxPoolSize
	}
	if pool < 1 {
		pool = 1
	}
	return &Coordinator{
		executions: executions,
		analyses:   analyses,
		strategies: strategies,
		work:       work,
		notify:     notify,
		poolSize:   pool,
		stopped:    concurrency.NewAtomicCounter(0),
		load:       newLoadMonitor(),
	}
}

// WithPoolSize overrides the worker pool width computed in New, e.g. from
// config.Config.WorkerPoolSize. n <= 0 leaves the existing pool size alone.
func (c *Coordinator) WithPoolSize(n int) *Coordinator {
	if n > 0 {
		c.poolSize = n
	}
	return c
}

// Cancel stops the Coordinator from dispatching any task not yet handed to
// a worker. Tasks already running continue to completion uninterrupted:
// cancellation only gates scheduling, it does not reach into an in-flight
// task's context.
func (c *Coordinator) Cancel() {
	c.stopped.Store(1)
}

// Resume clears a prior Cancel, allowing new AddSymbol calls to schedule
// tasks again.
func (c *Coordinator) Resume() {
	c.stopped.Store(0)
}

func (c *Coordinator) cancelled() bool {
	return c.stopped.Load() != 0
}

// AddSymbol validates the request, resolves the strategy set, creates the
// Execution row, and pre-materializes one pending task per strategy — all
// synchronously, so the full task grid is visible to the dashboard the
// moment this returns. The dispatch loop runs in the background; the
// caller is never blocked on the batch completing.
func (c *Coordinator) AddSymbol(ctx context.Context, req Request) (string, error) {
	symbol, err := validateSymbol(req.Symbol)
	if err != nil {
		return "", err
	}

	if running, err := c.hasRunningDuplicate(symbol, req.ExecutionMode); err != nil {
		return "", fmt.Errorf("coordinator: duplicate check: %w", err)
	} else if running {
		return "", fmt.Errorf("coordinator: an execution for %s in %s mode is already running", symbol, req.ExecutionMode)
	}

	strategies, err := c.resolveStrategies(req.ExecutionMode, req.SelectedStrategyIDs)
	if err != nil {
		return "", err
	}
	if len(strategies) == 0 {
		return "", fmt.Errorf("coordinator: no active strategies resolved for mode %s", req.ExecutionMode)
	}

	resolvedIDs := make([]int, 0, len(strategies))
	for _, s := range strategies {
		resolvedIDs = append(resolvedIDs, int(s.ID))
	}

	executionID, err := c.executions.CreateExecution(executionstore.CreateRequest{
		ExecutionType:       models.ExecutionTypeSymbolAddition,
		Symbol:              symbol,
		SelectedStrategyIDs: resolvedIDs,
		ExecutionMode:       req.ExecutionMode,
		EstimatedPatterns:   len(strategies),
	})
	if err != nil {
		return "", fmt.Errorf("coordinator: create execution: %w", err)
	}

	jobs := make([]job, 0, len(strategies))
	for _, s := range strategies {
		taskID, err := c.analyses.InsertPendingTask(executionID, symbol, s.Timeframe, s.BaseStrategy, strategyIDPtr(s.ID), s.Name)
		if err != nil {
			// The grid is partially materialized; fail the execution outright
			// rather than dispatch against an incomplete task set.
			_ = c.executions.MarkFailed(executionID, fmt.Sprintf("failed to materialize task for strategy %s: %v", s.Name, err))
			return executionID, fmt.Errorf("coordinator: insert pending task: %w", err)
		}
		jobs = append(jobs, job{taskID: taskID, strategy: s})
	}

	if err := c.executions.MarkRunning(executionID); err != nil {
		logger.Warn("coordinator: failed to mark execution running", "execution_id", executionID, "error", err.Error())
	}

	isBacktest := req.CustomPeriod != nil
	var period orchestrator.Period
	if isBacktest {
		period = *req.CustomPeriod
	}

	// The fan-out outlives the caller: an HTTP request context is cancelled
	// the moment the handler returns the 202, which must not kill the batch
	// it just accepted. Cancel()/Resume() remain the scheduling gate. The
	// request's filter parameters ride this context rather than the process
	// environment, so concurrent batches never race on a shared
	// FILTER_PARAMS value and every worker resolves the bundle of the
	// batch that dispatched it.
	fanCtx := paramchannel.WithContext(context.WithoutCancel(ctx), paramchannel.FromParams(req.FilterParams))
	go c.fanOut(fanCtx, executionID, symbol, jobs, isBacktest, period)

	return executionID, nil
}

type job struct {
	taskID   int64
	strategy models.StrategyConfiguration
}

// fanOut dispatches jobs to a bounded worker pool, updates each task's
// terminal state as its worker finishes, and transitions the Execution to
// its terminal status once no pending|running rows remain.
func (c *Coordinator) fanOut(ctx context.Context, executionID, symbol string, jobs []job, isBacktest bool, period orchestrator.Period) {
	ctx, span := tracer.Start(ctx, "coordinator.fanout")
	span.SetAttributes(
		attribute.String("execution_id", executionID),
		attribute.String("symbol", symbol),
		attribute.Int("tasks", len(jobs)),
	)
	defer span.End()

	jobCh := make(chan job)
	var wg sync.WaitGroup
	completed := concurrency.NewAtomicCounter(0)
	total := int64(len(jobs))

	worker := func() {
		defer wg.Done()
		for j := range jobCh {
			c.load.throttle()
			c.runOne(ctx, executionID, symbol, j, isBacktest, period)
			done := completed.Increment()
			pct := float64(done) / float64(total) * 100
			if err := c.executions.UpdateProgress(executionID, pct, fmt.Sprintf("%s / %s", symbol, j.strategy.Name)); err != nil {
				logger.Warn("coordinator: failed to update execution progress", "execution_id", executionID, "error", err.Error())
			}
		}
	}

	for i := 0; i < c.poolSize; i++ {
		wg.Add(1)
		go worker()
	}

dispatch:
	for _, j := range jobs {
		if c.cancelled() {
			break dispatch
		}
		select {
		case jobCh <- j:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobCh)
	wg.Wait()

	if c.cancelled() || ctx.Err() != nil {
		if _, err := c.analyses.MarkTaskFailedByExecution(executionID, symbol, "scheduling stopped before dispatch completed"); err != nil {
			logger.Warn("coordinator: failed to mass-fail remaining tasks on cancel", "execution_id", executionID, "error", err.Error())
		}
	}

	c.finalize(executionID)
}

// runOne drives one task through the Orchestrator and records its terminal
// row. An early exit is a clean control outcome and fails only its own row;
// a hard execution error (the in-process analogue of a worker crash) also
// mass-fails every still-pending row for the batch.
func (c *Coordinator) runOne(ctx context.Context, executionID, symbol string, j job, isBacktest bool, period orchestrator.Period) {
	if err := c.analyses.MarkTaskRunning(j.taskID); err != nil {
		logger.Warn("coordinator: failed to mark task running", "task_id", j.taskID, "error", err.Error())
	}

	result := c.work.Analyze(ctx, symbol, j.strategy.Timeframe, j.strategy, executionID, isBacktest, time.Time{}, period)
	c.notify.NotifyResult(ctx, result)

	if result.Completed {
		if err := c.analyses.MarkTaskCompleted(j.taskID, taskResultsFrom(result)); err != nil {
			logger.Warn("coordinator: failed to mark task completed", "task_id", j.taskID, "error", err.Error())
		}
		return
	}

	msg := result.DetailedLogMessage()
	if err := c.analyses.MarkTaskFailed(j.taskID, msg); err != nil {
		logger.Warn("coordinator: failed to mark task failed", "task_id", j.taskID, "error", err.Error())
	}
	if result.ExitReason == analysisresult.ReasonExecutionError {
		if _, err := c.analyses.MarkTaskFailedByExecution(executionID, symbol, msg); err != nil {
			logger.Warn("coordinator: failed to mass-fail remaining tasks", "execution_id", executionID, "error", err.Error())
		}
	}
}

// taskResultsFrom extracts the backtest summary fields, if present, into
// the Analysis Store's result shape. A live (non-backtest) completion is a
// signal recommendation with no trades to summarize, so its result fields
// stay empty.
func taskResultsFrom(result *analysisresult.AnalysisResult) analysisstore.TaskResults {
	summary, ok := result.Recommendation["backtest"].(orchestrator.BacktestSummary)
	if !ok {
		return analysisstore.TaskResults{}
	}
	trades := summary.TotalTrades
	return analysisstore.TaskResults{
		TotalTrades: &trades,
		WinRate:     &summary.WinRate,
		TotalReturn: &summary.TotalReturn,
		SharpeRatio: &summary.SharpeRatio,
		MaxDrawdown: &summary.MaxDrawdown,
		AvgLeverage: &summary.AvgLeverage,
	}
}

// finalize transitions the Execution to SUCCESS or FAILED once no task
// remains pending or running.
func (c *Coordinator) finalize(executionID string) {
	counts, err := c.analyses.CountByStatus(executionID)
	if err != nil {
		logger.Warn("coordinator: failed to count task status for finalize", "execution_id", executionID, "error", err.Error())
		_ = c.executions.MarkFailed(executionID, fmt.Sprintf("could not determine final task status: %v", err))
		return
	}
	if counts.Pending > 0 || counts.Running > 0 {
		logger.Warn("coordinator: finalize called with tasks still in flight", "execution_id", executionID, "pending", counts.Pending, "running", counts.Running)
		return
	}
	if counts.Completed > 0 {
		if err := c.executions.MarkSuccess(executionID); err != nil {
			logger.Warn("coordinator: failed to mark execution success", "execution_id", executionID, "error", err.Error())
		}
		return
	}
	if err := c.executions.MarkFailed(executionID, "no tasks completed successfully"); err != nil {
		logger.Warn("coordinator: failed to mark execution failed", "execution_id", executionID, "error", err.Error())
	}
}

func (c *Coordinator) hasRunningDuplicate(symbol string, mode models.ExecutionMode) (bool, error) {
	executions, err := c.executions.ListForSymbol(symbol)
	if err != nil {
		return false, err
	}
	for _, e := range executions {
		if e.Status == models.ExecutionRunning && e.ExecutionMode == mode {
			return true, nil
		}
	}
	return false, nil
}

func (c *Coordinator) resolveStrategies(mode models.ExecutionMode, ids []uint) ([]models.StrategyConfiguration, error) {
	switch mode {
	case models.ModeDefault:
		return c.strategies.GetDefaults()
	case models.ModeSelective, models.ModeCustom:
		configs, err := c.strategies.GetByIDs(ids)
		if err != nil {
			return nil, fmt.Errorf("coordinator: resolve strategies: %w", err)
		}
		active := make([]models.StrategyConfiguration, 0, len(configs))
		for _, cfg := range configs {
			if cfg.IsActive {
				active = append(active, cfg)
			}
		}
		return active, nil
	default:
		return nil, fmt.Errorf("coordinator: unknown execution mode %q", mode)
	}
}

func strategyIDPtr(id uint) *uint {
	v := id
	return &v
}
