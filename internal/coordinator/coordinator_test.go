package coordinator

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"ares_api/internal/analysisstore"
	"ares_api/internal/dataprovider"
	"ares_api/internal/executionstore"
	"ares_api/internal/models"
	"ares_api/internal/orchestrator"
	"ares_api/internal/strategycatalog"
)

func setupStores(t *testing.T) (*executionstore.Store, *analysisstore.Store, *strategycatalog.Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	if err := db.AutoMigrate(&models.Execution{}, &models.AnalysisTask{}, &models.StrategyConfiguration{}); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return executionstore.New(db), analysisstore.New(db), strategycatalog.New(db)
}

type fakeOHLCV struct{}

func (fakeOHLCV) FetchOHLCV(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]dataprovider.OHLCVPoint, error) {
	return []dataprovider.OHLCVPoint{{Timestamp: time.Now(), Close: 100}}, nil
}

type fakeMarket struct{}

func (fakeMarket) SnapshotAt(ctx context.Context, evalTime time.Time) (dataprovider.MarketSnapshot, error) {
	return dataprovider.MarketSnapshot{Price: 100, MarketTrend: "bullish"}, nil
}

type fakeML struct{}

func (fakeML) SignalAt(ctx context.Context, evalTime time.Time) (dataprovider.MLSignal, error) {
	return dataprovider.MLSignal{Confidence: 0.7, Prediction: "long", SignalStrength: 0.6}, nil
}

type fakeSR struct{}

func (fakeSR) DetectSupportResistance(ctx context.Context, evalTime time.Time, price float64) (*models.SupportResistanceResult, error) {
	return &models.SupportResistanceResult{
		Status:      models.SubSuccess,
		Supports:    []models.SRLevel{{Price: 95, Strength: 0.8, TouchCount: 3}},
		Resistances: []models.SRLevel{{Price: 105, Strength: 0.8, TouchCount: 3}},
	}, nil
}

type emptySR struct{}

func (emptySR) DetectSupportResistance(ctx context.Context, evalTime time.Time, price float64) (*models.SupportResistanceResult, error) {
	return &models.SupportResistanceResult{Status: models.SubSuccess}, nil
}

type fakeBTC struct{}

func (fakeBTC) PredictBTCImpact(ctx context.Context, symbol string, asOf time.Time) (dataprovider.BTCImpact, error) {
	return dataprovider.BTCImpact{CorrelationCoefficient: 0.4, SufficientData: true}, nil
}

type fakeContext struct{}

func (fakeContext) AnalyzeMarketPhase(ctx context.Context, symbol string, asOf time.Time) (dataprovider.MarketContext, error) {
	return dataprovider.MarketContext{TrendDirection: "bullish", MarketPhase: "markup"}, nil
}

type fakeLeverage struct{}

func (fakeLeverage) CalculateSafeLeverage(ctx context.Context, symbol string, snapshot dataprovider.MarketSnapshot, signal dataprovider.MLSignal, btc dataprovider.BTCImpact, market dataprovider.MarketContext) (dataprovider.LeverageDecision, error) {
	return dataprovider.LeverageDecision{RecommendedLeverage: 3.0, ConfidenceLevel: 0.5, RiskRewardRatio: 2.0}, nil
}

func fixedFactory(p *dataprovider.AnalysisProvider) orchestrator.DataFactory {
	return func(symbol, timeframe string) *dataprovider.AnalysisProvider { return p }
}

func workingOrchestrator() *orchestrator.Orchestrator {
	return orchestrator.New(fixedFactory(&dataprovider.AnalysisProvider{
		OHLCV:    fakeOHLCV{},
		Market:   fakeMarket{},
		ML:       fakeML{},
		SR:       fakeSR{},
		BTC:      fakeBTC{},
		Context:  fakeContext{},
		Leverage: fakeLeverage{},
	}), nil)
}

func seedStrategy(t *testing.T, store *strategycatalog.Store, name string, isDefault, isActive bool) models.StrategyConfiguration {
	t.Helper()
	cfg := &models.StrategyConfiguration{
		Name:         name,
		BaseStrategy: "Conservative_ML",
		Timeframe:    "1h",
		Parameters:   models.JSONB{},
		IsDefault:    isDefault,
		IsActive:     isActive,
	}
	if err := store.Create(cfg); err != nil {
		t.Fatalf("seed strategy: %v", err)
	}
	return *cfg
}

func waitForTerminal(t *testing.T, executions *executionstore.Store, executionID string) models.Execution {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		exec, err := executions.Lookup(executionID)
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if exec.Status.IsTerminal() {
			return *exec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("execution %s never reached a terminal status", executionID)
	return models.Execution{}
}

func TestAddSymbolPreMaterializesTaskGrid(t *testing.T) {
	executions, analyses, strategies := setupStores(t)
	seedStrategy(t, strategies, "Conservative_ML@1h", true, true)
	seedStrategy(t, strategies, "Full_ML@1h", true, true)

	c := New(executions, analyses, strategies, workingOrchestrator(), nil)

	executionID, err := c.AddSymbol(context.Background(), Request{Symbol: "BTCUSDT", ExecutionMode: models.ModeDefault})
	if err != nil {
		t.Fatalf("AddSymbol: %v", err)
	}

	tasks, err := analyses.FetchTasks(executionID)
	if err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 pre-materialized tasks, got %d", len(tasks))
	}

	exec := waitForTerminal(t, executions, executionID)
	if exec.Status != models.ExecutionSuccess {
		t.Fatalf("expected SUCCESS, got %v (errors=%v)", exec.Status, exec.Errors)
	}
}

func TestAddSymbolRejectsRunningDuplicate(t *testing.T) {
	executions, analyses, strategies := setupStores(t)
	seedStrategy(t, strategies, "Conservative_ML@1h", true, true)

	executionID, err := executions.CreateExecution(executionstore.CreateRequest{
		ExecutionType: models.ExecutionTypeSymbolAddition,
		Symbol:        "ETHUSDT",
		ExecutionMode: models.ModeDefault,
	})
	if err != nil {
		t.Fatalf("seed execution: %v", err)
	}
	if err := executions.MarkRunning(executionID); err != nil {
		t.Fatalf("mark running: %v", err)
	}

	c := New(executions, analyses, strategies, workingOrchestrator(), nil)
	_, err = c.AddSymbol(context.Background(), Request{Symbol: "ETHUSDT", ExecutionMode: models.ModeDefault})
	if err == nil {
		t.Fatalf("expected duplicate-running error")
	}
}

func TestAddSymbolRejectsInvalidSymbolShape(t *testing.T) {
	executions, analyses, strategies := setupStores(t)
	c := New(executions, analyses, strategies, workingOrchestrator(), nil)

	_, err := c.AddSymbol(context.Background(), Request{Symbol: "not-a-symbol!", ExecutionMode: models.ModeDefault})
	if err == nil {
		t.Fatalf("expected an invalid-symbol error")
	}
}

func TestAddSymbolFailsWhenNoStrategiesResolve(t *testing.T) {
	executions, analyses, strategies := setupStores(t)
	c := New(executions, analyses, strategies, workingOrchestrator(), nil)

	_, err := c.AddSymbol(context.Background(), Request{Symbol: "BTCUSDT", ExecutionMode: models.ModeDefault})
	if err == nil {
		t.Fatalf("expected an error when no default strategies exist")
	}
}

func TestAddSymbolMarksExecutionFailedWhenEveryTaskFails(t *testing.T) {
	executions, analyses, strategies := setupStores(t)
	seedStrategy(t, strategies, "Conservative_ML@1h", true, true)

	broken := orchestrator.New(fixedFactory(&dataprovider.AnalysisProvider{
		OHLCV:    struct{ dataprovider.OHLCVProvider }{},
		Market:   fakeMarket{},
		ML:       fakeML{},
		SR:       fakeSR{},
		BTC:      fakeBTC{},
		Context:  fakeContext{},
		Leverage: fakeLeverage{},
	}), nil)

	c := New(executions, analyses, strategies, broken, nil)
	executionID, err := c.AddSymbol(context.Background(), Request{Symbol: "BTCUSDT", ExecutionMode: models.ModeDefault})
	if err != nil {
		t.Fatalf("AddSymbol: %v", err)
	}

	exec := waitForTerminal(t, executions, executionID)
	if exec.Status != models.ExecutionFailed {
		t.Fatalf("expected FAILED when the only task panics, got %v", exec.Status)
	}
}

func TestEarlyExitDoesNotMassFailSiblings(t *testing.T) {
	executions, analyses, strategies := setupStores(t)
	seedStrategy(t, strategies, "Conservative_ML@1h", true, true)
	seedStrategy(t, strategies, "Full_ML@1h", true, true)

	// Zero S/R levels: every task early-exits at support_resistance, which
	// is a clean control outcome, not a crash, so each task must still run
	// for itself instead of being mass-failed by whichever finished first.
	noLevels := orchestrator.New(fixedFactory(&dataprovider.AnalysisProvider{
		OHLCV:    fakeOHLCV{},
		Market:   fakeMarket{},
		ML:       fakeML{},
		SR:       emptySR{},
		BTC:      fakeBTC{},
		Context:  fakeContext{},
		Leverage: fakeLeverage{},
	}), nil)

	c := New(executions, analyses, strategies, noLevels, nil)
	executionID, err := c.AddSymbol(context.Background(), Request{Symbol: "BTCUSDT", ExecutionMode: models.ModeDefault})
	if err != nil {
		t.Fatalf("AddSymbol: %v", err)
	}

	exec := waitForTerminal(t, executions, executionID)
	if exec.Status != models.ExecutionFailed {
		t.Fatalf("expected FAILED when every task early-exits, got %v", exec.Status)
	}

	tasks, err := analyses.FetchTasks(executionID)
	if err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}
	for _, task := range tasks {
		if task.TaskStatus != models.TaskFailed {
			t.Fatalf("task %d status = %v, want failed", task.ID, task.TaskStatus)
		}
		if task.TaskStartedAt == nil {
			t.Fatalf("task %d was never started - it was mass-failed instead of run", task.ID)
		}
	}
}

func TestCancelStopsFurtherDispatch(t *testing.T) {
	executions, analyses, strategies := setupStores(t)
	seedStrategy(t, strategies, "Conservative_ML@1h", true, true)
	seedStrategy(t, strategies, "Full_ML@1h", true, true)

	c := New(executions, analyses, strategies, workingOrchestrator(), nil)
	c.Cancel()

	executionID, err := c.AddSymbol(context.Background(), Request{Symbol: "BTCUSDT", ExecutionMode: models.ModeDefault})
	if err != nil {
		t.Fatalf("AddSymbol: %v", err)
	}

	exec := waitForTerminal(t, executions, executionID)
	if exec.Status != models.ExecutionFailed {
		t.Fatalf("expected a cancelled fan-out to end FAILED, got %v", exec.Status)
	}
}
