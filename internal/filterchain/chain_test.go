package filterchain

import (
	"context"
	"errors"
	"testing"
	"time"

	"ares_api/internal/dataprovider"
	"ares_api/internal/models"
)

type stubFilter struct {
	name    string
	weight  Weight
	result  Result
	panics  bool
	sleep   time.Duration
	maxTime time.Duration
}

func (f stubFilter) Name() string               { return f.name }
func (f stubFilter) Weight() Weight              { return f.weight }
func (f stubFilter) MaxExecutionTime() time.Duration {
	if f.maxTime == 0 {
		return time.Second
	}
	return f.maxTime
}

func (f stubFilter) Execute(ctx context.Context, data *dataprovider.Provider, strategy models.StrategyConfiguration, evalTime time.Time) Result {
	if f.panics {
		panic("boom")
	}
	if f.sleep > 0 {
		time.Sleep(f.sleep)
	}
	return f.result
}

type stubMarket struct{}

func (stubMarket) SnapshotAt(ctx context.Context, evalTime time.Time) (dataprovider.MarketSnapshot, error) {
	return dataprovider.MarketSnapshot{Price: 100}, nil
}

func passFilter(name string) stubFilter {
	return stubFilter{name: name, weight: WeightLight, result: Result{Passed: true}}
}

func failFilter(name string) stubFilter {
	return stubFilter{name: name, weight: WeightLight, result: Result{Passed: false, Reason: "rejected"}}
}

func TestChainStopsAtFirstFailure(t *testing.T) {
	second := failFilter("second")
	third := passFilter("third")
	chain := NewChain([]Filter{passFilter("first"), second, third})

	provider := &dataprovider.Provider{Market: stubMarket{}}
	strategy := models.StrategyConfiguration{BaseStrategy: "Conservative_ML"}

	result, failedAt, _ := chain.executeOne(context.Background(), provider, strategy, time.Now())

	if result.Passed {
		t.Fatalf("expected failure, got pass")
	}
	if failedAt != 2 {
		t.Fatalf("failedAt = %d, want 2", failedAt)
	}

	stats := chain.Statistics()
	if stats.snapshotFilter("third").ExecutionCount != 0 {
		t.Fatalf("third filter should never have run")
	}
	if stats.snapshotFilter("second").FailureCount != 1 {
		t.Fatalf("second filter should record one failure")
	}
}

func TestChainAllPassProducesTrade(t *testing.T) {
	chain := NewChain([]Filter{passFilter("only")})
	provider := &dataprovider.Provider{Market: stubMarket{}}
	strategy := models.StrategyConfiguration{BaseStrategy: "Conservative_ML"}

	trades := chain.ExecuteFiltering(context.Background(), provider, strategy, []time.Time{time.Now()}, nil)

	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].EntryPrice != 100 {
		t.Fatalf("entry price = %v, want 100", trades[0].EntryPrice)
	}

	metrics := chain.Statistics().EfficiencyMetrics()
	if metrics.PassRate != 100 {
		t.Fatalf("pass rate = %v, want 100", metrics.PassRate)
	}
}

func TestChainRecordsPerFilterExclusions(t *testing.T) {
	chain := NewChain([]Filter{failFilter("gatekeeper")})
	provider := &dataprovider.Provider{Market: stubMarket{}}
	strategy := models.StrategyConfiguration{}

	chain.ExecuteFiltering(context.Background(), provider, strategy, []time.Time{time.Now(), time.Now()}, nil)

	if chain.Statistics().PerFilterExclusions[1] != 2 {
		t.Fatalf("expected 2 exclusions at position 1, got %d", chain.Statistics().PerFilterExclusions[1])
	}
}

func TestChainRecoverFromPanic(t *testing.T) {
	chain := NewChain([]Filter{stubFilter{name: "panicky", weight: WeightLight, panics: true}})
	provider := &dataprovider.Provider{Market: stubMarket{}}
	strategy := models.StrategyConfiguration{}

	result, failedAt, _ := chain.executeOne(context.Background(), provider, strategy, time.Now())

	if result.Passed {
		t.Fatalf("expected a failing result after panic recovery")
	}
	if failedAt != 1 {
		t.Fatalf("failedAt = %d, want 1", failedAt)
	}
}

func TestResetStatisticsClearsCounters(t *testing.T) {
	chain := NewChain([]Filter{passFilter("only")})
	provider := &dataprovider.Provider{Market: stubMarket{}}
	strategy := models.StrategyConfiguration{}

	chain.ExecuteFiltering(context.Background(), provider, strategy, []time.Time{time.Now()}, nil)
	if chain.Statistics().TotalEvaluations == 0 {
		t.Fatalf("expected evaluations recorded before reset")
	}

	chain.ResetStatistics()
	if chain.Statistics().TotalEvaluations != 0 {
		t.Fatalf("expected zeroed statistics after reset")
	}
}

func TestSimulateTradeReturnsNilOnMarketError(t *testing.T) {
	chain := NewChain([]Filter{passFilter("only")})
	provider := &dataprovider.Provider{Market: failingMarket{}}
	strategy := models.StrategyConfiguration{}

	trade := chain.simulateTrade(context.Background(), provider, strategy, time.Now(), nil)
	if trade != nil {
		t.Fatalf("expected nil trade when market snapshot errors")
	}
}

func TestSimulateTradeUsesFilterMetricsNotPlaceholders(t *testing.T) {
	chain := NewChain([]Filter{passFilter("leverage"), passFilter("risk_reward")})
	provider := &dataprovider.Provider{Market: stubMarket{}}
	strategy := models.StrategyConfiguration{BaseStrategy: "Conservative_ML"}

	perFilter := map[string]map[string]interface{}{
		"leverage": {
			"optimal_leverage": 4.5,
			"confidence":       0.82,
		},
		"risk_reward": {
			"potential_profit": 0.12,
			"potential_loss":   0.04,
			"ratio":            3.0,
		},
	}

	trade := chain.simulateTrade(context.Background(), provider, strategy, time.Now(), perFilter)
	if trade == nil {
		t.Fatalf("expected a trade, got nil")
	}
	if trade.Leverage != 4.5 {
		t.Fatalf("Leverage = %v, want 4.5 (from leverage filter's optimal_leverage)", trade.Leverage)
	}
	if trade.Confidence != 0.82 {
		t.Fatalf("Confidence = %v, want 0.82 (from leverage filter's confidence)", trade.Confidence)
	}
	if trade.ProfitPotential != 0.12 {
		t.Fatalf("ProfitPotential = %v, want 0.12 (from risk_reward filter's potential_profit)", trade.ProfitPotential)
	}
	if trade.DownsideRisk != 0.04 {
		t.Fatalf("DownsideRisk = %v, want 0.04 (from risk_reward filter's potential_loss)", trade.DownsideRisk)
	}
	if trade.RiskReward != 3.0 {
		t.Fatalf("RiskReward = %v, want 3.0 (from risk_reward filter's ratio)", trade.RiskReward)
	}
}

func TestExecuteFilteringProducesVaryingTrades(t *testing.T) {
	leverageStub := stubFilter{name: "leverage", weight: WeightHeavy, result: Result{
		Passed:  true,
		Metrics: map[string]interface{}{"optimal_leverage": 6.0, "confidence": 0.9},
	}}
	riskRewardStub := stubFilter{name: "risk_reward", weight: WeightHeavy, result: Result{
		Passed:  true,
		Metrics: map[string]interface{}{"potential_profit": 0.2, "potential_loss": 0.05, "ratio": 4.0},
	}}
	chain := NewChain([]Filter{leverageStub, riskRewardStub})
	provider := &dataprovider.Provider{Market: stubMarket{}}
	strategy := models.StrategyConfiguration{BaseStrategy: "Conservative_ML"}

	trades := chain.ExecuteFiltering(context.Background(), provider, strategy, []time.Time{time.Now()}, nil)
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].Leverage == strategy.BaseLeverage() {
		t.Fatalf("expected trade leverage to reflect the leverage filter's optimal_leverage, not the strategy base leverage")
	}
	if trades[0].RiskReward != 4.0 {
		t.Fatalf("RiskReward = %v, want 4.0 from the risk_reward filter's ratio", trades[0].RiskReward)
	}
}

type failingMarket struct{}

func (failingMarket) SnapshotAt(ctx context.Context, evalTime time.Time) (dataprovider.MarketSnapshot, error) {
	return dataprovider.MarketSnapshot{}, errors.New("unavailable")
}
