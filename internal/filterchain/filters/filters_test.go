package filters

import (
	"context"
	"errors"
	"testing"
	"time"

	"ares_api/internal/dataprovider"
	"ares_api/internal/models"
	"ares_api/internal/paramchannel"
)

type fakeMarket struct {
	snapshot dataprovider.MarketSnapshot
	err      error
}

func (f fakeMarket) SnapshotAt(ctx context.Context, evalTime time.Time) (dataprovider.MarketSnapshot, error) {
	return f.snapshot, f.err
}

type fakeML struct {
	signal dataprovider.MLSignal
	err    error
}

func (f fakeML) SignalAt(ctx context.Context, evalTime time.Time) (dataprovider.MLSignal, error) {
	return f.signal, f.err
}

type fakeSR struct {
	result *models.SupportResistanceResult
	err    error
}

func (f fakeSR) DetectSupportResistance(ctx context.Context, evalTime time.Time, price float64) (*models.SupportResistanceResult, error) {
	return f.result, f.err
}

func goodSnapshot() dataprovider.MarketSnapshot {
	return dataprovider.MarketSnapshot{
		Price: 100, Volume: 5000, Spread: 0.001, LiquidityScore: 0.9,
		Volatility: 0.03, ATR: 2, PriceChangeVolatility: 0.02, MarketTrend: "bullish",
	}
}

func goodLevels() *models.SupportResistanceResult {
	return &models.SupportResistanceResult{
		Supports:    []models.SRLevel{{Price: 97, Strength: 0.9, TouchCount: 4}},
		Resistances: []models.SRLevel{{Price: 103, Strength: 0.9, TouchCount: 4}},
	}
}

func TestDataQualityRejectsMissingData(t *testing.T) {
	f := NewDataQuality()
	data := &dataprovider.Provider{Market: fakeMarket{snapshot: dataprovider.MarketSnapshot{Price: 100, MissingDataAround: true}}}
	result := f.Execute(context.Background(), data, models.StrategyConfiguration{}, time.Now())
	if result.Passed {
		t.Fatalf("expected rejection for missing data")
	}
}

func TestDataQualityPassesCleanSnapshot(t *testing.T) {
	f := NewDataQuality()
	data := &dataprovider.Provider{Market: fakeMarket{snapshot: goodSnapshot()}}
	result := f.Execute(context.Background(), data, models.StrategyConfiguration{}, time.Now())
	if !result.Passed {
		t.Fatalf("expected pass, got reason: %s", result.Reason)
	}
}

func TestMarketConditionRejectsLowVolume(t *testing.T) {
	f := NewMarketCondition()
	snapshot := goodSnapshot()
	snapshot.Volume = 1
	data := &dataprovider.Provider{Market: fakeMarket{snapshot: snapshot}}
	result := f.Execute(context.Background(), data, models.StrategyConfiguration{}, time.Now())
	if result.Passed {
		t.Fatalf("expected rejection for low volume")
	}
}

func TestMarketConditionPasses(t *testing.T) {
	f := NewMarketCondition()
	data := &dataprovider.Provider{Market: fakeMarket{snapshot: goodSnapshot()}}
	result := f.Execute(context.Background(), data, models.StrategyConfiguration{}, time.Now())
	if !result.Passed {
		t.Fatalf("expected pass, got reason: %s", result.Reason)
	}
}

func TestSupportResistanceUsesPlaceholderWhenDetectorNil(t *testing.T) {
	f := NewSupportResistance()
	data := &dataprovider.Provider{Market: fakeMarket{snapshot: goodSnapshot()}}
	result := f.Execute(context.Background(), data, models.StrategyConfiguration{}, time.Now())
	if result.Metrics == nil {
		t.Fatalf("expected metrics to be populated even on placeholder path")
	}
}

func TestSupportResistanceRejectsWhenNoLevelsStrongEnough(t *testing.T) {
	f := NewSupportResistance()
	weak := &models.SupportResistanceResult{
		Supports:    []models.SRLevel{{Price: 97, Strength: 0.1, TouchCount: 1}},
		Resistances: []models.SRLevel{{Price: 103, Strength: 0.1, TouchCount: 1}},
	}
	data := &dataprovider.Provider{Market: fakeMarket{snapshot: goodSnapshot()}, SR: fakeSR{result: weak}}
	result := f.Execute(context.Background(), data, models.StrategyConfiguration{}, time.Now())
	if result.Passed {
		t.Fatalf("expected rejection when no levels meet strength/touch-count floor")
	}
}

func TestSupportResistancePassesWithStrongLevels(t *testing.T) {
	f := NewSupportResistance()
	data := &dataprovider.Provider{Market: fakeMarket{snapshot: goodSnapshot()}, SR: fakeSR{result: goodLevels()}}
	result := f.Execute(context.Background(), data, models.StrategyConfiguration{}, time.Now())
	if !result.Passed {
		t.Fatalf("expected pass, got reason: %s", result.Reason)
	}
}

func TestSupportResistanceHonorsRequestScopedParams(t *testing.T) {
	f := NewSupportResistance()
	borderline := &models.SupportResistanceResult{
		Supports:    []models.SRLevel{{Price: 97, Strength: 0.6, TouchCount: 1}},
		Resistances: []models.SRLevel{{Price: 103, Strength: 0.6, TouchCount: 1}},
	}
	data := &dataprovider.Provider{Market: fakeMarket{snapshot: goodSnapshot()}, SR: fakeSR{result: borderline}}

	// Default min_touch_count of 2 rejects single-touch levels.
	result := f.Execute(context.Background(), data, models.StrategyConfiguration{}, time.Now())
	if result.Passed {
		t.Fatalf("expected rejection under default min_touch_count")
	}

	// The same long-lived filter instance must honor a later request's
	// override carried on its dispatch context.
	ctx := paramchannel.WithContext(context.Background(), paramchannel.FromParams(map[string]interface{}{
		"support_resistance": map[string]interface{}{"min_touch_count": 1},
	}))
	result = f.Execute(ctx, data, models.StrategyConfiguration{}, time.Now())
	if !result.Passed {
		t.Fatalf("expected pass with request-scoped min_touch_count=1, got reason: %s", result.Reason)
	}
}

func TestDistanceAnalysisRejectsWhenNoSupportLevel(t *testing.T) {
	f := NewDistanceAnalysis()
	data := &dataprovider.Provider{
		Market: fakeMarket{snapshot: goodSnapshot()},
		SR:     fakeSR{result: &models.SupportResistanceResult{Resistances: goodLevels().Resistances}},
	}
	result := f.Execute(context.Background(), data, models.StrategyConfiguration{}, time.Now())
	if result.Passed {
		t.Fatalf("expected rejection when no support level is present")
	}
}

func TestDistanceAnalysisPassesWithinBand(t *testing.T) {
	f := NewDistanceAnalysis()
	data := &dataprovider.Provider{Market: fakeMarket{snapshot: goodSnapshot()}, SR: fakeSR{result: goodLevels()}}
	result := f.Execute(context.Background(), data, models.StrategyConfiguration{}, time.Now())
	if !result.Passed {
		t.Fatalf("expected pass, got reason: %s", result.Reason)
	}
}

func TestMLConfidenceRejectsLowConfidence(t *testing.T) {
	f := NewMLConfidence()
	data := &dataprovider.Provider{ML: fakeML{signal: dataprovider.MLSignal{Confidence: 0.1, Prediction: "long", SignalStrength: 0.8}}}
	result := f.Execute(context.Background(), data, models.StrategyConfiguration{}, time.Now())
	if result.Passed {
		t.Fatalf("expected rejection for low ML confidence")
	}
}

func TestMLConfidenceRejectsWrongDirection(t *testing.T) {
	f := NewMLConfidence()
	data := &dataprovider.Provider{ML: fakeML{signal: dataprovider.MLSignal{Confidence: 0.9, Prediction: "short", SignalStrength: 0.8}}}
	result := f.Execute(context.Background(), data, models.StrategyConfiguration{}, time.Now())
	if result.Passed {
		t.Fatalf("expected rejection for mismatched prediction direction")
	}
}

func TestMLConfidencePasses(t *testing.T) {
	f := NewMLConfidence()
	data := &dataprovider.Provider{ML: fakeML{signal: dataprovider.MLSignal{Confidence: 0.9, Prediction: "long", SignalStrength: 0.8}}}
	result := f.Execute(context.Background(), data, models.StrategyConfiguration{}, time.Now())
	if !result.Passed {
		t.Fatalf("expected pass, got reason: %s", result.Reason)
	}
}

func TestMLConfidencePropagatesProviderError(t *testing.T) {
	f := NewMLConfidence()
	data := &dataprovider.Provider{ML: fakeML{err: errors.New("model down")}}
	result := f.Execute(context.Background(), data, models.StrategyConfiguration{}, time.Now())
	if result.Passed {
		t.Fatalf("expected rejection when ML provider errors")
	}
}

func TestVolatilityRejectsOutOfBand(t *testing.T) {
	f := NewVolatility()
	snapshot := goodSnapshot()
	snapshot.Volatility = 0.2
	data := &dataprovider.Provider{Market: fakeMarket{snapshot: snapshot}}
	result := f.Execute(context.Background(), data, models.StrategyConfiguration{}, time.Now())
	if result.Passed {
		t.Fatalf("expected rejection for excessive volatility")
	}
}

func TestVolatilityPassesWithinBand(t *testing.T) {
	f := NewVolatility()
	data := &dataprovider.Provider{Market: fakeMarket{snapshot: goodSnapshot()}}
	result := f.Execute(context.Background(), data, models.StrategyConfiguration{}, time.Now())
	if !result.Passed {
		t.Fatalf("expected pass, got reason: %s", result.Reason)
	}
}

func TestPriceStabilityIsBoundedToUnitInterval(t *testing.T) {
	s := priceStability(1.0, 1.0, 1.0)
	if s < 0 || s > 1 {
		t.Fatalf("priceStability out of [0,1]: %v", s)
	}
}

func TestLeveragePopulatesMetricsNearLeverageCeiling(t *testing.T) {
	f := NewLeverage()
	snapshot := goodSnapshot()
	snapshot.Volatility = 0.001 // pushes the fallback leverage calc toward its ceiling
	data := &dataprovider.Provider{Market: fakeMarket{snapshot: snapshot}}
	strategy := models.StrategyConfiguration{BaseStrategy: "Aggressive_Traditional"}
	result := f.Execute(context.Background(), data, strategy, time.Now())
	if result.Metrics == nil {
		t.Fatalf("expected metrics populated regardless of verdict")
	}
}

func TestClassifyLeverageRiskTiers(t *testing.T) {
	cases := []struct {
		leverage float64
		want     LeverageRiskLevel
	}{
		{2.0, RiskConservative},
		{5.0, RiskModerate},
		{10.0, RiskAggressive},
		{20.0, RiskExtreme},
	}
	for _, c := range cases {
		if got := classifyLeverageRisk(c.leverage); got != c.want {
			t.Errorf("classifyLeverageRisk(%v) = %v, want %v", c.leverage, got, c.want)
		}
	}
}

func TestRiskRewardRejectsBelowOneRatio(t *testing.T) {
	f := NewRiskReward()
	snapshot := goodSnapshot()
	data := &dataprovider.Provider{Market: fakeMarket{snapshot: snapshot}, SR: fakeSR{result: &models.SupportResistanceResult{
		Supports:    []models.SRLevel{{Price: 99, Strength: 0.9, TouchCount: 4}},
		Resistances: []models.SRLevel{{Price: 100.5, Strength: 0.9, TouchCount: 4}},
	}}}
	result := f.Execute(context.Background(), data, models.StrategyConfiguration{}, time.Now())
	if result.Passed {
		t.Fatalf("expected rejection for a sub-1.0 risk/reward ratio")
	}
}

func TestWinProbabilityClampsToRange(t *testing.T) {
	p := winProbability("unknown_strategy", 10.0)
	if p < 0.3 || p > 0.95 {
		t.Fatalf("winProbability out of clamp range: %v", p)
	}
}

func TestDetermineStrategyTypeDispatch(t *testing.T) {
	cases := map[string]strategyType{
		"Conservative_ML":        strategyTypeML,
		"Full_ML":                strategyTypeML,
		"Aggressive_Traditional": strategyTypeTraditional,
		"Balanced_Hybrid":        strategyTypeHybrid,
	}
	for name, want := range cases {
		if got := determineStrategyType(name); got != want {
			t.Errorf("determineStrategyType(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestStrategySpecificPropagatesMLError(t *testing.T) {
	f := NewStrategySpecific()
	data := &dataprovider.Provider{ML: fakeML{err: errors.New("down")}}
	strategy := models.StrategyConfiguration{BaseStrategy: "Conservative_ML"}
	result := f.Execute(context.Background(), data, strategy, time.Now())
	if result.Passed {
		t.Fatalf("expected rejection when the ML branch's collaborator errors")
	}
}

func TestStrategySpecificTraditionalBranchUsesMarketSnapshot(t *testing.T) {
	f := NewStrategySpecific()
	data := &dataprovider.Provider{Market: fakeMarket{snapshot: goodSnapshot()}}
	strategy := models.StrategyConfiguration{BaseStrategy: "Aggressive_Traditional"}
	result := f.Execute(context.Background(), data, strategy, time.Now())
	if result.Metrics == nil {
		t.Fatalf("expected metrics populated for traditional branch")
	}
}

func TestHashSeedIsDeterministic(t *testing.T) {
	a := hashSeed("same_input")
	b := hashSeed("same_input")
	if a != b {
		t.Fatalf("hashSeed should be deterministic for identical input")
	}
}
