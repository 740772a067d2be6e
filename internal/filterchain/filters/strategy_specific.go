package filters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ares_api/internal/dataprovider"
	"ares_api/internal/filterchain"
	"ares_api/internal/models"
)

// StrategySpecific is Filter 9: apply a final suitability gate specific to
// the strategy's type (ML-based, traditional, or hybrid of both). The
// primary/secondary scores are driven by the data already flowing through
// the chain: the ML signal for ML strategies, and a price-stability score
// derived from the market snapshot for traditional ones.
type StrategySpecific struct{ base }

func NewStrategySpecific() *StrategySpecific {
	return &StrategySpecific{base{name: "strategy_specific", weight: filterchain.WeightHeavy, maxExecutionTime: 5 * time.Second}}
}

type strategyType string

const (
	strategyTypeML          strategyType = "ml_based"
	strategyTypeTraditional strategyType = "traditional"
	strategyTypeHybrid      strategyType = "hybrid"
)

func determineStrategyType(baseStrategy string) strategyType {
	name := strings.ToLower(baseStrategy)
	switch {
	case strings.Contains(name, "ml"):
		return strategyTypeML
	case strings.Contains(name, "traditional"):
		return strategyTypeTraditional
	default:
		return strategyTypeHybrid
	}
}

func (f *StrategySpecific) Execute(ctx context.Context, data *dataprovider.Provider, strategy models.StrategyConfiguration, evalTime time.Time) filterchain.Result {
	sType := determineStrategyType(strategy.BaseStrategy)

	var primary, secondary float64
	var err error

	switch sType {
	case strategyTypeML:
		primary, secondary, err = f.mlMetrics(ctx, data, evalTime)
	case strategyTypeTraditional:
		primary, secondary, err = f.traditionalMetrics(ctx, data, evalTime)
	default:
		var mlPrimary, mlSecondary, taPrimary, taSecondary float64
		mlPrimary, mlSecondary, err = f.mlMetrics(ctx, data, evalTime)
		if err == nil {
			taPrimary, taSecondary, err = f.traditionalMetrics(ctx, data, evalTime)
		}
		primary = (mlPrimary + taPrimary) / 2
		secondary = (mlSecondary + taSecondary) / 2
	}

	if err != nil {
		return filterchain.Result{Passed: false, Reason: "strategy-specific analysis error: " + err.Error(), Timestamp: evalTime}
	}

	metrics := map[string]interface{}{
		"strategy_type": string(sType),
		"primary_score": primary,
		"secondary_score": secondary,
		"filter_stage": 9,
	}

	minPrimary, minSecondary := strategyTypeThresholds(sType)
	if primary < minPrimary {
		return filterchain.Result{Passed: false, Reason: fmt.Sprintf("%s primary score too low: %.2f < %.2f", sType, primary, minPrimary), Metrics: metrics, Timestamp: evalTime}
	}
	if secondary < minSecondary {
		return filterchain.Result{Passed: false, Reason: fmt.Sprintf("%s secondary score too low: %.2f < %.2f", sType, secondary, minSecondary), Metrics: metrics, Timestamp: evalTime}
	}

	// Aim for a roughly 70% pass rate among candidates that already
	// cleared the hard floors.
	combined := (primary + secondary) / 2
	seed := hashSeed(fmt.Sprintf("%s_%.2f_%.2f", sType, primary, secondary))
	threshold := 30.0 + minf(40, combined*50)
	if float64(seed%100) >= threshold {
		return filterchain.Result{Passed: false, Reason: fmt.Sprintf("%s suitability roll failed", sType), Metrics: metrics, Timestamp: evalTime}
	}

	return filterchain.Result{Passed: true, Reason: fmt.Sprintf("%s strategy-specific check passed", sType), Metrics: metrics, Timestamp: evalTime}
}

func (f *StrategySpecific) mlMetrics(ctx context.Context, data *dataprovider.Provider, evalTime time.Time) (confidence, featureQuality float64, err error) {
	signal, err := data.ML.SignalAt(ctx, evalTime)
	if err != nil {
		return 0, 0, err
	}
	return signal.Confidence, signal.SignalStrength, nil
}

func (f *StrategySpecific) traditionalMetrics(ctx context.Context, data *dataprovider.Provider, evalTime time.Time) (signalStrength, signalConfidence float64, err error) {
	snapshot, err := data.Market.SnapshotAt(ctx, evalTime)
	if err != nil {
		return 0, 0, err
	}
	stability := priceStability(snapshot.Volatility, snapshot.ATR/maxf(snapshot.Price, 1), snapshot.PriceChangeVolatility)
	return stability, stability * 0.8, nil
}

func strategyTypeThresholds(t strategyType) (minPrimary, minSecondary float64) {
	switch t {
	case strategyTypeML:
		return 0.5, 0.5
	case strategyTypeTraditional:
		return 0.4, 0.4
	default:
		return 0.4, 0.4
	}
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
