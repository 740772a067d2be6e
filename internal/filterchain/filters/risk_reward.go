package filters

import (
	"context"
	"fmt"
	"time"

	"ares_api/internal/dataprovider"
	"ares_api/internal/filterchain"
	"ares_api/internal/models"
)

// RiskReward is Filter 8: compute the risk/reward ratio, expected value,
// and Kelly fraction for the evaluation point, rejecting anything with a
// non-positive expectation.
type RiskReward struct{ base }

func NewRiskReward() *RiskReward {
	return &RiskReward{base{name: "risk_reward", weight: filterchain.WeightHeavy, maxExecutionTime: 2500 * time.Millisecond}}
}

func (f *RiskReward) Execute(ctx context.Context, data *dataprovider.Provider, strategy models.StrategyConfiguration, evalTime time.Time) filterchain.Result {
	snapshot, err := data.Market.SnapshotAt(ctx, evalTime)
	if err != nil {
		return filterchain.Result{Passed: false, Reason: "market snapshot unavailable: " + err.Error(), Timestamp: evalTime}
	}

	levels, err := detectLevels(ctx, data, snapshot.Price, evalTime)
	if err != nil {
		return filterchain.Result{Passed: false, Reason: "support/resistance detection error: " + err.Error(), Timestamp: evalTime}
	}

	resistance := snapshot.Price * 1.05
	if len(levels.Resistances) > 0 {
		resistance = nearestLevel(levels.Resistances, snapshot.Price).Price
	}
	support := snapshot.Price * 0.97
	if len(levels.Supports) > 0 {
		support = nearestLevel(levels.Supports, snapshot.Price).Price
	}

	potentialProfit := (resistance - snapshot.Price) / snapshot.Price
	potentialLoss := (snapshot.Price - support) / snapshot.Price

	var ratio float64
	if potentialLoss > 0 {
		ratio = potentialProfit / potentialLoss
	}

	probability := winProbability(strategy.BaseStrategy, ratio)

	expectedValue := probability*potentialProfit - (1-probability)*potentialLoss
	tradingCost := tradingCostFor(strategy.BaseStrategy)
	adjustedEV := expectedValue - tradingCost
	riskAdjustment := riskAdjustmentFactor(ratio, probability)
	riskAdjustedEV := adjustedEV * riskAdjustment

	var kellyFraction float64
	if ratio > 0 {
		kellyFraction = (probability*ratio - (1 - probability)) / ratio
	}
	conservativeKelly := clamp01(kellyFraction)
	if conservativeKelly > 0.25 {
		conservativeKelly = 0.25
	}

	metrics := map[string]interface{}{
		"ratio":                   ratio,
		"potential_profit":        potentialProfit,
		"potential_loss":          potentialLoss,
		"probability":             probability,
		"expected_value":          expectedValue,
		"risk_adjusted_expected_value": riskAdjustedEV,
		"kelly_fraction":          kellyFraction,
		"conservative_kelly":      conservativeKelly,
		"filter_stage":            8,
	}

	if ratio < 1.0 {
		return filterchain.Result{Passed: false, Reason: fmt.Sprintf("risk/reward ratio below 1.0: %.2f", ratio), Metrics: metrics, Timestamp: evalTime}
	}
	if riskAdjustedEV <= 0 {
		return filterchain.Result{Passed: false, Reason: fmt.Sprintf("expected value non-positive: %.4f", riskAdjustedEV), Metrics: metrics, Timestamp: evalTime}
	}
	if kellyFraction <= 0 {
		return filterchain.Result{Passed: false, Reason: "Kelly fraction non-positive", Metrics: metrics, Timestamp: evalTime}
	}
	if probability < 0.4 {
		return filterchain.Result{Passed: false, Reason: fmt.Sprintf("win probability too low: %.2f", probability), Metrics: metrics, Timestamp: evalTime}
	}

	qualityScore := (ratio - 1.0) + (probability-0.5)*2 + riskAdjustedEV*10
	seed := hashSeed(fmt.Sprintf("%.2f_%.2f", ratio, probability))
	threshold := 40.0 - minf(20, qualityScore*10)
	if float64(seed%100) >= threshold {
		return filterchain.Result{Passed: false, Reason: "risk/reward quality roll failed", Metrics: metrics, Timestamp: evalTime}
	}

	return filterchain.Result{
		Passed:    true,
		Reason:    fmt.Sprintf("favorable risk/reward: ratio %.2f, expected value %.4f", ratio, riskAdjustedEV),
		Metrics:   metrics,
		Timestamp: evalTime,
	}
}

func winProbability(baseStrategy string, ratio float64) float64 {
	base := map[string]float64{
		"Conservative_ML":        0.65,
		"Full_ML":                0.58,
		"Aggressive_Traditional": 0.52,
	}
	p, ok := base[baseStrategy]
	if !ok {
		p = 0.55
	}
	switch {
	case ratio > 3.0:
		p *= 0.9
	case ratio < 1.0:
		p *= 1.1
	}
	return clampRange(p, 0.3, 0.95)
}

func tradingCostFor(baseStrategy string) float64 {
	costs := map[string]float64{
		"Conservative_ML":        0.001,
		"Full_ML":                0.0015,
		"Aggressive_Traditional": 0.002,
	}
	if c, ok := costs[baseStrategy]; ok {
		return c
	}
	return 0.0015
}

func riskAdjustmentFactor(ratio, probability float64) float64 {
	switch {
	case ratio >= 2.0 && probability >= 0.6:
		return 1.0
	case ratio >= 1.5 && probability >= 0.55:
		return 0.8
	case ratio >= 1.0 && probability >= 0.5:
		return 0.6
	default:
		return 0.4
	}
}

func clampRange(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
