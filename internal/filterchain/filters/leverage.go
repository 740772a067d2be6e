package filters

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"ares_api/internal/dataprovider"
	"ares_api/internal/filterchain"
	"ares_api/internal/models"
)

// LeverageRiskLevel classifies an optimal-leverage recommendation into
// four risk tiers, carried in the filter's metrics as diagnostic detail.
type LeverageRiskLevel string

const (
	RiskConservative LeverageRiskLevel = "conservative" // 1-3x
	RiskModerate      LeverageRiskLevel = "moderate"    // 3-7x
	RiskAggressive    LeverageRiskLevel = "aggressive"   // 7-15x
	RiskExtreme       LeverageRiskLevel = "extreme"      // 15x+
)

func classifyLeverageRisk(optimalLeverage float64) LeverageRiskLevel {
	switch {
	case optimalLeverage <= 3.0:
		return RiskConservative
	case optimalLeverage <= 7.0:
		return RiskModerate
	case optimalLeverage <= 15.0:
		return RiskAggressive
	default:
		return RiskExtreme
	}
}

// Leverage is Filter 7: compute an optimal leverage recommendation and
// reject extreme, low-confidence, or strategy-mismatched outcomes.
type Leverage struct{ base }

func NewLeverage() *Leverage {
	return &Leverage{base{name: "leverage", weight: filterchain.WeightHeavy, maxExecutionTime: 3 * time.Second}}
}

func (f *Leverage) Execute(ctx context.Context, data *dataprovider.Provider, strategy models.StrategyConfiguration, evalTime time.Time) filterchain.Result {
	snapshot, err := data.Market.SnapshotAt(ctx, evalTime)
	if err != nil {
		return filterchain.Result{Passed: false, Reason: "market snapshot unavailable: " + err.Error(), Timestamp: evalTime}
	}

	optimalLeverage, confidence := optimalLeverageFor(strategy, snapshot)
	riskLevel := classifyLeverageRisk(optimalLeverage)

	riskScore := clamp01(optimalLeverage/10.0 + snapshot.Volatility*10 + (1.0 - confidence))
	tolerance := strategy.RiskTolerance()
	mismatch := absf(riskScore - tolerance)

	metrics := map[string]interface{}{
		"optimal_leverage":  optimalLeverage,
		"confidence":        confidence,
		"risk_level":        string(riskLevel),
		"risk_score":        riskScore,
		"risk_tolerance":    tolerance,
		"risk_mismatch":     mismatch,
		"filter_stage":      7,
	}

	if optimalLeverage > 15.0 {
		return filterchain.Result{Passed: false, Reason: "optimal leverage extreme", Metrics: metrics, Timestamp: evalTime}
	}
	if confidence < 0.3 {
		return filterchain.Result{Passed: false, Reason: "leverage recommendation confidence too low", Metrics: metrics, Timestamp: evalTime}
	}
	if riskScore > 0.9 {
		return filterchain.Result{Passed: false, Reason: "leverage risk score too high", Metrics: metrics, Timestamp: evalTime}
	}
	if mismatch > 0.4 {
		return filterchain.Result{Passed: false, Reason: "leverage risk mismatched with strategy tolerance", Metrics: metrics, Timestamp: evalTime}
	}

	// Remaining candidates pass at a ~50% rate keyed on strategy+leverage:
	// a deterministic suitability roll standing in for a full sizing model.
	seed := hashSeed(fmt.Sprintf("%s_%.2f", strategy.BaseStrategy, optimalLeverage))
	if seed%100 >= 50 {
		return filterchain.Result{Passed: false, Reason: "leverage suitability roll failed", Metrics: metrics, Timestamp: evalTime}
	}

	return filterchain.Result{Passed: true, Reason: "leverage setting suitable", Metrics: metrics, Timestamp: evalTime}
}

// optimalLeverageFor derives a leverage recommendation from the strategy's
// base leverage adjusted for volatility and trend. A richer position-sizing
// model can replace this behind the same signature once one is wired.
func optimalLeverageFor(strategy models.StrategyConfiguration, snapshot dataprovider.MarketSnapshot) (leverage, confidence float64) {
	base := strategy.BaseLeverage()

	var volAdjustment float64
	switch {
	case snapshot.Volatility > 0.05:
		volAdjustment = 0.6
	case snapshot.Volatility > 0.03:
		volAdjustment = 0.8
	case snapshot.Volatility < 0.01:
		volAdjustment = 1.2
	default:
		volAdjustment = 1.0
	}

	trendFactor := 1.0
	switch snapshot.MarketTrend {
	case "bullish":
		trendFactor = 1.1
	case "bearish":
		trendFactor = 0.9
	}

	optimal := base * volAdjustment * trendFactor
	if optimal < 1.0 {
		optimal = 1.0
	}
	if optimal > 10.0 {
		optimal = 10.0
	}
	return optimal, 0.75
}

func hashSeed(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
