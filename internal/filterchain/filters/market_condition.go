package filters

import (
	"context"
	"fmt"
	"time"

	"ares_api/internal/dataprovider"
	"ares_api/internal/filterchain"
	"ares_api/internal/models"
)

// MarketCondition is Filter 2: reject when volume, spread, or liquidity
// fail the strategy's configured thresholds.
type MarketCondition struct{ base }

func NewMarketCondition() *MarketCondition {
	return &MarketCondition{base{name: "market_condition", weight: filterchain.WeightLight, maxExecutionTime: 10 * time.Second}}
}

func (f *MarketCondition) Execute(ctx context.Context, data *dataprovider.Provider, strategy models.StrategyConfiguration, evalTime time.Time) filterchain.Result {
	snapshot, err := data.Market.SnapshotAt(ctx, evalTime)
	if err != nil {
		return filterchain.Result{Passed: false, Reason: "market snapshot unavailable: " + err.Error(), Timestamp: evalTime}
	}

	if snapshot.Volume < strategy.MinVolumeThreshold() {
		return filterchain.Result{
			Passed: false,
			Reason: fmt.Sprintf("volume too low: %.2f < %.2f", snapshot.Volume, strategy.MinVolumeThreshold()),
			Metrics: map[string]interface{}{
				"volume": snapshot.Volume, "min_required": strategy.MinVolumeThreshold(),
			},
			Timestamp: evalTime,
		}
	}

	if snapshot.Spread > strategy.MaxSpreadThreshold() {
		return filterchain.Result{
			Passed: false,
			Reason: fmt.Sprintf("spread too wide: %.4f > %.4f", snapshot.Spread, strategy.MaxSpreadThreshold()),
			Metrics: map[string]interface{}{
				"spread": snapshot.Spread, "max_allowed": strategy.MaxSpreadThreshold(),
			},
			Timestamp: evalTime,
		}
	}

	if snapshot.LiquidityScore < strategy.MinLiquidityScore() {
		return filterchain.Result{
			Passed: false,
			Reason: fmt.Sprintf("liquidity too low: %.2f < %.2f", snapshot.LiquidityScore, strategy.MinLiquidityScore()),
			Metrics: map[string]interface{}{
				"liquidity_score": snapshot.LiquidityScore, "min_required": strategy.MinLiquidityScore(),
			},
			Timestamp: evalTime,
		}
	}

	return filterchain.Result{
		Passed: true,
		Reason: "market condition check passed",
		Metrics: map[string]interface{}{
			"volume": snapshot.Volume, "spread": snapshot.Spread, "liquidity_score": snapshot.LiquidityScore,
		},
		Timestamp: evalTime,
	}
}
