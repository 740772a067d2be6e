package filters

import (
	"context"
	"time"

	"ares_api/internal/dataprovider"
	"ares_api/internal/filterchain"
	"ares_api/internal/models"
	"ares_api/internal/paramchannel"
)

// SupportResistance is Filter 3: reject when no usable support/resistance
// levels exist around the evaluation price. Parameters are resolved per
// evaluation from the dispatching request's bundle (context first, the
// FILTER_PARAMS environment as fallback): one filter instance is shared by
// every worker in the pool for the life of the process, so caching a
// bundle at construction would freeze the first request's overrides into
// every later batch.
type SupportResistance struct {
	base
}

func NewSupportResistance() *SupportResistance {
	return &SupportResistance{
		base: base{name: "support_resistance", weight: filterchain.WeightLight, maxExecutionTime: 15 * time.Second},
	}
}

func (f *SupportResistance) Execute(ctx context.Context, data *dataprovider.Provider, strategy models.StrategyConfiguration, evalTime time.Time) filterchain.Result {
	params := paramchannel.FromContext(ctx).SupportResistanceParams()

	snapshot, err := data.Market.SnapshotAt(ctx, evalTime)
	if err != nil {
		return filterchain.Result{Passed: false, Reason: "market snapshot unavailable: " + err.Error(), Timestamp: evalTime}
	}

	result, err := detectLevels(ctx, data, snapshot.Price, evalTime)
	if err != nil {
		return filterchain.Result{Passed: false, Reason: "support/resistance detection error: " + err.Error(), Timestamp: evalTime}
	}

	validSupports := countStrong(result.Supports, params.MinSupportStrength, params.MinTouchCount)
	validResistances := countStrong(result.Resistances, params.MinResistanceStrength, params.MinTouchCount)

	if validSupports == 0 && validResistances == 0 {
		return filterchain.Result{
			Passed: false,
			Reason: "no usable support or resistance levels",
			Metrics: map[string]interface{}{
				"support_count": len(result.Supports), "resistance_count": len(result.Resistances),
			},
			Timestamp: evalTime,
		}
	}

	return filterchain.Result{
		Passed: true,
		Reason: "support/resistance levels present",
		Metrics: map[string]interface{}{
			"support_count":          len(result.Supports),
			"resistance_count":       len(result.Resistances),
			"valid_support_count":    validSupports,
			"valid_resistance_count": validResistances,
		},
		Timestamp: evalTime,
	}
}

// detectLevels calls the injected detector, falling back to the flagged
// placeholder when none is configured (dataprovider.Provider.SR == nil).
func detectLevels(ctx context.Context, data *dataprovider.Provider, price float64, evalTime time.Time) (*models.SupportResistanceResult, error) {
	if data.SR == nil {
		return PlaceholderSupportResistance(price, evalTime), nil
	}
	return data.SR.DetectSupportResistance(ctx, evalTime, price)
}

func countStrong(levels []models.SRLevel, minStrength float64, minTouchCount int) int {
	count := 0
	for _, l := range levels {
		if l.Strength >= minStrength && l.TouchCount >= minTouchCount {
			count++
		}
	}
	return count
}
