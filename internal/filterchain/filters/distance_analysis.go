package filters

import (
	"context"
	"fmt"
	"math"
	"time"

	"ares_api/internal/dataprovider"
	"ares_api/internal/filterchain"
	"ares_api/internal/models"
)

// DistanceAnalysis is Filter 4: reject when the current price sits too
// close to or too far from the nearest support/resistance level, or when
// the nearest levels are too weak.
type DistanceAnalysis struct{ base }

func NewDistanceAnalysis() *DistanceAnalysis {
	return &DistanceAnalysis{base{name: "distance_analysis", weight: filterchain.WeightMedium, maxExecutionTime: 20 * time.Second}}
}

func (f *DistanceAnalysis) Execute(ctx context.Context, data *dataprovider.Provider, strategy models.StrategyConfiguration, evalTime time.Time) filterchain.Result {
	snapshot, err := data.Market.SnapshotAt(ctx, evalTime)
	if err != nil {
		return filterchain.Result{Passed: false, Reason: "market snapshot unavailable: " + err.Error(), Timestamp: evalTime}
	}

	levels, err := detectLevels(ctx, data, snapshot.Price, evalTime)
	if err != nil {
		return filterchain.Result{Passed: false, Reason: "support/resistance detection error: " + err.Error(), Timestamp: evalTime}
	}

	if len(levels.Supports) == 0 {
		return filterchain.Result{Passed: false, Reason: "no support level found", Metrics: map[string]interface{}{"support_count": 0}, Timestamp: evalTime}
	}
	if len(levels.Resistances) == 0 {
		return filterchain.Result{Passed: false, Reason: "no resistance level found", Metrics: map[string]interface{}{"resistance_count": 0}, Timestamp: evalTime}
	}

	nearestSupport := nearestLevel(levels.Supports, snapshot.Price)
	supportDistance := (snapshot.Price - nearestSupport.Price) / snapshot.Price * 100

	if supportDistance < strategy.MinDistanceFromSupport() {
		return filterchain.Result{
			Passed: false,
			Reason: fmt.Sprintf("too close to support: %.2f%% < %.2f%%", supportDistance, strategy.MinDistanceFromSupport()),
			Metrics: map[string]interface{}{"distance_pct": supportDistance, "min_required": strategy.MinDistanceFromSupport()},
			Timestamp: evalTime,
		}
	}
	if supportDistance > strategy.MaxDistanceFromSupport() {
		return filterchain.Result{
			Passed: false,
			Reason: fmt.Sprintf("too far from support: %.2f%% > %.2f%%", supportDistance, strategy.MaxDistanceFromSupport()),
			Metrics: map[string]interface{}{"distance_pct": supportDistance, "max_allowed": strategy.MaxDistanceFromSupport()},
			Timestamp: evalTime,
		}
	}

	nearestResistance := nearestLevel(levels.Resistances, snapshot.Price)
	resistanceDistance := (nearestResistance.Price - snapshot.Price) / snapshot.Price * 100

	if resistanceDistance < strategy.MinDistanceFromResistance() {
		return filterchain.Result{
			Passed: false,
			Reason: fmt.Sprintf("too close to resistance: %.2f%% < %.2f%%", resistanceDistance, strategy.MinDistanceFromResistance()),
			Metrics: map[string]interface{}{"distance_pct": resistanceDistance, "min_required": strategy.MinDistanceFromResistance()},
			Timestamp: evalTime,
		}
	}
	if resistanceDistance > strategy.MaxDistanceFromResistance() {
		return filterchain.Result{
			Passed: false,
			Reason: fmt.Sprintf("too far from resistance: %.2f%% > %.2f%%", resistanceDistance, strategy.MaxDistanceFromResistance()),
			Metrics: map[string]interface{}{"distance_pct": resistanceDistance, "max_allowed": strategy.MaxDistanceFromResistance()},
			Timestamp: evalTime,
		}
	}

	strongSupports := filterStrong(levels.Supports, strategy.MinSupportStrength())
	if len(strongSupports) == 0 {
		return filterchain.Result{
			Passed: false,
			Reason: fmt.Sprintf("no support strong enough (required %.2f)", strategy.MinSupportStrength()),
			Metrics: map[string]interface{}{"support_count": len(levels.Supports)},
			Timestamp: evalTime,
		}
	}
	strongResistances := filterStrong(levels.Resistances, strategy.MinResistanceStrength())
	if len(strongResistances) == 0 {
		return filterchain.Result{
			Passed: false,
			Reason: fmt.Sprintf("no resistance strong enough (required %.2f)", strategy.MinResistanceStrength()),
			Metrics: map[string]interface{}{"resistance_count": len(levels.Resistances)},
			Timestamp: evalTime,
		}
	}

	return filterchain.Result{
		Passed: true,
		Reason: "distance and strength check passed",
		Metrics: map[string]interface{}{
			"support_distance_pct":    supportDistance,
			"resistance_distance_pct": resistanceDistance,
			"strong_support_count":    len(strongSupports),
			"strong_resistance_count": len(strongResistances),
		},
		Timestamp: evalTime,
	}
}

func nearestLevel(levels []models.SRLevel, price float64) models.SRLevel {
	nearest := levels[0]
	best := math.Abs(price - nearest.Price)
	for _, l := range levels[1:] {
		if d := math.Abs(price - l.Price); d < best {
			nearest, best = l, d
		}
	}
	return nearest
}

func filterStrong(levels []models.SRLevel, minStrength float64) []models.SRLevel {
	var out []models.SRLevel
	for _, l := range levels {
		if l.Strength >= minStrength {
			out = append(out, l)
		}
	}
	return out
}
