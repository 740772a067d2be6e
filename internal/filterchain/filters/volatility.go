package filters

import (
	"context"
	"fmt"
	"time"

	"ares_api/internal/dataprovider"
	"ares_api/internal/filterchain"
	"ares_api/internal/models"
)

// Volatility is Filter 6: reject when realised volatility, the ATR/price
// ratio, or a derived price-stability score are out of the strategy's
// acceptable band.
type Volatility struct{ base }

func NewVolatility() *Volatility {
	return &Volatility{base{name: "volatility", weight: filterchain.WeightMedium, maxExecutionTime: 20 * time.Second}}
}

func (f *Volatility) Execute(ctx context.Context, data *dataprovider.Provider, strategy models.StrategyConfiguration, evalTime time.Time) filterchain.Result {
	snapshot, err := data.Market.SnapshotAt(ctx, evalTime)
	if err != nil {
		return filterchain.Result{Passed: false, Reason: "market snapshot unavailable: " + err.Error(), Timestamp: evalTime}
	}

	var atrRatio float64
	if snapshot.Price > 0 {
		atrRatio = snapshot.ATR / snapshot.Price
	}

	if snapshot.Volatility < strategy.MinVolatility() {
		return filterchain.Result{
			Passed: false,
			Reason: fmt.Sprintf("volatility too low: %.3f < %.3f", snapshot.Volatility, strategy.MinVolatility()),
			Metrics: map[string]interface{}{"volatility": snapshot.Volatility, "min_required": strategy.MinVolatility(), "atr_ratio": atrRatio},
			Timestamp: evalTime,
		}
	}

	if snapshot.Volatility > strategy.MaxVolatility() {
		return filterchain.Result{
			Passed: false,
			Reason: fmt.Sprintf("volatility too high: %.3f > %.3f", snapshot.Volatility, strategy.MaxVolatility()),
			Metrics: map[string]interface{}{"volatility": snapshot.Volatility, "max_allowed": strategy.MaxVolatility(), "atr_ratio": atrRatio},
			Timestamp: evalTime,
		}
	}

	if atrRatio > strategy.MaxATRRatio() {
		return filterchain.Result{
			Passed: false,
			Reason: fmt.Sprintf("ATR ratio too high: %.3f > %.3f", atrRatio, strategy.MaxATRRatio()),
			Metrics: map[string]interface{}{"atr_ratio": atrRatio, "max_allowed": strategy.MaxATRRatio(), "atr": snapshot.ATR, "price": snapshot.Price},
			Timestamp: evalTime,
		}
	}

	stability := priceStability(snapshot.Volatility, atrRatio, snapshot.PriceChangeVolatility)
	if stability < 0.5 {
		return filterchain.Result{
			Passed: false,
			Reason: fmt.Sprintf("price stability too low: %.2f < 0.5", stability),
			Metrics: map[string]interface{}{
				"stability_score": stability, "volatility": snapshot.Volatility, "atr_ratio": atrRatio,
				"price_change_volatility": snapshot.PriceChangeVolatility,
			},
			Timestamp: evalTime,
		}
	}

	return filterchain.Result{
		Passed: true,
		Reason: "volatility check passed",
		Metrics: map[string]interface{}{
			"volatility": snapshot.Volatility, "atr_ratio": atrRatio,
			"price_change_volatility": snapshot.PriceChangeVolatility, "stability_score": stability,
		},
		Timestamp: evalTime,
	}
}

// priceStability is a weighted composite of three normalized volatility
// measures (0 = unstable, 1 = stable).
func priceStability(volatility, atrRatio, priceChangeVol float64) float64 {
	volScore := clamp01(1.0 - volatility/0.2)
	atrScore := clamp01(1.0 - atrRatio/0.1)
	changeScore := clamp01(1.0 - priceChangeVol/0.15)
	return volScore*0.5 + atrScore*0.3 + changeScore*0.2
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
