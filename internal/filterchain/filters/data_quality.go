package filters

import (
	"context"
	"time"

	"ares_api/internal/dataprovider"
	"ares_api/internal/filterchain"
	"ares_api/internal/models"
)

// DataQuality is Filter 1: reject evaluation points with missing OHLCV
// data around the point, a price anomaly at the point, or an otherwise
// invalid market snapshot.
type DataQuality struct{ base }

func NewDataQuality() *DataQuality {
	return &DataQuality{base{name: "data_quality", weight: filterchain.WeightLight, maxExecutionTime: 5 * time.Second}}
}

func (f *DataQuality) Execute(ctx context.Context, data *dataprovider.Provider, strategy models.StrategyConfiguration, evalTime time.Time) filterchain.Result {
	snapshot, err := data.Market.SnapshotAt(ctx, evalTime)
	if err != nil {
		return filterchain.Result{Passed: false, Reason: "market snapshot unavailable: " + err.Error(), Timestamp: evalTime}
	}

	if snapshot.MissingDataAround {
		return filterchain.Result{
			Passed:    false,
			Reason:    "missing OHLCV data around evaluation point",
			Metrics:   map[string]interface{}{"missing_data_around": true},
			Timestamp: evalTime,
		}
	}

	if snapshot.PriceAnomaly {
		return filterchain.Result{
			Passed:    false,
			Reason:    "price anomaly detected at evaluation point",
			Metrics:   map[string]interface{}{"price_anomaly": true},
			Timestamp: evalTime,
		}
	}

	if snapshot.Price <= 0 {
		return filterchain.Result{
			Passed:    false,
			Reason:    "invalid data: non-positive price",
			Metrics:   map[string]interface{}{"price": snapshot.Price},
			Timestamp: evalTime,
		}
	}

	return filterchain.Result{Passed: true, Reason: "data quality check passed", Timestamp: evalTime}
}
