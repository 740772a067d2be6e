package filters

import (
	"context"
	"fmt"
	"time"

	"ares_api/internal/dataprovider"
	"ares_api/internal/filterchain"
	"ares_api/internal/models"
)

// MLConfidence is Filter 5: reject when the ML model's confidence,
// predicted direction, or signal strength fail the strategy's thresholds.
type MLConfidence struct{ base }

func NewMLConfidence() *MLConfidence {
	return &MLConfidence{base{name: "ml_confidence", weight: filterchain.WeightMedium, maxExecutionTime: 25 * time.Second}}
}

func (f *MLConfidence) Execute(ctx context.Context, data *dataprovider.Provider, strategy models.StrategyConfiguration, evalTime time.Time) filterchain.Result {
	signal, err := data.ML.SignalAt(ctx, evalTime)
	if err != nil {
		return filterchain.Result{Passed: false, Reason: "ML signal unavailable: " + err.Error(), Timestamp: evalTime}
	}

	if signal.Confidence < strategy.MinMLConfidence() {
		return filterchain.Result{
			Passed: false,
			Reason: fmt.Sprintf("ML confidence too low: %.2f < %.2f", signal.Confidence, strategy.MinMLConfidence()),
			Metrics: map[string]interface{}{
				"ml_confidence": signal.Confidence, "min_required": strategy.MinMLConfidence(), "ml_prediction": signal.Prediction,
			},
			Timestamp: evalTime,
		}
	}

	if signal.Prediction != strategy.RequiredMLSignal() {
		return filterchain.Result{
			Passed: false,
			Reason: fmt.Sprintf("ML prediction %q does not match required signal %q", signal.Prediction, strategy.RequiredMLSignal()),
			Metrics: map[string]interface{}{
				"ml_prediction": signal.Prediction, "required_signal": strategy.RequiredMLSignal(), "ml_confidence": signal.Confidence,
			},
			Timestamp: evalTime,
		}
	}

	if signal.SignalStrength < strategy.MinMLSignalStrength() {
		return filterchain.Result{
			Passed: false,
			Reason: fmt.Sprintf("ML signal strength too low: %.2f < %.2f", signal.SignalStrength, strategy.MinMLSignalStrength()),
			Metrics: map[string]interface{}{
				"ml_signal_strength": signal.SignalStrength, "min_required": strategy.MinMLSignalStrength(),
				"ml_prediction": signal.Prediction, "ml_confidence": signal.Confidence,
			},
			Timestamp: evalTime,
		}
	}

	return filterchain.Result{
		Passed: true,
		Reason: "ML confidence check passed",
		Metrics: map[string]interface{}{
			"ml_confidence": signal.Confidence, "ml_prediction": signal.Prediction,
			"ml_signal_strength": signal.SignalStrength, "confidence_score": signal.Confidence * signal.SignalStrength,
		},
		Timestamp: evalTime,
	}
}
