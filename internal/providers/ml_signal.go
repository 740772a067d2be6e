package providers

import (
	"context"
	"fmt"
	"time"

	"ares_api/internal/binance"
	"ares_api/internal/dataprovider"
)

// MomentumSignal implements dataprovider.MLPredictionProvider with a
// momentum/volatility heuristic rather than a served model. The predictor
// is a pluggable collaborator, so a real model-serving client can replace
// it behind the same interface.
type MomentumSignal struct {
	client    *binance.BinanceClient
	symbol    string
	timeframe string
}

func NewMomentumSignal(client *binance.BinanceClient, symbol, timeframe string) *MomentumSignal {
	return &MomentumSignal{client: client, symbol: symbol, timeframe: timeframe}
}

func (p *MomentumSignal) SignalAt(ctx context.Context, evalTime time.Time) (dataprovider.MLSignal, error) {
	interval := intervalForTimeframe(p.timeframe)
	window := 20 * intervalDuration(interval)
	start := evalTime.Add(-window)

	candles, err := p.client.GetHistoricalKlines(p.symbol, interval, start.UnixMilli(), evalTime.UnixMilli(), 20)
	if err != nil {
		return dataprovider.MLSignal{}, fmt.Errorf("providers: ml signal fetch: %w", err)
	}
	if len(candles) < 5 {
		return dataprovider.MLSignal{Confidence: 0, Prediction: "neutral", SignalStrength: 0}, nil
	}

	trend := trendOf(candles)
	vol := realizedVolatility(candles)

	strength := absFloat(candles[len(candles)-1].Close-candles[0].Close) / candles[0].Close
	confidence := clampUnit(strength*10 - vol*5)

	prediction := "neutral"
	switch trend {
	case "bullish":
		prediction = "long"
	case "bearish":
		prediction = "short"
	}

	return dataprovider.MLSignal{
		Confidence:     confidence,
		Prediction:     prediction,
		SignalStrength: clampUnit(strength * 10),
	}, nil
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
