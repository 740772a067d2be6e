package providers

import (
	"context"
	"fmt"
	"time"

	"ares_api/internal/binance"
	"ares_api/internal/dataprovider"
)

// BTCCorrelation implements dataprovider.BTCCorrelationProvider by comparing
// a symbol's recent returns against BTCUSDT's over the same window; the
// Pearson correlation is computed directly from Binance candles.
type BTCCorrelation struct {
	client    *binance.BinanceClient
	timeframe string
	minPoints int
}

func NewBTCCorrelation(client *binance.BinanceClient, timeframe string) *BTCCorrelation {
	return &BTCCorrelation{client: client, timeframe: timeframe, minPoints: 20}
}

func (p *BTCCorrelation) PredictBTCImpact(ctx context.Context, symbol string, asOf time.Time) (dataprovider.BTCImpact, error) {
	interval := intervalForTimeframe(p.timeframe)
	window := 30 * intervalDuration(interval)
	start := asOf.Add(-window)

	symbolCandles, err := p.client.GetHistoricalKlines(symbol, interval, start.UnixMilli(), asOf.UnixMilli(), 30)
	if err != nil {
		return dataprovider.BTCImpact{}, fmt.Errorf("providers: btc correlation symbol fetch: %w", err)
	}
	btcCandles, err := p.client.GetHistoricalKlines("BTCUSDT", interval, start.UnixMilli(), asOf.UnixMilli(), 30)
	if err != nil {
		return dataprovider.BTCImpact{}, fmt.Errorf("providers: btc correlation btc fetch: %w", err)
	}

	n := len(symbolCandles)
	if len(btcCandles) < n {
		n = len(btcCandles)
	}
	if n < p.minPoints {
		return dataprovider.BTCImpact{DataPoints: n, SufficientData: false}, nil
	}

	symbolReturns := returnsOf(symbolCandles[:n])
	btcReturns := returnsOf(btcCandles[:n])
	correlation := pearson(symbolReturns, btcReturns)

	return dataprovider.BTCImpact{
		CorrelationCoefficient: correlation,
		DataPoints:             n,
		SufficientData:         true,
	}, nil
}

func returnsOf(candles []binance.HistoricalCandle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (candles[i].Close-prev)/prev)
	}
	return out
}

func pearson(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}
	var sumA, sumB float64
	for i := 0; i < n; i++ {
		sumA += a[i]
		sumB += b[i]
	}
	meanA := sumA / float64(n)
	meanB := sumB / float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	denom := sqrtFloat(varA * varB)
	if denom == 0 {
		return 0
	}
	return cov / denom
}
