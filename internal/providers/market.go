// Package providers wires the dataprovider interface boundary to concrete
// implementations: Binance for market data, and heuristic BTC-correlation,
// market-context, and leverage-decision engines.
package providers

import (
	"context"
	"fmt"
	"time"

	"ares_api/internal/binance"
	"ares_api/internal/dataprovider"
)

// intervalForTimeframe maps the orchestrator's free-form timeframe string
// onto a Binance kline interval, defaulting to 1h for anything unrecognized.
func intervalForTimeframe(timeframe string) binance.KlineInterval {
	switch timeframe {
	case "1m":
		return binance.Interval1m
	case "5m":
		return binance.Interval5m
	case "15m":
		return binance.Interval15m
	case "1h":
		return binance.Interval1h
	case "4h":
		return binance.Interval4h
	case "1d":
		return binance.Interval1d
	default:
		return binance.Interval1h
	}
}

// BinanceMarketData implements dataprovider.OHLCVProvider and
// dataprovider.MarketDataProvider against a live Binance client, optionally
// fronted by the on-disk candle cache so a backtest walking the same window
// for several strategies only hits the exchange once.
type BinanceMarketData struct {
	client    *binance.BinanceClient
	cache     *binance.HistoricalDataManager
	timeframe string
	symbol    string
}

// NewBinanceMarketData builds a BinanceMarketData bound to one symbol and
// timeframe, matching the Orchestrator's per-task collaborator lifetime (a
// fresh Provider per Analyze call, not a shared long-lived client state).
// cache may be nil; fetches then always go straight to the exchange.
func NewBinanceMarketData(client *binance.BinanceClient, cache *binance.HistoricalDataManager, symbol, timeframe string) *BinanceMarketData {
	return &BinanceMarketData{client: client, cache: cache, symbol: symbol, timeframe: timeframe}
}

func (b *BinanceMarketData) FetchOHLCV(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]dataprovider.OHLCVPoint, error) {
	var candles []binance.HistoricalCandle
	var err error
	if b.cache != nil {
		candles, err = b.cache.GetHistoricalCandles(symbol, intervalForTimeframe(timeframe), from, to)
	} else {
		candles, err = b.client.GetKlinesBatch(symbol, intervalForTimeframe(timeframe), from.UnixMilli(), to.UnixMilli())
	}
	if err != nil {
		return nil, fmt.Errorf("providers: fetch ohlcv: %w", err)
	}
	points := make([]dataprovider.OHLCVPoint, 0, len(candles))
	for _, c := range candles {
		points = append(points, dataprovider.OHLCVPoint{
			Timestamp: c.Timestamp,
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		})
	}
	return points, nil
}

func (b *BinanceMarketData) SnapshotAt(ctx context.Context, evalTime time.Time) (dataprovider.MarketSnapshot, error) {
	interval := intervalForTimeframe(b.timeframe)
	windowStart := evalTime.Add(-30 * intervalDuration(interval))
	candles, err := b.client.GetHistoricalKlines(b.symbol, interval, windowStart.UnixMilli(), evalTime.UnixMilli(), 30)
	if err != nil {
		return dataprovider.MarketSnapshot{}, fmt.Errorf("providers: snapshot: %w", err)
	}
	if len(candles) == 0 {
		return dataprovider.MarketSnapshot{}, fmt.Errorf("providers: snapshot: no candles returned for %s", b.symbol)
	}

	last := candles[len(candles)-1]
	return dataprovider.MarketSnapshot{
		Price:                 last.Close,
		Volume:                last.Volume,
		Spread:                estimateSpread(candles),
		LiquidityScore:        liquidityScore(candles),
		Volatility:            realizedVolatility(candles),
		ATR:                   averageTrueRange(candles),
		PriceChangeVolatility: realizedVolatility(candles),
		MissingDataAround:     len(candles) < 30,
		PriceAnomaly:          hasPriceAnomaly(candles),
		MarketTrend:           trendOf(candles),
	}, nil
}

func intervalDuration(interval binance.KlineInterval) time.Duration {
	switch interval {
	case binance.Interval1m:
		return time.Minute
	case binance.Interval5m:
		return 5 * time.Minute
	case binance.Interval15m:
		return 15 * time.Minute
	case binance.Interval1h:
		return time.Hour
	case binance.Interval4h:
		return 4 * time.Hour
	case binance.Interval1d:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

func estimateSpread(candles []binance.HistoricalCandle) float64 {
	last := candles[len(candles)-1]
	if last.Close == 0 {
		return 0
	}
	return (last.High - last.Low) / last.Close
}

func liquidityScore(candles []binance.HistoricalCandle) float64 {
	var total float64
	for _, c := range candles {
		total += c.Volume
	}
	avg := total / float64(len(candles))
	// Normalize into roughly [0, 1]; larger average volume -> closer to 1.
	score := avg / (avg + 1)
	return score
}

func realizedVolatility(candles []binance.HistoricalCandle) float64 {
	if len(candles) < 2 {
		return 0
	}
	var sumSq float64
	var prevClose float64
	var n int
	for i, c := range candles {
		if i == 0 {
			prevClose = c.Close
			continue
		}
		if prevClose != 0 {
			ret := (c.Close - prevClose) / prevClose
			sumSq += ret * ret
			n++
		}
		prevClose = c.Close
	}
	if n == 0 {
		return 0
	}
	return sqrtFloat(sumSq / float64(n))
}

func averageTrueRange(candles []binance.HistoricalCandle) float64 {
	if len(candles) < 2 {
		return 0
	}
	var total float64
	var n int
	for i := 1; i < len(candles); i++ {
		prevClose := candles[i-1].Close
		high, low := candles[i].High, candles[i].Low
		tr := high - low
		if hc := absFloat(high - prevClose); hc > tr {
			tr = hc
		}
		if lc := absFloat(low - prevClose); lc > tr {
			tr = lc
		}
		total += tr
		n++
	}
	return total / float64(n)
}

func hasPriceAnomaly(candles []binance.HistoricalCandle) bool {
	if len(candles) < 2 {
		return false
	}
	last := candles[len(candles)-1]
	prev := candles[len(candles)-2]
	if prev.Close == 0 {
		return false
	}
	change := absFloat((last.Close - prev.Close) / prev.Close)
	return change > 0.1
}

func trendOf(candles []binance.HistoricalCandle) string {
	if len(candles) < 2 {
		return "neutral"
	}
	first := candles[0].Close
	last := candles[len(candles)-1].Close
	if first == 0 {
		return "neutral"
	}
	change := (last - first) / first
	switch {
	case change > 0.02:
		return "bullish"
	case change < -0.02:
		return "bearish"
	default:
		return "neutral"
	}
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func sqrtFloat(v float64) float64 {
	if v <= 0 {
		return 0
	}
	x := v
	for i := 0; i < 32; i++ {
		x = 0.5 * (x + v/x)
	}
	return x
}
