package providers

import (
	"context"
	"fmt"
	"time"

	"ares_api/internal/binance"
	"ares_api/internal/dataprovider"
)

// MarketContext implements dataprovider.MarketContextAnalyzer: classify
// trend direction from the recent price slope and market phase from trend
// direction plus realized volatility.
type MarketContext struct {
	client    *binance.BinanceClient
	timeframe string
}

func NewMarketContext(client *binance.BinanceClient, timeframe string) *MarketContext {
	return &MarketContext{client: client, timeframe: timeframe}
}

func (p *MarketContext) AnalyzeMarketPhase(ctx context.Context, symbol string, asOf time.Time) (dataprovider.MarketContext, error) {
	interval := intervalForTimeframe(p.timeframe)
	window := 50 * intervalDuration(interval)
	start := asOf.Add(-window)

	candles, err := p.client.GetHistoricalKlines(symbol, interval, start.UnixMilli(), asOf.UnixMilli(), 50)
	if err != nil {
		return dataprovider.MarketContext{}, fmt.Errorf("providers: market context fetch: %w", err)
	}
	if len(candles) < 10 {
		return dataprovider.MarketContext{TrendDirection: "neutral", MarketPhase: "accumulation"}, nil
	}

	trend := trendOf(candles)
	vol := realizedVolatility(candles)

	var phase string
	switch {
	case trend == "bullish" && vol < 0.03:
		phase = "markup"
	case trend == "bullish":
		phase = "accumulation"
	case trend == "bearish" && vol < 0.03:
		phase = "markdown"
	case trend == "bearish":
		phase = "distribution"
	default:
		phase = "accumulation"
	}

	return dataprovider.MarketContext{TrendDirection: trend, MarketPhase: phase}, nil
}
