package providers

import (
	"ares_api/internal/binance"
	"ares_api/internal/dataprovider"
)

// NewAnalysisProvider assembles the full dataprovider.AnalysisProvider the
// Orchestrator needs for one (symbol, timeframe) task, backed by a shared
// Binance client and an optional on-disk candle cache (nil skips caching).
// SR (support/resistance) is left nil: no real detector is wired in this
// deployment, so Filter 3/4 and the orchestrator's S/R stage fall back to
// the deterministic placeholder documented on
// dataprovider.SupportResistanceDetector.
func NewAnalysisProvider(client *binance.BinanceClient, cache *binance.HistoricalDataManager, symbol, timeframe string) *dataprovider.AnalysisProvider {
	market := NewBinanceMarketData(client, cache, symbol, timeframe)
	return &dataprovider.AnalysisProvider{
		OHLCV:    market,
		Market:   market,
		ML:       NewMomentumSignal(client, symbol, timeframe),
		SR:       nil,
		BTC:      NewBTCCorrelation(client, timeframe),
		Context:  NewMarketContext(client, timeframe),
		Leverage: NewLeverageDecision(),
	}
}
