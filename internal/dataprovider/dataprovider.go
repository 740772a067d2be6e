// Package dataprovider declares the external-collaborator boundary the
// filter chain and orchestrator evaluate against: market data, ML
// predictions, and support/resistance detection. Production wiring injects
// real implementations (exchange REST clients, a model-serving client); a
// nil detector falls back to the deterministic placeholder documented on
// the support_resistance filter.
package dataprovider

import (
	"context"
	"time"

	"ares_api/internal/models"
)

// MarketSnapshot is the per-evaluation-point view a filter needs: current
// price, liquidity/volume/spread, volatility measures, and trend.
type MarketSnapshot struct {
	Price                 float64
	Volume                float64
	Spread                float64
	LiquidityScore        float64
	Volatility            float64
	ATR                   float64
	PriceChangeVolatility float64
	MissingDataAround     bool
	PriceAnomaly          bool
	MarketTrend           string // "bullish" | "bearish" | "neutral"
}

// MLSignal is the ML model's output at an evaluation point.
type MLSignal struct {
	Confidence     float64
	Prediction     string // e.g. "long" | "short" | "neutral"
	SignalStrength float64
}

// MarketDataProvider supplies price/volume/volatility data at an
// evaluation point. This is the one collaborator filters 1, 2, 4, 6 and 7
// all depend on.
type MarketDataProvider interface {
	SnapshotAt(ctx context.Context, evalTime time.Time) (MarketSnapshot, error)
}

// MLPredictionProvider supplies a model's directional signal at an
// evaluation point (Filter 5, and Filter 9's ML-strategy branch).
type MLPredictionProvider interface {
	SignalAt(ctx context.Context, evalTime time.Time) (MLSignal, error)
}

// SupportResistanceDetector supplies real support/resistance levels around
// a price (Filter 3, 4). A nil detector is a valid, explicit configuration:
// filters fall back to the flagged deterministic placeholder rather than
// failing closed.
type SupportResistanceDetector interface {
	DetectSupportResistance(ctx context.Context, evalTime time.Time, price float64) (*models.SupportResistanceResult, error)
}

// Provider aggregates the collaborators the filter chain needs for one
// evaluation run. SR is optional; Market and ML are required for any
// filter beyond data_quality to produce a meaningful result.
type Provider struct {
	Market MarketDataProvider
	ML     MLPredictionProvider
	SR     SupportResistanceDetector
}

// OHLCVPoint is a single candle.
type OHLCVPoint struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// OHLCVProvider fetches historical candles for a symbol/timeframe window,
// the Orchestrator's data_fetch stage.
type OHLCVProvider interface {
	FetchOHLCV(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]OHLCVPoint, error)
}

// BTCImpact is the BTC-correlation stage's output: how strongly the
// symbol's price co-moves with BTC, and whether enough data existed to
// say so.
type BTCImpact struct {
	CorrelationCoefficient float64
	DataPoints             int
	SufficientData         bool
}

// BTCCorrelationProvider predicts a symbol's sensitivity to a BTC move.
type BTCCorrelationProvider interface {
	PredictBTCImpact(ctx context.Context, symbol string, asOf time.Time) (BTCImpact, error)
}

// MarketContext is the market_context stage's output.
type MarketContext struct {
	TrendDirection string // e.g. "bullish" | "bearish" | "sideways"
	MarketPhase    string // e.g. "accumulation" | "markup" | "distribution" | "markdown"
}

// MarketContextAnalyzer classifies the broader market regime a symbol sits
// in at a point in time.
type MarketContextAnalyzer interface {
	AnalyzeMarketPhase(ctx context.Context, symbol string, asOf time.Time) (MarketContext, error)
}

// LeverageDecision is the leverage_decision stage's output, gated by the
// Orchestrator's hard-coded policy constants (min leverage 2.0, min
// confidence 0.3).
type LeverageDecision struct {
	RecommendedLeverage float64
	ConfidenceLevel     float64
	RiskRewardRatio     float64
}

// LeverageDecisionProvider computes a final leverage recommendation from
// the accumulated stage outputs.
type LeverageDecisionProvider interface {
	CalculateSafeLeverage(ctx context.Context, symbol string, snapshot MarketSnapshot, signal MLSignal, btc BTCImpact, market MarketContext) (LeverageDecision, error)
}

// AnalysisProvider aggregates every external collaborator the Orchestrator
// needs across its full stage machine, a superset of the filter chain's
// Provider (the Orchestrator runs the filter chain as one of its stages
// when backtesting a strategy, and needs the rest for live analysis).
type AnalysisProvider struct {
	OHLCV   OHLCVProvider
	Market  MarketDataProvider
	ML      MLPredictionProvider
	SR      SupportResistanceDetector
	BTC     BTCCorrelationProvider
	Context MarketContextAnalyzer
	Leverage LeverageDecisionProvider
}
