package providers

import (
	"context"

	"github.com/shopspring/decimal"

	"ares_api/internal/dataprovider"
)

// LeverageDecision implements dataprovider.LeverageDecisionProvider. The
// internal arithmetic runs on decimal.Decimal rather than float64 so the
// leverage/confidence/risk-reward figures that eventually land in a
// persisted AnalysisResult are never the product of floating-point
// accumulation error; the interface boundary still returns float64 because
// dataprovider.LeverageDecision is shared with the filter chain's Provider,
// which is float64 throughout.
type LeverageDecision struct{}

func NewLeverageDecision() *LeverageDecision {
	return &LeverageDecision{}
}

var (
	decZero        = decimal.NewFromInt(0)
	decOne         = decimal.NewFromInt(1)
	decTen         = decimal.NewFromInt(10)
	decMaxLeverage = decimal.NewFromInt(15)
)

func (p *LeverageDecision) CalculateSafeLeverage(
	ctx context.Context,
	symbol string,
	snapshot dataprovider.MarketSnapshot,
	signal dataprovider.MLSignal,
	btc dataprovider.BTCImpact,
	market dataprovider.MarketContext,
) (dataprovider.LeverageDecision, error) {
	volatility := decimal.NewFromFloat(snapshot.Volatility)
	liquidity := decimal.NewFromFloat(snapshot.LiquidityScore)
	mlConfidence := decimal.NewFromFloat(signal.Confidence)

	// Base leverage scales inversely with volatility: calmer markets tolerate
	// more leverage, capped at decMaxLeverage.
	inverseVol := decOne
	if volatility.GreaterThan(decZero) {
		inverseVol = decOne.Div(volatility)
	}
	base := inverseVol.Mul(decimal.NewFromFloat(0.02))
	if base.GreaterThan(decMaxLeverage) {
		base = decMaxLeverage
	}

	// BTC correlation risk trims leverage for highly-correlated alts when
	// BTC itself is the bigger, harder-to-time move.
	correlationPenalty := decOne
	if btc.SufficientData {
		absCorr := decimal.NewFromFloat(btc.CorrelationCoefficient).Abs()
		correlationPenalty = decOne.Sub(absCorr.Mul(decimal.NewFromFloat(0.3)))
	}

	// Market-phase adjustment: markup/markdown (trending) phases support
	// slightly more leverage than accumulation/distribution (chop).
	phaseMultiplier := decimal.NewFromFloat(0.85)
	if market.MarketPhase == "markup" || market.MarketPhase == "markdown" {
		phaseMultiplier = decOne
	}

	recommended := base.Mul(correlationPenalty).Mul(phaseMultiplier)
	if recommended.LessThan(decOne) {
		recommended = decOne
	}

	confidence := liquidity.Mul(decimal.NewFromFloat(0.4)).
		Add(mlConfidence.Mul(decimal.NewFromFloat(0.6)))
	if confidence.GreaterThan(decOne) {
		confidence = decOne
	}

	// Risk-reward ratio: wider ATR relative to price implies a wider stop,
	// so the achievable reward-to-risk shrinks.
	riskReward := decimal.NewFromFloat(2.0)
	if snapshot.Price > 0 {
		atrRatio := decimal.NewFromFloat(snapshot.ATR).Div(decimal.NewFromFloat(snapshot.Price))
		if atrRatio.GreaterThan(decZero) {
			riskReward = decOne.Div(atrRatio).Div(decTen)
			if riskReward.GreaterThan(decimal.NewFromInt(5)) {
				riskReward = decimal.NewFromInt(5)
			}
			if riskReward.LessThan(decimal.NewFromFloat(0.5)) {
				riskReward = decimal.NewFromFloat(0.5)
			}
		}
	}

	recommendedF, _ := recommended.Round(2).Float64()
	confidenceF, _ := confidence.Round(4).Float64()
	riskRewardF, _ := riskReward.Round(2).Float64()

	return dataprovider.LeverageDecision{
		RecommendedLeverage: recommendedF,
		ConfidenceLevel:      confidenceF,
		RiskRewardRatio:      riskRewardF,
	}, nil
}
