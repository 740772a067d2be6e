// Package orchestrator implements the per-task state machine that takes
// one (symbol, timeframe, strategy) combination through data fetch,
// support/resistance detection, ML prediction, BTC correlation, market
// context, and leverage decision, producing a single AnalysisResult.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"ares_api/internal/analysisresult"
	"ares_api/internal/dataprovider"
	"ares_api/internal/filterchain"
	"ares_api/internal/filterchain/filters"
	"ares_api/internal/logger"
	"ares_api/internal/models"
	"ares_api/internal/progressstore"
)

var tracer = otel.Tracer("ares_api/internal/orchestrator")

// Hard-coded policy constants: these never move into the Strategy Catalog,
// unlike every other threshold in the filter chain.
const (
	minRecommendedLeverage = 2.0
	minLeverageConfidence  = 0.3
)

// liveLookbackBars is how many bars of history a live (non-backtest)
// analysis fetches, ending at the evaluation timestamp.
const liveLookbackBars = 200

func timeframeDuration(timeframe string) time.Duration {
	switch timeframe {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// fetchWindow resolves the candle range the data_fetch stage requests: the
// caller's explicit period when one is supplied (backtest), otherwise a
// trailing liveLookbackBars-bar window ending at the evaluation timestamp.
func fetchWindow(timeframe string, asOf time.Time, period Period) (time.Time, time.Time) {
	if !period.Start.IsZero() && !period.End.IsZero() {
		return period.Start, period.End
	}
	return asOf.Add(-liveLookbackBars * timeframeDuration(timeframe)), asOf
}

// Period resolves the historical window an analysis run covers. A backtest
// walks every Step-spaced point from Start through End, End included; a live
// analysis evaluates only TargetTimestamp.
type Period struct {
	Start time.Time
	End   time.Time
	Step  time.Duration
}

// BacktestSummary is the trade-level outcome of walking the filter chain
// across a period, reduced to the fields the Analysis Store persists.
type BacktestSummary struct {
	TotalTrades int
	WinRate     float64
	TotalReturn float64
	SharpeRatio float64
	MaxDrawdown float64
	AvgLeverage float64
}

// DataFactory builds the collaborator set for one (symbol, timeframe) pair.
// The Coordinator's worker pool fans a single Orchestrator out across many
// symbols concurrently, so collaborators that are bound to one instrument
// (the Binance-backed market data and ML signal providers) can't live on the
// Orchestrator itself — they're built fresh per Analyze call instead.
type DataFactory func(symbol, timeframe string) *dataprovider.AnalysisProvider

// Orchestrator runs Analyze for one task at a time. It holds no per-task
// state; everything needed is passed into Analyze so one Orchestrator value
// is safely reused by every worker in the pool.
type Orchestrator struct {
	dataFactory DataFactory
	progress    *progressstore.Store
	chain       *filterchain.Chain
}

// New builds an Orchestrator against the given collaborator factory.
// progress may be nil in tests that don't care about Progress Store side
// effects.
func New(dataFactory DataFactory, progress *progressstore.Store) *Orchestrator {
	return &Orchestrator{
		dataFactory: dataFactory,
		progress:    progress,
		chain:       filterchain.NewChain(filters.DefaultChain()),
	}
}

// Analyze runs the full stage machine for one (symbol, timeframe, strategy)
// combination and returns the terminal AnalysisResult. It never panics: a
// stage collaborator error is always converted into either an early exit
// or, for unexpected errors outside the documented exit conditions, a
// failed result. No stage ever substitutes synthesized or cached-elsewhere
// data for a fetch it could not complete.
func (o *Orchestrator) Analyze(ctx context.Context, symbol, timeframe string, strategy models.StrategyConfiguration, executionID string, isBacktest bool, targetTimestamp time.Time, period Period) (result *analysisresult.AnalysisResult) {
	started := time.Now()
	result = analysisresult.New(symbol, timeframe, strategy.Name, executionID, started)
	data := o.dataFactory(symbol, timeframe)

	defer func() {
		if r := recover(); r != nil {
			logger.Warn("orchestrator: recovered panic during analyze", "symbol", symbol, "strategy", strategy.Name, "panic", fmt.Sprintf("%v", r))
			result.MarkFailed(fmt.Sprintf("internal error: %v", r), time.Now())
			o.failProgress(executionID, models.StageInitializing, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if o.progress != nil {
		if _, err := o.progress.StartAnalysis(symbol, executionID); err != nil {
			logger.Warn("orchestrator: failed to start progress record", "execution_id", executionID, "error", err.Error())
		}
	}

	asOf := targetTimestamp
	if asOf.IsZero() {
		asOf = time.Now()
	}

	ctx, span := tracer.Start(ctx, "orchestrator.analyze")
	span.SetAttributes(
		attribute.String("symbol", symbol),
		attribute.String("timeframe", timeframe),
		attribute.String("strategy", strategy.Name),
		attribute.String("execution_id", executionID),
		attribute.Bool("backtest", isBacktest),
	)
	defer span.End()

	if o.cancelled(ctx) {
		return o.exit(result, analysisresult.StageDataFetch, analysisresult.ReasonCancelled, ctx.Err().Error())
	}

	// Stage 1: data_fetch
	o.updateStage(executionID, models.StageDataFetch)
	stageStart := time.Now()
	endStage := stageSpan(ctx, analysisresult.StageDataFetch)
	fetchFrom, fetchTo := fetchWindow(timeframe, asOf, period)
	candles, err := data.OHLCV.FetchOHLCV(ctx, symbol, timeframe, fetchFrom, fetchTo)
	stage1 := stageResult(analysisresult.StageDataFetch, stageStart, err)
	result.AddStageResult(stage1)
	endStage()
	if err != nil {
		return o.exit(result, analysisresult.StageDataFetch, analysisresult.ReasonInsufficientData, err.Error())
	}
	if len(candles) == 0 {
		return o.exit(result, analysisresult.StageDataFetch, analysisresult.ReasonInsufficientData, "no candles returned for the requested period")
	}
	count := len(candles)
	result.TotalDataPoints = &count
	currentPrice := candles[len(candles)-1].Close

	if o.cancelled(ctx) {
		return o.exit(result, analysisresult.StageSupportResistance, analysisresult.ReasonCancelled, ctx.Err().Error())
	}

	// Stage 2: support_resistance. A nil detector is a valid deployment
	// configuration and falls back to the same flagged placeholder the
	// filter chain uses, so live analysis and backtest see one level set.
	o.updateStage(executionID, models.StageSupportResistance)
	stageStart = time.Now()
	endStage = stageSpan(ctx, analysisresult.StageSupportResistance)
	var levels *models.SupportResistanceResult
	if data.SR != nil {
		levels, err = data.SR.DetectSupportResistance(ctx, asOf, currentPrice)
	} else {
		levels, err = filters.PlaceholderSupportResistance(currentPrice, asOf), nil
	}
	result.AddStageResult(stageResult(analysisresult.StageSupportResistance, stageStart, err))
	endStage()
	if err != nil {
		o.failSubRecord(executionID, func(r models.SupportResistanceResult) models.SupportResistanceResult {
			r.Status = models.SubFailed
			r.ErrorMessage = err.Error()
			return r
		})
		return o.exit(result, analysisresult.StageSupportResistance, analysisresult.ReasonNoSupportResistance, err.Error())
	}
	if levels == nil || (len(levels.Supports) == 0 && len(levels.Resistances) == 0) {
		o.updateSupportResistance(executionID, models.SupportResistanceResult{Status: models.SubFailed})
		return o.exit(result, analysisresult.StageSupportResistance, analysisresult.ReasonNoSupportResistance, "no support or resistance levels detected")
	}
	srRec := models.SupportResistanceResult{
		Status:           models.SubSuccess,
		SupportsCount:    len(levels.Supports),
		ResistancesCount: len(levels.Resistances),
	}
	supportsTruncated := srRec.AppendSupports(levels.Supports)
	resistancesTruncated := srRec.AppendResistances(levels.Resistances)
	if supportsTruncated || resistancesTruncated {
		logger.Warn("orchestrator: support/resistance level list truncated for progress record", "execution_id", executionID)
	}
	o.updateSupportResistance(executionID, srRec)

	if o.cancelled(ctx) {
		return o.exit(result, analysisresult.StageMLPrediction, analysisresult.ReasonCancelled, ctx.Err().Error())
	}

	// Stage 3: ml_prediction. Error discipline: any prediction error fails
	// the whole stage, there is no partial credit.
	o.updateStage(executionID, models.StageMLPrediction)
	stageStart = time.Now()
	endStage = stageSpan(ctx, analysisresult.StageMLPrediction)
	signal, err := data.ML.SignalAt(ctx, asOf)
	result.AddStageResult(stageResult(analysisresult.StageMLPrediction, stageStart, err))
	endStage()
	if err != nil {
		o.updateMLPrediction(executionID, models.MLPredictionResult{Status: models.SubFailed, ErrorMessage: err.Error()})
		return o.exit(result, analysisresult.StageMLPrediction, analysisresult.ReasonMLPredictionFailed, err.Error())
	}
	o.updateMLPrediction(executionID, models.MLPredictionResult{Status: models.SubSuccess, PredictionsCount: 1, Confidence: signal.Confidence})

	if o.cancelled(ctx) {
		return o.exit(result, analysisresult.StageBTCCorrelation, analysisresult.ReasonCancelled, ctx.Err().Error())
	}

	// Stage 4: btc_correlation. Both "insufficient data" and "network"
	// failure modes are fatal to the stage; the provider surfaces both as a
	// plain error and as SufficientData=false.
	o.updateStage(executionID, models.StageBTCCorrelation)
	stageStart = time.Now()
	endStage = stageSpan(ctx, analysisresult.StageBTCCorrelation)
	btc, err := data.BTC.PredictBTCImpact(ctx, symbol, asOf)
	result.AddStageResult(stageResult(analysisresult.StageBTCCorrelation, stageStart, err))
	endStage()
	if err != nil {
		o.updateBTCCorrelation(executionID, models.BTCCorrelationResult{Status: models.SubFailed, ErrorMessage: err.Error()})
		return o.exit(result, analysisresult.StageBTCCorrelation, analysisresult.ReasonBTCDataInsufficient, err.Error())
	}
	if !btc.SufficientData {
		o.updateBTCCorrelation(executionID, models.BTCCorrelationResult{Status: models.SubFailed, CorrelationCoefficient: btc.CorrelationCoefficient})
		return o.exit(result, analysisresult.StageBTCCorrelation, analysisresult.ReasonBTCDataInsufficient, "insufficient data points for BTC correlation")
	}
	o.updateBTCCorrelation(executionID, models.BTCCorrelationResult{
		Status:                 models.SubSuccess,
		CorrelationCoefficient: btc.CorrelationCoefficient,
		SufficientData:         true,
	})

	if o.cancelled(ctx) {
		return o.exit(result, analysisresult.StageMarketContext, analysisresult.ReasonCancelled, ctx.Err().Error())
	}

	// Stage 5: market_context
	o.updateStage(executionID, models.StageMarketContext)
	stageStart = time.Now()
	endStage = stageSpan(ctx, analysisresult.StageMarketContext)
	marketCtx, err := data.Context.AnalyzeMarketPhase(ctx, symbol, asOf)
	result.AddStageResult(stageResult(analysisresult.StageMarketContext, stageStart, err))
	endStage()
	if err != nil {
		o.updateMarketContext(executionID, models.MarketContextResult{Status: models.SubFailed, ErrorMessage: err.Error()})
		return o.exit(result, analysisresult.StageMarketContext, analysisresult.ReasonMarketContextFailed, err.Error())
	}
	o.updateMarketContext(executionID, models.MarketContextResult{
		Status:         models.SubSuccess,
		TrendDirection: marketCtx.TrendDirection,
		MarketPhase:    marketCtx.MarketPhase,
	})

	if o.cancelled(ctx) {
		return o.exit(result, analysisresult.StageLeverageDecision, analysisresult.ReasonCancelled, ctx.Err().Error())
	}

	// Stage 6: leverage_decision, gated by the hard-coded policy constants.
	o.updateStage(executionID, models.StageLeverageDecision)
	stageStart = time.Now()
	endStage = stageSpan(ctx, analysisresult.StageLeverageDecision)
	snapshot := dataprovider.MarketSnapshot{Price: currentPrice, MarketTrend: marketCtx.TrendDirection}
	decision, err := data.Leverage.CalculateSafeLeverage(ctx, symbol, snapshot, signal, btc, marketCtx)
	result.AddStageResult(stageResult(analysisresult.StageLeverageDecision, stageStart, err))
	endStage()
	if err != nil {
		o.updateLeverageDecision(executionID, models.LeverageDecisionResult{Status: models.SubFailed, ErrorMessage: err.Error()})
		return o.exit(result, analysisresult.StageLeverageDecision, analysisresult.ReasonLeverageConditionsUnmet, err.Error())
	}
	if decision.RecommendedLeverage < minRecommendedLeverage || decision.ConfidenceLevel < minLeverageConfidence {
		o.updateLeverageDecision(executionID, models.LeverageDecisionResult{
			Status:              models.SubFailed,
			RecommendedLeverage: decision.RecommendedLeverage,
			ConfidenceLevel:     decision.ConfidenceLevel,
			RiskRewardRatio:     decision.RiskRewardRatio,
		})
		return o.exit(result, analysisresult.StageLeverageDecision, analysisresult.ReasonLeverageConditionsUnmet,
			fmt.Sprintf("leverage %.2f / confidence %.2f below policy minimums (%.1f / %.1f)", decision.RecommendedLeverage, decision.ConfidenceLevel, minRecommendedLeverage, minLeverageConfidence))
	}
	o.updateLeverageDecision(executionID, models.LeverageDecisionResult{
		Status:              models.SubSuccess,
		RecommendedLeverage: decision.RecommendedLeverage,
		ConfidenceLevel:     decision.ConfidenceLevel,
		RiskRewardRatio:     decision.RiskRewardRatio,
	})

	recommendation := map[string]interface{}{
		"recommended_leverage": decision.RecommendedLeverage,
		"confidence_level":     decision.ConfidenceLevel,
		"risk_reward_ratio":    decision.RiskRewardRatio,
		"trend_direction":      marketCtx.TrendDirection,
		"market_phase":         marketCtx.MarketPhase,
		"btc_correlation":      btc.CorrelationCoefficient,
		"ml_prediction":        signal.Prediction,
		"ml_confidence":        signal.Confidence,
	}

	if isBacktest {
		summary := o.runBacktest(ctx, data, strategy, period)
		recommendation["backtest"] = summary
	}

	completedAt := time.Now()
	result.MarkCompleted(recommendation, completedAt)
	if o.progress != nil {
		if err := o.progress.CompleteAnalysis(executionID, models.SignalDetected, "analysis complete - signal detected"); err != nil {
			logger.Warn("orchestrator: failed to complete progress record", "execution_id", executionID, "error", err.Error())
		}
	}
	return result
}

// runBacktest walks the filter chain across the requested period and
// reduces the resulting trades into the summary fields the Analysis Store
// persists. Errors encountered while walking are logged, not fatal — a
// backtest with a thin trade sample is still a valid (if uninteresting)
// result, unlike the stage machine above where missing data is always fatal.
func (o *Orchestrator) runBacktest(ctx context.Context, data *dataprovider.AnalysisProvider, strategy models.StrategyConfiguration, period Period) BacktestSummary {
	evalTimes := evaluationPoints(period)
	if len(evalTimes) == 0 {
		return BacktestSummary{}
	}

	provider := &dataprovider.Provider{Market: data.Market, ML: data.ML, SR: data.SR}
	trades := o.chain.ExecuteFiltering(ctx, provider, strategy, evalTimes, nil)
	return summarizeTrades(trades)
}

func evaluationPoints(period Period) []time.Time {
	if period.Step <= 0 || period.End.Before(period.Start) {
		return nil
	}
	var points []time.Time
	for t := period.Start; !t.After(period.End); t = t.Add(period.Step) {
		points = append(points, t)
	}
	return points
}

func summarizeTrades(trades []filterchain.Trade) BacktestSummary {
	if len(trades) == 0 {
		return BacktestSummary{}
	}

	var totalReturn, leverageSum float64
	wins := 0
	returns := make([]float64, 0, len(trades))

	for _, t := range trades {
		tradeReturn := (t.ProfitPotential - t.DownsideRisk) * t.Leverage
		returns = append(returns, tradeReturn)
		totalReturn += tradeReturn
		leverageSum += t.Leverage
		if tradeReturn > 0 {
			wins++
		}
	}

	return BacktestSummary{
		TotalTrades: len(trades),
		WinRate:     float64(wins) / float64(len(trades)),
		TotalReturn: totalReturn,
		SharpeRatio: sharpeRatio(returns),
		MaxDrawdown: maxDrawdown(returns),
		AvgLeverage: leverageSum / float64(len(trades)),
	}
}

// sharpeRatio uses a zero risk-free rate; there is no funding-rate model
// to subtract.
func sharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := meanOf(returns)
	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	stdDev := sqrt(variance)
	if stdDev == 0 {
		return 0
	}
	return mean / stdDev
}

func maxDrawdown(returns []float64) float64 {
	var cumulative, peak, maxDD float64
	for _, r := range returns {
		cumulative += r
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func meanOf(vs []float64) float64 {
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// sqrt avoids pulling in math just for one call site at the bottom of this
// file; Newton's method converges to float64 precision in a handful of
// iterations for the small variances this function sees.
func sqrt(v float64) float64 {
	if v <= 0 {
		return 0
	}
	x := v
	for i := 0; i < 40; i++ {
		x = 0.5 * (x + v/x)
	}
	return x
}

// stageSpan opens a child span for one pipeline stage; the returned func
// ends it once the stage's result has been recorded, so stage timings show
// up in a trace as well as in StageResult.ExecutionTimeMs.
func stageSpan(ctx context.Context, stage analysisresult.AnalysisStage) func() {
	_, span := tracer.Start(ctx, "stage."+string(stage))
	return func() { span.End() }
}

func stageResult(stage analysisresult.AnalysisStage, start time.Time, err error) analysisresult.StageResult {
	sr := analysisresult.StageResult{
		Stage:          stage,
		Success:        err == nil,
		ExecutionTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}
	if err != nil {
		sr.ErrorMessage = err.Error()
	}
	return sr
}

// cancelled reports whether the Coordinator's cancel signal has fired,
// letting a worker stop between stages instead of mid-stage.
func (o *Orchestrator) cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (o *Orchestrator) exit(result *analysisresult.AnalysisResult, stage analysisresult.AnalysisStage, reason analysisresult.ExitReason, msg string) *analysisresult.AnalysisResult {
	result.MarkEarlyExit(stage, reason, msg, time.Now())
	if o.progress != nil {
		if err := o.progress.FailAnalysis(result.ExecutionID, progressStageFor(stage), msg); err != nil {
			logger.Warn("orchestrator: failed to record early exit in progress record", "execution_id", result.ExecutionID, "error", err.Error())
		}
	}
	return result
}

func progressStageFor(stage analysisresult.AnalysisStage) models.Stage {
	switch stage {
	case analysisresult.StageDataFetch:
		return models.StageDataFetch
	case analysisresult.StageSupportResistance:
		return models.StageSupportResistance
	case analysisresult.StageMLPrediction:
		return models.StageMLPrediction
	case analysisresult.StageBTCCorrelation:
		return models.StageBTCCorrelation
	case analysisresult.StageMarketContext:
		return models.StageMarketContext
	case analysisresult.StageLeverageDecision:
		return models.StageLeverageDecision
	default:
		return models.StageFailed
	}
}

func (o *Orchestrator) updateStage(executionID string, stage models.Stage) {
	if o.progress == nil {
		return
	}
	if err := o.progress.UpdateStage(executionID, stage); err != nil {
		logger.Warn("orchestrator: failed to update progress stage", "execution_id", executionID, "stage", string(stage), "error", err.Error())
	}
}

func (o *Orchestrator) failProgress(executionID string, stage models.Stage, msg string) {
	if o.progress == nil {
		return
	}
	if err := o.progress.FailAnalysis(executionID, stage, msg); err != nil {
		logger.Warn("orchestrator: failed to fail progress record", "execution_id", executionID, "error", err.Error())
	}
}

func (o *Orchestrator) failSubRecord(executionID string, mutate func(models.SupportResistanceResult) models.SupportResistanceResult) {
	if o.progress == nil {
		return
	}
	rec := mutate(models.SupportResistanceResult{})
	if err := o.progress.UpdateSupportResistance(executionID, rec); err != nil {
		logger.Warn("orchestrator: failed to update support/resistance progress", "execution_id", executionID, "error", err.Error())
	}
}

func (o *Orchestrator) updateSupportResistance(executionID string, rec models.SupportResistanceResult) {
	if o.progress == nil {
		return
	}
	if err := o.progress.UpdateSupportResistance(executionID, rec); err != nil {
		logger.Warn("orchestrator: failed to update support/resistance progress", "execution_id", executionID, "error", err.Error())
	}
}

func (o *Orchestrator) updateMLPrediction(executionID string, rec models.MLPredictionResult) {
	if o.progress == nil {
		return
	}
	if err := o.progress.UpdateMLPrediction(executionID, rec); err != nil {
		logger.Warn("orchestrator: failed to update ML prediction progress", "execution_id", executionID, "error", err.Error())
	}
}

func (o *Orchestrator) updateBTCCorrelation(executionID string, rec models.BTCCorrelationResult) {
	if o.progress == nil {
		return
	}
	if err := o.progress.UpdateBTCCorrelation(executionID, rec); err != nil {
		logger.Warn("orchestrator: failed to update BTC correlation progress", "execution_id", executionID, "error", err.Error())
	}
}

func (o *Orchestrator) updateMarketContext(executionID string, rec models.MarketContextResult) {
	if o.progress == nil {
		return
	}
	if err := o.progress.UpdateMarketContext(executionID, rec); err != nil {
		logger.Warn("orchestrator: failed to update market context progress", "execution_id", executionID, "error", err.Error())
	}
}

func (o *Orchestrator) updateLeverageDecision(executionID string, rec models.LeverageDecisionResult) {
	if o.progress == nil {
		return
	}
	if err := o.progress.UpdateLeverageDecision(executionID, rec); err != nil {
		logger.Warn("orchestrator: failed to update leverage decision progress", "execution_id", executionID, "error", err.Error())
	}
}
