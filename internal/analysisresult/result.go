// Package analysisresult models the outcome of a single (symbol, timeframe,
// strategy) analysis run as a sum type, so a filter-chain early exit, a
// hard failure, and a completed signal are all represented by the same
// value instead of by exceptions caught at different call depths.
package analysisresult

import (
	"encoding/json"
	"fmt"
	"time"
)

// AnalysisStage enumerates the stages an analysis run passes through.
type AnalysisStage string

const (
	StageDataFetch         AnalysisStage = "data_fetch"
	StageSupportResistance AnalysisStage = "support_resistance"
	StageMLPrediction      AnalysisStage = "ml_prediction"
	StageBTCCorrelation    AnalysisStage = "btc_correlation"
	StageMarketContext     AnalysisStage = "market_context"
	StageLeverageDecision  AnalysisStage = "leverage_decision"
)

var stageDisplayNames = map[AnalysisStage]string{
	StageDataFetch:         "data fetch",
	StageSupportResistance: "support/resistance analysis",
	StageMLPrediction:      "ML prediction",
	StageBTCCorrelation:    "BTC correlation analysis",
	StageMarketContext:     "market context analysis",
	StageLeverageDecision:  "leverage decision",
}

var stageNumbers = map[AnalysisStage]int{
	StageDataFetch:         1,
	StageSupportResistance: 2,
	StageMLPrediction:      3,
	StageBTCCorrelation:    4,
	StageMarketContext:     5,
	StageLeverageDecision:  6,
}

// ExitReason enumerates why an analysis run stopped before completion.
type ExitReason string

const (
	ReasonNoSupportResistance    ExitReason = "no_support_resistance"
	ReasonInsufficientData       ExitReason = "insufficient_data"
	ReasonMLPredictionFailed     ExitReason = "ml_prediction_failed"
	ReasonBTCDataInsufficient    ExitReason = "btc_data_insufficient"
	ReasonMarketContextFailed    ExitReason = "market_context_failed"
	ReasonLeverageConditionsUnmet ExitReason = "leverage_conditions_not_met"
	ReasonDataQualityPoor        ExitReason = "data_quality_poor"
	ReasonExecutionError         ExitReason = "execution_error"
	ReasonCancelled              ExitReason = "cancelled"
)

var reasonDisplayMessages = map[ExitReason]string{
	ReasonNoSupportResistance:     "no support/resistance levels were detected",
	ReasonInsufficientData:        "not enough data to analyze",
	ReasonMLPredictionFailed:      "the ML prediction system failed",
	ReasonBTCDataInsufficient:     "insufficient data for BTC correlation analysis",
	ReasonMarketContextFailed:     "market context analysis failed",
	ReasonLeverageConditionsUnmet: "leverage conditions were not met",
	ReasonDataQualityPoor:         "data quality fell below the analysis threshold",
	ReasonCancelled:               "the run was cancelled before this stage started",
}

// StageResult is the outcome of one pipeline stage.
type StageResult struct {
	Stage            AnalysisStage          `json:"stage"`
	Success          bool                   `json:"success"`
	ExecutionTimeMs   float64                `json:"execution_time_ms"`
	DataProcessed    *int                   `json:"data_processed,omitempty"`
	ItemsFound       *int                   `json:"items_found,omitempty"`
	ErrorMessage     string                 `json:"error_message,omitempty"`
	AdditionalInfo   map[string]interface{} `json:"additional_info,omitempty"`
}

// AnalysisResult is the full record of one analysis run, built up stage by
// stage and finalized by exactly one of MarkEarlyExit / MarkCompleted /
// MarkFailed.
type AnalysisResult struct {
	Symbol      string `json:"symbol"`
	Timeframe   string `json:"timeframe"`
	Strategy    string `json:"strategy"`
	ExecutionID string `json:"execution_id,omitempty"`

	Completed bool           `json:"completed"`
	EarlyExit bool           `json:"early_exit"`
	ExitStage AnalysisStage  `json:"exit_stage,omitempty"`
	ExitReason ExitReason    `json:"exit_reason,omitempty"`

	StageResults []StageResult `json:"stage_results"`

	TotalDataPoints     *int       `json:"total_data_points,omitempty"`
	AnalysisPeriodStart *time.Time `json:"analysis_period_start,omitempty"`
	AnalysisPeriodEnd   *time.Time `json:"analysis_period_end,omitempty"`

	Recommendation map[string]interface{} `json:"recommendation,omitempty"`

	ErrorDetails string `json:"error_details,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New starts a fresh result for the given (symbol, timeframe, strategy) run.
func New(symbol, timeframe, strategy, executionID string, startedAt time.Time) *AnalysisResult {
	return &AnalysisResult{
		Symbol:      symbol,
		Timeframe:   timeframe,
		Strategy:    strategy,
		ExecutionID: executionID,
		StartedAt:   startedAt,
	}
}

// AddStageResult records the outcome of a single pipeline stage.
func (r *AnalysisResult) AddStageResult(sr StageResult) {
	r.StageResults = append(r.StageResults, sr)
}

// MarkEarlyExit finalizes the result as an early exit at the given stage.
func (r *AnalysisResult) MarkEarlyExit(stage AnalysisStage, reason ExitReason, errMsg string, completedAt time.Time) {
	r.EarlyExit = true
	r.ExitStage = stage
	r.ExitReason = reason
	r.ErrorDetails = errMsg
	r.CompletedAt = &completedAt
}

// MarkFailed finalizes the result as a hard execution failure, distinct
// from an early exit: neither Completed nor EarlyExit is set, ExitStage
// stays empty (a failure has no documented exit stage), and ExitReason
// carries the execution_error marker consumers branch on.
func (r *AnalysisResult) MarkFailed(errMsg string, completedAt time.Time) {
	r.ExitReason = ReasonExecutionError
	r.ErrorDetails = errMsg
	r.CompletedAt = &completedAt
}

// MarkCompleted finalizes the result with a recommendation produced by the
// leverage decision stage.
func (r *AnalysisResult) MarkCompleted(recommendation map[string]interface{}, completedAt time.Time) {
	r.Completed = true
	r.Recommendation = recommendation
	r.CompletedAt = &completedAt
}

func (r *AnalysisResult) stageNumber() int {
	return stageNumbers[r.ExitStage]
}

// UserMessage renders a short, human-facing summary of the result.
func (r *AnalysisResult) UserMessage() string {
	label := fmt.Sprintf("%s %s(%s)", r.Symbol, r.Strategy, r.Timeframe)

	if r.Completed && r.Recommendation != nil {
		return fmt.Sprintf("%s: analysis complete - signal detected", label)
	}

	if r.EarlyExit {
		stageName, ok := stageDisplayNames[r.ExitStage]
		if !ok {
			stageName = string(r.ExitStage)
		}
		reasonMsg, ok := reasonDisplayMessages[r.ExitReason]
		if !ok {
			reasonMsg = string(r.ExitReason)
		}
		return fmt.Sprintf("%s: early exit at %s - %s", label, stageName, reasonMsg)
	}

	return fmt.Sprintf("%s: analysis failed", label)
}

// DetailedLogMessage renders a developer-facing summary including data
// volume and exit reason codes.
func (r *AnalysisResult) DetailedLogMessage() string {
	base := fmt.Sprintf("%s %s %s", r.Symbol, r.Timeframe, r.Strategy)

	if r.Completed && r.Recommendation != nil {
		return fmt.Sprintf("%s: analysis complete (data points: %s)", base, formatIntPtr(r.TotalDataPoints))
	}

	if r.EarlyExit {
		dataInfo := "unknown data volume"
		if r.TotalDataPoints != nil {
			dataInfo = fmt.Sprintf("data points: %d", *r.TotalDataPoints)
		}
		return fmt.Sprintf("%s: early exit at STEP%d - %s (%s)", base, r.stageNumber(), r.ExitReason, dataInfo)
	}

	details := r.ErrorDetails
	if details == "" {
		details = "unknown error"
	}
	return fmt.Sprintf("%s: analysis failed - %s", base, details)
}

// Suggestions renders actionable next steps for recoverable early exits.
func (r *AnalysisResult) Suggestions() []string {
	switch r.ExitReason {
	case ReasonNoSupportResistance:
		return []string{
			"try a longer analysis period",
			"try a different timeframe (e.g. 1h -> 4h, 15m -> 1h)",
			"try a different strategy (e.g. Conservative_ML, Aggressive_ML)",
		}
	case ReasonInsufficientData:
		return []string{
			"fetch a longer history window",
			"check the data source for quality issues",
		}
	case ReasonMLPredictionFailed:
		return []string{
			"adjust the analysis period",
			"try a strategy that doesn't depend on ML prediction",
		}
	default:
		return nil
	}
}

// ToJSON serializes the result for persistence or transport.
func (r *AnalysisResult) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON restores a result previously produced by ToJSON.
func FromJSON(data []byte) (*AnalysisResult, error) {
	var r AnalysisResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("analysisresult: unmarshal: %w", err)
	}
	return &r, nil
}

func formatIntPtr(v *int) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("%d", *v)
}
