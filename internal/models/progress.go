package models

import "time"

// Stage enumerates the Orchestrator's stage machine states as observed by
// the Progress Store.
type Stage string

const (
	StageInitializing        Stage = "initializing"
	StageDataFetch            Stage = "data_fetch"
	StageSupportResistance    Stage = "support_resistance"
	StageMLPrediction         Stage = "ml_prediction"
	StageBTCCorrelation       Stage = "btc_correlation"
	StageMarketContext        Stage = "market_context"
	StageLeverageDecision     Stage = "leverage_decision"
	StageCompleted            Stage = "completed"
	StageFailed               Stage = "failed"
)

// SubStatus is the per-stage sub-record status.
type SubStatus string

const (
	SubNotStarted SubStatus = "not_started"
	SubRunning    SubStatus = "running"
	SubSuccess    SubStatus = "success"
	SubFailed     SubStatus = "failed"
)

// FinalSignal summarizes the terminal outcome for dashboards.
type FinalSignal string

const (
	SignalAnalyzing     FinalSignal = "analyzing"
	SignalDetected      FinalSignal = "signal_detected"
	SignalNone          FinalSignal = "no_signal"
)

// OverallStatus is the execution-level progress status.
type OverallStatus string

const (
	OverallRunning OverallStatus = "running"
	OverallSuccess OverallStatus = "success"
	OverallFailed  OverallStatus = "failed"
)

const maxLevelsPerSide = 20

// SRLevel is a single detected support or resistance level.
type SRLevel struct {
	Price      float64 `json:"price"`
	Strength   float64 `json:"strength"`
	TouchCount int     `json:"touch_count"`
}

// SupportResistanceResult is the Progress Record's S/R sub-record.
type SupportResistanceResult struct {
	Status           SubStatus `json:"status"`
	SupportsCount    int       `json:"supports_count"`
	ResistancesCount int       `json:"resistances_count"`
	Supports         []SRLevel `json:"supports,omitempty"`
	Resistances      []SRLevel `json:"resistances,omitempty"`
	ErrorMessage     string    `json:"error_message,omitempty"`
}

// AppendSupports appends support levels, capping storage at
// maxLevelsPerSide so per-execution record files stay small no matter how
// many levels a detector reports.
func (r *SupportResistanceResult) AppendSupports(levels []SRLevel) (truncated bool) {
	r.Supports, truncated = capLevels(append(r.Supports, levels...))
	return truncated
}

func (r *SupportResistanceResult) AppendResistances(levels []SRLevel) (truncated bool) {
	r.Resistances, truncated = capLevels(append(r.Resistances, levels...))
	return truncated
}

func capLevels(levels []SRLevel) ([]SRLevel, bool) {
	if len(levels) <= maxLevelsPerSide {
		return levels, false
	}
	return levels[:maxLevelsPerSide], true
}

// MLPredictionResult is the Progress Record's ML sub-record.
type MLPredictionResult struct {
	Status           SubStatus `json:"status"`
	PredictionsCount int       `json:"predictions_count"`
	Confidence       float64   `json:"confidence"`
	ErrorMessage     string    `json:"error_message,omitempty"`
}

// BTCCorrelationResult is the Progress Record's BTC-correlation sub-record.
type BTCCorrelationResult struct {
	Status                 SubStatus `json:"status"`
	CorrelationCoefficient float64   `json:"correlation_coefficient"`
	SufficientData         bool      `json:"sufficient_data"`
	ErrorMessage           string    `json:"error_message,omitempty"`
}

// MarketContextResult is the Progress Record's market-context sub-record.
type MarketContextResult struct {
	Status        SubStatus `json:"status"`
	TrendDirection string   `json:"trend_direction,omitempty"`
	MarketPhase   string    `json:"market_phase,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
}

// LeverageDecisionResult is the Progress Record's leverage-decision sub-record.
type LeverageDecisionResult struct {
	Status              SubStatus `json:"status"`
	RecommendedLeverage float64   `json:"recommended_leverage"`
	ConfidenceLevel     float64   `json:"confidence_level"`
	RiskRewardRatio     float64   `json:"risk_reward_ratio"`
	ErrorMessage        string    `json:"error_message,omitempty"`
}

// ProgressRecord is the per-execution live state consumed by the dashboard.
// Exactly one file backs one record: progress/<execution_id>.json.
type ProgressRecord struct {
	Symbol            string                   `json:"symbol"`
	ExecutionID       string                   `json:"execution_id"`
	StartTime         time.Time                `json:"start_time"`
	CurrentStage      Stage                    `json:"current_stage"`
	OverallStatus     OverallStatus            `json:"overall_status"`
	SupportResistance SupportResistanceResult  `json:"support_resistance"`
	MLPrediction      MLPredictionResult       `json:"ml_prediction"`
	BTCCorrelation    BTCCorrelationResult     `json:"btc_correlation"`
	MarketContext     MarketContextResult      `json:"market_context"`
	LeverageDecision  LeverageDecisionResult   `json:"leverage_decision"`
	FinalSignal       FinalSignal              `json:"final_signal"`
	FailureStage      Stage                    `json:"failure_stage,omitempty"`
	FinalMessage      string                   `json:"final_message,omitempty"`
}

// NewProgressRecord creates a fresh record for a task that is just starting.
func NewProgressRecord(symbol, executionID string, start time.Time) *ProgressRecord {
	return &ProgressRecord{
		Symbol:        symbol,
		ExecutionID:   executionID,
		StartTime:     start,
		CurrentStage:  StageInitializing,
		OverallStatus: OverallRunning,
		FinalSignal:   SignalAnalyzing,
		SupportResistance: SupportResistanceResult{Status: SubNotStarted},
		MLPrediction:      MLPredictionResult{Status: SubNotStarted},
		BTCCorrelation:    BTCCorrelationResult{Status: SubNotStarted},
		MarketContext:     MarketContextResult{Status: SubNotStarted},
		LeverageDecision:  LeverageDecisionResult{Status: SubNotStarted},
	}
}
