package models

import "time"

// StrategyConfiguration is a named parameter bundle identifying a base
// strategy, a timeframe, and its tunable parameters. It is read-only to
// the analysis pipeline; rows are created and updated by the admin path.
type StrategyConfiguration struct {
	ID           uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name         string    `gorm:"column:name;not null;uniqueIndex:uidx_strategy_configurations_name_base_tf" json:"name"`
	BaseStrategy string    `gorm:"column:base_strategy;not null;uniqueIndex:uidx_strategy_configurations_name_base_tf" json:"base_strategy"`
	Timeframe    string    `gorm:"column:timeframe;size:10;not null;uniqueIndex:uidx_strategy_configurations_name_base_tf" json:"timeframe"`
	Parameters   JSONB     `gorm:"column:parameters;type:text;not null" json:"parameters"`
	Description  string    `gorm:"column:description" json:"description,omitempty"`
	IsDefault    bool      `gorm:"column:is_default;default:false" json:"is_default"`
	IsActive     bool      `gorm:"column:is_active;default:true" json:"is_active"`
	CreatedBy    string    `gorm:"column:created_by;default:system" json:"created_by"`
	Version      int       `gorm:"column:version;default:1" json:"version"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (StrategyConfiguration) TableName() string {
	return "strategy_configurations"
}

// BaseLeverage returns the base_strategy's default leverage multiplier,
// read from Parameters first so tuning lives in the catalog rather than a
// code fork.
func (s StrategyConfiguration) BaseLeverage() float64 {
	if v, ok := s.Parameters["base_leverage"]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	switch s.BaseStrategy {
	case "Conservative_ML":
		return 2.5
	case "Full_ML":
		return 4.0
	case "Aggressive_Traditional":
		return 6.0
	default:
		return 3.0
	}
}

// floatParam reads a top-level float threshold out of Parameters, falling
// back to def when the key is absent or of the wrong type. Every filter
// threshold below follows the same "tunable lives in the catalog, not in a
// code fork" rule BaseLeverage already establishes.
func (s StrategyConfiguration) floatParam(key string, def float64) float64 {
	if s.Parameters == nil {
		return def
	}
	if v, ok := s.Parameters[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return def
}

func (s StrategyConfiguration) stringParam(key, def string) string {
	if s.Parameters == nil {
		return def
	}
	if v, ok := s.Parameters[key]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return def
}

// Market condition thresholds (Filter 2).
func (s StrategyConfiguration) MinVolumeThreshold() float64 { return s.floatParam("min_volume_threshold", 1000.0) }
func (s StrategyConfiguration) MaxSpreadThreshold() float64 { return s.floatParam("max_spread_threshold", 0.005) }
func (s StrategyConfiguration) MinLiquidityScore() float64  { return s.floatParam("min_liquidity_score", 0.5) }

// Support/resistance distance and strength thresholds (Filter 4). These are
// the strategy-level counterparts of the ambient support_resistance.* keys:
// those tune how levels are detected, these tune how a strategy judges the
// levels once detected.
func (s StrategyConfiguration) MinDistanceFromSupport() float64    { return s.floatParam("min_distance_from_support", 0.5) }
func (s StrategyConfiguration) MaxDistanceFromSupport() float64    { return s.floatParam("max_distance_from_support", 5.0) }
func (s StrategyConfiguration) MinDistanceFromResistance() float64 { return s.floatParam("min_distance_from_resistance", 1.0) }
func (s StrategyConfiguration) MaxDistanceFromResistance() float64 { return s.floatParam("max_distance_from_resistance", 8.0) }
func (s StrategyConfiguration) MinSupportStrength() float64        { return s.floatParam("min_support_strength", 0.5) }
func (s StrategyConfiguration) MinResistanceStrength() float64     { return s.floatParam("min_resistance_strength", 0.5) }

// ML confidence thresholds (Filter 5).
func (s StrategyConfiguration) MinMLConfidence() float64     { return s.floatParam("min_ml_confidence", 0.6) }
func (s StrategyConfiguration) RequiredMLSignal() string     { return s.stringParam("required_ml_signal", "long") }
func (s StrategyConfiguration) MinMLSignalStrength() float64 { return s.floatParam("min_ml_signal_strength", 0.5) }

// Volatility thresholds (Filter 6).
func (s StrategyConfiguration) MinVolatility() float64 { return s.floatParam("min_volatility", 0.01) }
func (s StrategyConfiguration) MaxVolatility() float64 { return s.floatParam("max_volatility", 0.08) }
func (s StrategyConfiguration) MaxATRRatio() float64   { return s.floatParam("max_atr_ratio", 0.05) }

// Strategy risk tolerance feeding the leverage filter's suitability check
// (Filter 7).
func (s StrategyConfiguration) RiskTolerance() float64 {
	if v := s.floatParam("risk_tolerance", -1); v >= 0 {
		return v
	}
	switch s.BaseStrategy {
	case "Conservative_ML":
		return 0.3
	case "Full_ML":
		return 0.5
	case "Aggressive_Traditional":
		return 0.7
	default:
		return 0.5
	}
}
