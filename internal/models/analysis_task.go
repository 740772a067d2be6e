package models

import "time"

// TaskStatus is the lifecycle state of one Analysis Task row.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// AnalysisTask is one (execution, symbol, timeframe, strategy-config)
// combination. It lives in the analyses table and is the unit the
// Coordinator pre-materializes and workers drive to a terminal state.
type AnalysisTask struct {
	ID                int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ExecutionID       string     `gorm:"column:execution_id;size:64;not null;index" json:"execution_id"`
	Symbol            string     `gorm:"column:symbol;size:20;not null;index" json:"symbol"`
	Timeframe         string     `gorm:"column:timeframe;size:10;not null" json:"timeframe"`
	Config            string     `gorm:"column:config;not null" json:"config"`
	StrategyConfigID  *uint      `gorm:"column:strategy_config_id" json:"strategy_config_id,omitempty"`
	StrategyName      string     `gorm:"column:strategy_name" json:"strategy_name,omitempty"`
	TaskStatus        TaskStatus `gorm:"column:task_status;size:20;default:pending" json:"task_status"`
	TaskCreatedAt     time.Time  `gorm:"column:task_created_at" json:"task_created_at"`
	TaskStartedAt     *time.Time `gorm:"column:task_started_at" json:"task_started_at,omitempty"`
	TaskCompletedAt   *time.Time `gorm:"column:task_completed_at" json:"task_completed_at,omitempty"`
	ErrorMessage      string     `gorm:"column:error_message;size:500" json:"error_message,omitempty"`
	RetryCount        int        `gorm:"column:retry_count;default:0" json:"retry_count"`

	// Result fields, populated only when TaskStatus == completed.
	TotalTrades   *int     `gorm:"column:total_trades" json:"total_trades,omitempty"`
	WinRate       *float64 `gorm:"column:win_rate" json:"win_rate,omitempty"`
	TotalReturn   *float64 `gorm:"column:total_return" json:"total_return,omitempty"`
	SharpeRatio   *float64 `gorm:"column:sharpe_ratio" json:"sharpe_ratio,omitempty"`
	MaxDrawdown   *float64 `gorm:"column:max_drawdown" json:"max_drawdown,omitempty"`
	AvgLeverage   *float64 `gorm:"column:avg_leverage" json:"avg_leverage,omitempty"`
	ChartPath     string   `gorm:"column:chart_path" json:"chart_path,omitempty"`
	CompressedPath string  `gorm:"column:compressed_path" json:"compressed_path,omitempty"`

	GeneratedAt time.Time `gorm:"column:generated_at;default:CURRENT_TIMESTAMP" json:"generated_at"`
}

func (AnalysisTask) TableName() string {
	return "analyses"
}

// TruncateErrorMessage enforces the error_message column's 500-char limit.
func TruncateErrorMessage(msg string) string {
	const maxLen = 500
	if len(msg) <= maxLen {
		return msg
	}
	return msg[:maxLen]
}
