package models

import "time"

// ExecutionType enumerates the kinds of runs the coordinator can drive.
type ExecutionType string

const (
	ExecutionTypeSymbolAddition ExecutionType = "SYMBOL_ADDITION"
)

// ExecutionStatus is the lifecycle state of one symbol-addition request.
type ExecutionStatus string

const (
	ExecutionPending     ExecutionStatus = "PENDING"
	ExecutionRunning     ExecutionStatus = "RUNNING"
	ExecutionSuccess     ExecutionStatus = "SUCCESS"
	ExecutionFailed      ExecutionStatus = "FAILED"
	ExecutionDataDeleted ExecutionStatus = "DATA_DELETED"
)

// IsTerminal reports whether no further task completion can change the status.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionSuccess, ExecutionFailed, ExecutionDataDeleted:
		return true
	default:
		return false
	}
}

// ExecutionMode controls how AddSymbol resolves the strategy set.
type ExecutionMode string

const (
	ModeDefault   ExecutionMode = "default"
	ModeSelective ExecutionMode = "selective"
	ModeCustom    ExecutionMode = "custom"
)

// Execution identifies one symbol-addition request and its fan-out of tasks.
// It lives in the execution_logs table and is mutated by the Coordinator
// only.
type Execution struct {
	ExecutionID          string          `gorm:"column:execution_id;primaryKey;size:64" json:"execution_id"`
	ExecutionType        ExecutionType   `gorm:"column:execution_type;size:32;not null" json:"execution_type"`
	Symbol               string          `gorm:"column:symbol;size:20" json:"symbol"`
	Symbols              string          `gorm:"column:symbols" json:"symbols,omitempty"`
	TimestampStart        time.Time       `gorm:"column:timestamp_start;not null" json:"timestamp_start"`
	TimestampEnd          *time.Time      `gorm:"column:timestamp_end" json:"timestamp_end,omitempty"`
	Status               ExecutionStatus `gorm:"column:status;size:20;not null" json:"status"`
	ProgressPercentage    float64         `gorm:"column:progress_percentage;default:0" json:"progress_percentage"`
	CurrentOperation      string          `gorm:"column:current_operation" json:"current_operation,omitempty"`
	SelectedStrategyIDs   IntList         `gorm:"column:selected_strategy_ids;type:text" json:"selected_strategy_ids"`
	ExecutionMode        ExecutionMode   `gorm:"column:execution_mode;size:20" json:"execution_mode"`
	EstimatedPatterns    int             `gorm:"column:estimated_patterns;default:0" json:"estimated_patterns"`
	Errors               StringList      `gorm:"column:errors;type:text" json:"errors"`
	CreatedAt            time.Time       `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Execution) TableName() string {
	return "execution_logs"
}

// AddError appends a message to Errors, truncating the list is not needed —
// Errors is a developer-facing running log of fatal conditions, bounded in
// practice by how many things can go wrong in one fan-out.
func (e *Execution) AddError(msg string) {
	e.Errors = append(e.Errors, msg)
}
