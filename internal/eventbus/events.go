package eventbus

import "time"

// Event type constants for the topics this system publishes.
const (
	EventTypeProgressUpdated = "progress.updated"
	EventVersion1            = "v1"
)

// ProgressUpdatedEvent is published by the Progress Store on every
// successful record mutation, so a watcher (the dashboard, an external
// poller) learns about stage transitions without scanning the progress/
// directory. The full record still lives on disk; this event carries just
// enough to decide whether a re-read is worth it.
type ProgressUpdatedEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Data      struct {
		ExecutionID   string `json:"execution_id"`
		Symbol        string `json:"symbol"`
		CurrentStage  string `json:"current_stage"`
		OverallStatus string `json:"overall_status"`
	} `json:"data"`
}

// NewProgressUpdatedEvent creates a ProgressUpdatedEvent for one mutation.
func NewProgressUpdatedEvent(executionID, symbol, currentStage, overallStatus string) *ProgressUpdatedEvent {
	e := &ProgressUpdatedEvent{
		Type:      EventTypeProgressUpdated,
		Timestamp: time.Now(),
		Version:   EventVersion1,
	}
	e.Data.ExecutionID = executionID
	e.Data.Symbol = symbol
	e.Data.CurrentStage = currentStage
	e.Data.OverallStatus = overallStatus
	return e
}
