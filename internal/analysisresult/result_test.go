package analysisresult

import (
	"testing"
	"time"
)

func TestMarkEarlyExit(t *testing.T) {
	start := time.Now()
	r := New("BTCUSDT", "1h", "Conservative_ML", "exec-1", start)

	r.AddStageResult(StageResult{Stage: StageDataFetch, Success: true, ExecutionTimeMs: 12.5})
	r.MarkEarlyExit(StageSupportResistance, ReasonNoSupportResistance, "", start.Add(time.Second))

	if !r.EarlyExit {
		t.Fatalf("expected EarlyExit to be true")
	}
	if r.Completed {
		t.Fatalf("expected Completed to be false on early exit")
	}
	if r.ExitReason != ReasonNoSupportResistance {
		t.Fatalf("exit reason = %v, want %v", r.ExitReason, ReasonNoSupportResistance)
	}
	if r.CompletedAt == nil {
		t.Fatalf("expected CompletedAt to be set")
	}

	msg := r.UserMessage()
	if msg == "" {
		t.Fatalf("expected non-empty user message")
	}

	suggestions := r.Suggestions()
	if len(suggestions) == 0 {
		t.Fatalf("expected suggestions for %v", ReasonNoSupportResistance)
	}
}

func TestMarkCompleted(t *testing.T) {
	start := time.Now()
	r := New("ETHUSDT", "4h", "Full_ML", "exec-2", start)
	r.MarkCompleted(map[string]interface{}{"leverage": 4.0}, start.Add(2*time.Second))

	if !r.Completed {
		t.Fatalf("expected Completed to be true")
	}
	if r.EarlyExit {
		t.Fatalf("expected EarlyExit to be false on completion")
	}

	msg := r.UserMessage()
	if msg == "" {
		t.Fatalf("expected non-empty user message")
	}
}

func TestMarkFailedIsDistinctFromEarlyExit(t *testing.T) {
	start := time.Now()
	r := New("SOLUSDT", "15m", "Aggressive_Traditional", "exec-3", start)
	r.MarkFailed("data provider timed out", start.Add(time.Second))

	if r.ExitReason != ReasonExecutionError {
		t.Fatalf("exit reason = %v, want %v", r.ExitReason, ReasonExecutionError)
	}
	if r.ErrorDetails == "" {
		t.Fatalf("expected ErrorDetails to carry the failure message")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	start := time.Now().UTC().Truncate(time.Millisecond)
	r := New("BTCUSDT", "1h", "Conservative_ML", "exec-4", start)
	points := 480
	r.TotalDataPoints = &points
	r.AddStageResult(StageResult{Stage: StageDataFetch, Success: true, ExecutionTimeMs: 8})
	r.MarkEarlyExit(StageMLPrediction, ReasonMLPredictionFailed, "model unavailable", start.Add(3*time.Second))

	data, err := r.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	restored, err := FromJSON(data)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}

	if restored.Symbol != r.Symbol || restored.ExitReason != r.ExitReason {
		t.Fatalf("round trip mismatch: got %+v, want %+v", restored, r)
	}
	if len(restored.StageResults) != 1 {
		t.Fatalf("expected 1 stage result after round trip, got %d", len(restored.StageResults))
	}
}
