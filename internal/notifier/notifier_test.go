package notifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"ares_api/internal/analysisresult"
)

func TestNotifyResultNoWebhookIsNoop(t *testing.T) {
	n := New("", nil)
	result := analysisresult.New("BTCUSDT", "1h", "Conservative_ML", "exec-1", time.Now())
	result.MarkCompleted(map[string]interface{}{"recommended_leverage": 3.0}, time.Now())

	// Must not panic or block; there's no server to receive anything.
	n.NotifyResult(context.Background(), result)
}

func TestNotifyResultDeliversEarlyExitDetail(t *testing.T) {
	var received int32
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		buf := make([]byte, 4096)
		n, _ := r.Body.Read(buf)
		body = string(buf[:n])
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := New(srv.URL, rate.NewLimiter(rate.Inf, 10))
	result := analysisresult.New("BTCUSDT", "1h", "Conservative_ML", "exec-1", time.Now())
	result.MarkEarlyExit(analysisresult.StageSupportResistance, analysisresult.ReasonNoSupportResistance, "no levels", time.Now())

	n.NotifyResult(context.Background(), result)

	if atomic.LoadInt32(&received) != 1 {
		t.Fatalf("expected exactly one delivery, got %d", received)
	}
	if !strings.Contains(body, "early exit") {
		t.Fatalf("expected early-exit detail in payload, got %q", body)
	}
	if !strings.Contains(body, "try a longer analysis period") {
		t.Fatalf("expected suggestions in payload, got %q", body)
	}
}

func TestNotifyResultRetriesOnFailureThenGivesUp(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := New(srv.URL, rate.NewLimiter(rate.Inf, 10))
	result := analysisresult.New("BTCUSDT", "1h", "Conservative_ML", "exec-1", time.Now())
	result.MarkFailed("boom", time.Now())

	n.NotifyResult(context.Background(), result)

	if got := atomic.LoadInt32(&attempts); got != maxAttempts {
		t.Fatalf("attempts = %d, want %d", got, maxAttempts)
	}
}
