// Package notifier implements best-effort delivery of per-task terminal
// events (early-exit/fail/success) to an external webhook sink.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"ares_api/internal/analysisresult"
	"ares_api/internal/logger"
	"ares_api/internal/websocket"
)

// maxAttempts bounds webhook delivery retries.
const maxAttempts = 3

// Notifier posts a one-line message per terminal AnalysisResult to a webhook
// URL. An empty webhookURL skips webhook delivery only (an attached hub still
// receives every event), so a deployment without DISCORD_WEBHOOK_URL loses
// nothing but the webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	limiter    *rate.Limiter
	hub        *websocket.Hub
}

// New builds a Notifier that posts to webhookURL. limiter caps outbound
// request rate so a large fan-out batch's terminal events don't hammer the
// sink; a nil limiter is replaced by a default of 5 requests per second with
// a burst of 10.
func New(webhookURL string, limiter *rate.Limiter) *Notifier {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(5), 10)
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		limiter:    limiter,
	}
}

// WithHub attaches the ops API's live progress feed so every terminal
// event this Notifier handles is also pushed to connected operator
// websocket clients, independent of whether a webhook URL is configured.
func (n *Notifier) WithHub(hub *websocket.Hub) *Notifier {
	n.hub = hub
	return n
}

// NotifyResult synthesizes a message from the terminal AnalysisResult and
// delivers it. Two message styles exist: an "early-exit detail" message
// (stage, reason, suggestions) when the task ended without completing, and
// a "simple completion" message otherwise. Delivery errors are logged and
// swallowed; a webhook outage never fails the owning task.
func (n *Notifier) NotifyResult(ctx context.Context, result *analysisresult.AnalysisResult) {
	if n == nil {
		return
	}

	title, message := renderMessage(result)

	if n.hub != nil {
		n.hub.BroadcastTaskEvent(result.ExecutionID, result.Symbol, result.Strategy, title, message)
	}

	if n.webhookURL == "" {
		return
	}
	if err := n.deliver(ctx, title, message); err != nil {
		logger.Warn("notifier: webhook delivery failed", "symbol", result.Symbol, "strategy", result.Strategy, "error", err.Error())
	}
}

// renderMessage picks between the early-exit-detail and simple-completion
// styles.
func renderMessage(result *analysisresult.AnalysisResult) (title, message string) {
	if result.Completed {
		return "Analysis complete", result.UserMessage()
	}

	if result.EarlyExit && result.ExitReason != analysisresult.ReasonCancelled {
		body := result.DetailedLogMessage()
		if suggestions := result.Suggestions(); len(suggestions) > 0 {
			body += "\nSuggestions:"
			for _, s := range suggestions {
				body += "\n- " + s
			}
		}
		return "Analysis early exit", body
	}

	return "Analysis failed", result.DetailedLogMessage()
}

// deliver POSTs the message with up to maxAttempts tries, each gated by the
// rate limiter and separated by an exponential backoff.
func (n *Notifier) deliver(ctx context.Context, title, message string) error {
	payload := map[string]string{"content": fmt.Sprintf("**%s**\n%s", title, message)}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notifier: marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(1<<uint(attempt)) * 200 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := n.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := n.post(ctx, body); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

func (n *Notifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notifier: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notifier: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notifier: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
