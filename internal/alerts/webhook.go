package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/assetscore/assetscore/internal/config"
)

// payloadFunc renders the request body one webhook type expects.
type payloadFunc func(wh config.WebhookConfig, a *Alert) any

var payloads = map[string]payloadFunc{
	"slack":     slackPayload,
	"teams":     teamsPayload,
	"pagerduty": pagerDutyPayload,
	"http":      func(_ config.WebhookConfig, a *Alert) any { return map[string]any{"alert": a} },
}

// deliver posts a to every webhook whose URL resolves. Failures are logged
// and never reach the scoring path.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}
		render, ok := payloads[wh.Type]
		if !ok {
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		log := slog.With("type", wh.Type, "rule", a.RuleName, "asset", a.AssetID)
		if err := e.post(url, render(wh, a)); err != nil {
			log.Error("alerts: webhook delivery failed", "err", err)
			continue
		}
		log.Debug("alerts: webhook delivered", "state", a.State)
	}
}

func slackPayload(_ config.WebhookConfig, a *Alert) any {
	return map[string]string{"text": fmt.Sprintf("*%s* %s", stateLabel(a), a.Message)}
}

func teamsPayload(_ config.WebhookConfig, a *Alert) any {
	return map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(a.Severity),
		"summary":    a.RuleName,
		"title":      fmt.Sprintf("assetscore alert: %s (%s)", a.RuleName, a.State),
		"text":       a.Message,
	}
}

// pagerDutyPayload builds a PagerDuty Events API v2 event. The dedup key
// ties the resolve to the trigger for the same rule and asset.
func pagerDutyPayload(wh config.WebhookConfig, a *Alert) any {
	action := "trigger"
	if a.State == StateResolved {
		action = "resolve"
	}
	return map[string]any{
		"routing_key":  wh.Key(),
		"event_action": action,
		"dedup_key":    alertKey(a.RuleName, a.AssetID),
		"payload": map[string]any{
			"summary":        a.Message,
			"source":         a.AssetID,
			"severity":       a.Severity,
			"custom_details": map[string]any{"rule": a.RuleName, "value": a.Value},
		},
	}
}

func (e *Engine) post(url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func stateLabel(a *Alert) string {
	if a.State == StateResolved {
		return "[RESOLVED]"
	}
	switch a.Severity {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s string) string {
	switch s {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
