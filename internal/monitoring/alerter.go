package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/costdb/internal/config"
	"github.com/sells-group/costdb/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertAnomalyRate    AlertType = "anomaly_rate"
	// AlertStaleOutputs means runs were attempted in the window but none
	// completed, so the served tables are older than the window.
	AlertStaleOutputs AlertType = "stale_outputs"
)

// minFinishedRuns keeps one bad run out of a fresh deployment from paging.
const minFinishedRuns = 3

// Alert is one threshold breach.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Notification is the webhook body: every alert of one check.
type Notification struct {
	Source string  `json:"source"`
	Alerts []Alert `json:"alerts"`
}

// Alerter compares snapshots with thresholds and posts breaches to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.RetryConfig
}

// NewAlerter creates an Alerter for cfg.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("webhook", "notify")
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  retry,
	}
}

// Evaluate returns the alerts snap triggers, most severe first.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.RunsComplete == 0 && snap.RunsFailed > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertStaleOutputs,
			Severity: "critical",
			Message: fmt.Sprintf("No run completed in the last %dh (%d failed); output tables are stale",
				snap.LookbackHours, snap.RunsFailed),
			Details: map[string]any{
				"failed":     snap.RunsFailed,
				"last_error": snap.LastError,
			},
			Timestamp: now,
		})
	}

	finished := snap.RunsComplete + snap.RunsFailed
	if finished >= minFinishedRuns && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf("Run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100, snap.RunsFailed, finished, snap.LookbackHours),
			Details: map[string]any{
				"fail_rate":  snap.FailRate,
				"threshold":  a.cfg.FailureRateThreshold,
				"last_error": snap.LastError,
			},
			Timestamp: now,
		})
	}

	if a.cfg.AnomalyRateThreshold > 0 && snap.CleanRows > 0 && snap.AnomalyRate > a.cfg.AnomalyRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertAnomalyRate,
			Severity: "medium",
			Message: fmt.Sprintf("%.1f%% of purchase orders flagged as price anomalies (threshold %.1f%%) in last %dh",
				snap.AnomalyRate*100, a.cfg.AnomalyRateThreshold*100, snap.LookbackHours),
			Details: map[string]any{
				"anomaly_rate": snap.AnomalyRate,
				"flagged":      snap.Flagged,
				"clean_rows":   snap.CleanRows,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// Notify posts alerts to the webhook as a single Notification. It is a
// no-op without a webhook or alerts. Transient failures are retried.
func (a *Alerter) Notify(ctx context.Context, alerts []Alert) error {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return nil
	}

	payload, err := json.Marshal(Notification{Source: "costdb", Alerts: alerts})
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alerts")
	}

	err = resilience.Do(ctx, a.retry, func(ctx context.Context) error {
		return a.post(ctx, payload)
	})
	if err != nil {
		return err
	}
	zap.L().Info("monitoring: alerts sent", zap.Int("alerts", len(alerts)))
	return nil
}

func (a *Alerter) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		err := eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
