package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/property-geocoder/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertBreakerOpen     AlertType = "breaker_open"
	AlertLowSuccessRate  AlertType = "low_success_rate"
	AlertLowCacheHitRate AlertType = "low_cache_hit_rate"
)

// Alert represents a single alert to be sent.
type Alert struct {
	ID        string         `json:"id"`
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg     config.MonitoringConfig
	client  *http.Client
	metrics *Metrics
}

// NewAlerter creates a new Alerter with the given monitoring config. metrics
// may be nil.
func NewAlerter(cfg config.MonitoringConfig, metrics *Metrics) *Alerter {
	return &Alerter{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		metrics: metrics,
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// Rate alerts need at least MinRequests in the window.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if len(snap.OpenBreakers) > 0 {
		alerts = append(alerts, Alert{
			ID:       uuid.NewString(),
			Type:     AlertBreakerOpen,
			Severity: "high",
			Message: fmt.Sprintf(
				"Circuit breaker not closed for provider(s): %s",
				strings.Join(snap.OpenBreakers, ", "),
			),
			Details: map[string]any{
				"providers": snap.OpenBreakers,
				"states":    snap.Stats.CircuitBreakers,
			},
			Timestamp: now,
		})
	}

	if snap.WindowRequests < a.cfg.MinRequests || snap.WindowRequests == 0 {
		return alerts
	}

	if snap.WindowSuccessRate < a.cfg.SuccessRateThreshold {
		alerts = append(alerts, Alert{
			ID:       uuid.NewString(),
			Type:     AlertLowSuccessRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Geocode success rate %.1f%% below threshold %.1f%% (%d failed / %d requests in last %s)",
				snap.WindowSuccessRate*100, a.cfg.SuccessRateThreshold*100,
				snap.WindowFailures, snap.WindowRequests, snap.Window.Round(time.Second),
			),
			Details: map[string]any{
				"success_rate": snap.WindowSuccessRate,
				"threshold":    a.cfg.SuccessRateThreshold,
				"failures":     snap.WindowFailures,
				"requests":     snap.WindowRequests,
			},
			Timestamp: now,
		})
	}

	if a.cfg.CacheHitRateThreshold > 0 && snap.WindowCacheHitRate < a.cfg.CacheHitRateThreshold {
		alerts = append(alerts, Alert{
			ID:       uuid.NewString(),
			Type:     AlertLowCacheHitRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Cache hit rate %.1f%% below threshold %.1f%% (%d hits / %d requests)",
				snap.WindowCacheHitRate*100, a.cfg.CacheHitRateThreshold*100,
				snap.WindowCacheHits, snap.WindowRequests,
			),
			Details: map[string]any{
				"cache_hit_rate": snap.WindowCacheHitRate,
				"threshold":      a.cfg.CacheHitRateThreshold,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("id", alert.ID),
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		if a.metrics != nil {
			a.metrics.AlertsSent.WithLabelValues(string(alert.Type)).Inc()
		}
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

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
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
