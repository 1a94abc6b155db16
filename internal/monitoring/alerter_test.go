package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/property-geocoder/internal/config"
	"github.com/sells-group/property-geocoder/pkg/geocode"
)

func healthyConfig() config.MonitoringConfig {
	return config.MonitoringConfig{
		MinRequests:           10,
		SuccessRateThreshold:  0.8,
		CacheHitRateThreshold: 0,
	}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(healthyConfig(), nil)

	snap := &MetricsSnapshot{
		WindowRequests:    100,
		WindowSuccesses:   90,
		WindowFailures:    10,
		WindowSuccessRate: 0.9,
		Window:            time.Minute,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_LowSuccessRate(t *testing.T) {
	a := NewAlerter(healthyConfig(), nil)

	snap := &MetricsSnapshot{
		WindowRequests:    20,
		WindowSuccesses:   12,
		WindowFailures:    8,
		WindowSuccessRate: 0.6,
		Window:            time.Minute,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertLowSuccessRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "60.0%")
	assert.NotEmpty(t, alerts[0].ID)
}

func TestAlerter_Evaluate_MinimumRequestsRequired(t *testing.T) {
	a := NewAlerter(healthyConfig(), nil)

	snap := &MetricsSnapshot{
		WindowRequests:    5,
		WindowFailures:    5,
		WindowSuccessRate: 0,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_NoTrafficNeverAlertsOnRates(t *testing.T) {
	cfg := healthyConfig()
	cfg.MinRequests = 0
	cfg.CacheHitRateThreshold = 0.5
	a := NewAlerter(cfg, nil)

	assert.Empty(t, a.Evaluate(&MetricsSnapshot{}))
}

func TestAlerter_Evaluate_BreakerOpen(t *testing.T) {
	a := NewAlerter(healthyConfig(), nil)

	snap := &MetricsSnapshot{
		Stats: geocode.StatsSnapshot{
			CircuitBreakers: map[geocode.Source]string{
				geocode.SourceNominatim: "open",
				geocode.SourceGoogle:    "closed",
			},
		},
		OpenBreakers: []string{"NOMINATIM"},
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertBreakerOpen, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "NOMINATIM")
}

func TestAlerter_Evaluate_LowCacheHitRate(t *testing.T) {
	cfg := healthyConfig()
	cfg.CacheHitRateThreshold = 0.5
	a := NewAlerter(cfg, nil)

	snap := &MetricsSnapshot{
		WindowRequests:     40,
		WindowCacheHits:    4,
		WindowSuccesses:    36,
		WindowSuccessRate:  1,
		WindowCacheHitRate: 0.1,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertLowCacheHitRate, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	cfg := healthyConfig()
	cfg.CacheHitRateThreshold = 0.5
	a := NewAlerter(cfg, nil)

	snap := &MetricsSnapshot{
		WindowRequests:     50,
		WindowFailures:     40,
		WindowSuccesses:    10,
		WindowSuccessRate:  0.2,
		WindowCacheHitRate: 0,
		OpenBreakers:       []string{"GOOGLE", "NOMINATIM"},
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 3)
	assert.Equal(t, AlertBreakerOpen, alerts[0].Type)
	assert.Equal(t, AlertLowSuccessRate, alerts[1].Type)
	assert.Equal(t, AlertLowCacheHitRate, alerts[2].Type)
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	m := NewMetricsForTesting()
	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL}, m)

	alerts := []Alert{
		{Type: AlertLowSuccessRate, Severity: "high", Message: "test alert 1"},
		{Type: AlertBreakerOpen, Severity: "high", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsSent.WithLabelValues("breaker_open")))
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{}, nil)

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertLowSuccessRate, Message: "test"},
	})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{WebhookURL: "http://example.com"}, nil)
	assert.Equal(t, 0, a.SendAlerts(context.Background(), nil))
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL}, nil)

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertLowSuccessRate, Message: "test"}})
	assert.Equal(t, 0, sent)
}
