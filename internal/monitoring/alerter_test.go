package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/costdb/internal/config"
)

func testMonitoringConfig(url string) config.MonitoringConfig {
	return config.MonitoringConfig{
		Enabled:              true,
		WebhookURL:           url,
		FailureRateThreshold: 0.25,
		AnomalyRateThreshold: 0.5,
		LookbackWindowHours:  24,
	}
}

func TestAlerter_Evaluate(t *testing.T) {
	tests := []struct {
		name string
		snap MetricsSnapshot
		want []AlertType
	}{
		{
			name: "healthy",
			snap: MetricsSnapshot{RunsComplete: 9, RunsFailed: 1, FailRate: 0.1, CleanRows: 100, Flagged: 10, AnomalyRate: 0.1},
		},
		{
			name: "no runs",
		},
		{
			name: "failure rate",
			snap: MetricsSnapshot{RunsComplete: 2, RunsFailed: 2, FailRate: 0.5},
			want: []AlertType{AlertRunFailureRate},
		},
		{
			name: "too few finished runs for a rate",
			snap: MetricsSnapshot{RunsComplete: 1, RunsFailed: 1, FailRate: 0.5},
		},
		{
			name: "nothing completed",
			snap: MetricsSnapshot{RunsFailed: 2, FailRate: 1},
			want: []AlertType{AlertStaleOutputs},
		},
		{
			name: "nothing completed and high failure rate",
			snap: MetricsSnapshot{RunsFailed: 3, FailRate: 1},
			want: []AlertType{AlertStaleOutputs, AlertRunFailureRate},
		},
		{
			name: "anomaly rate",
			snap: MetricsSnapshot{RunsComplete: 1, CleanRows: 10, Flagged: 8, AnomalyRate: 0.8},
			want: []AlertType{AlertAnomalyRate},
		},
		{
			name: "failure and anomaly rate",
			snap: MetricsSnapshot{RunsComplete: 2, RunsFailed: 3, FailRate: 0.6, CleanRows: 10, Flagged: 6, AnomalyRate: 0.6},
			want: []AlertType{AlertRunFailureRate, AlertAnomalyRate},
		},
	}

	a := NewAlerter(testMonitoringConfig(""))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := tt.snap
			snap.LookbackHours = 24
			alerts := a.Evaluate(&snap)

			var got []AlertType
			for _, al := range alerts {
				got = append(got, al.Type)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAlerter_Evaluate_Message(t *testing.T) {
	a := NewAlerter(testMonitoringConfig(""))
	alerts := a.Evaluate(&MetricsSnapshot{RunsComplete: 3, RunsFailed: 1, FailRate: 0.4, LookbackHours: 24})
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Message, "40.0%")
	assert.Equal(t, "high", alerts[0].Severity)

	alerts = a.Evaluate(&MetricsSnapshot{RunsFailed: 1, FailRate: 1, LookbackHours: 6, LastError: "missing input raw.csv"})
	require.Len(t, alerts, 1)
	assert.Equal(t, "critical", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "last 6h")
	assert.Equal(t, "missing input raw.csv", alerts[0].Details["last_error"])
}

func TestAlerter_Notify(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var n Notification
		require.NoError(t, json.NewDecoder(r.Body).Decode(&n))
		assert.Equal(t, "costdb", n.Source)
		require.Len(t, n.Alerts, 2)
		assert.Equal(t, AlertStaleOutputs, n.Alerts[0].Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewAlerter(testMonitoringConfig(srv.URL))
	err := a.Notify(context.Background(), []Alert{
		{Type: AlertStaleOutputs, Severity: "critical"},
		{Type: AlertRunFailureRate, Severity: "high"},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), received.Load(), "one request per check")
}

func TestAlerter_Notify_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewAlerter(testMonitoringConfig(srv.URL))
	a.retry.InitialBackoff = time.Millisecond
	require.NoError(t, a.Notify(context.Background(), []Alert{{Type: AlertAnomalyRate}}))
	assert.Equal(t, int32(2), calls.Load())
}

func TestAlerter_Notify_PermanentStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	a := NewAlerter(testMonitoringConfig(srv.URL))
	err := a.Notify(context.Background(), []Alert{{Type: AlertRunFailureRate}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestAlerter_Notify_Noop(t *testing.T) {
	a := NewAlerter(testMonitoringConfig(""))
	assert.NoError(t, a.Notify(context.Background(), []Alert{{Type: AlertRunFailureRate}}))

	a = NewAlerter(testMonitoringConfig("http://127.0.0.1:1"))
	assert.NoError(t, a.Notify(context.Background(), nil))
}
