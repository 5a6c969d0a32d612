package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsRecording(t *testing.T) {
	// Initialize test registry
	reg := prometheus.NewRegistry()
	err := InitMetrics(reg)
	if err != nil {
		t.Fatalf("failed to initialize metrics: %v", err)
	}

	tests := []struct {
		name       string
		recordFunc func()
		checkFunc  func(t *testing.T)
	}{
		{
			name: "connections open and close",
			recordFunc: func() {
				RecordConnectionOpened()
				RecordConnectionOpened()
				RecordConnectionClosed()
			},
			checkFunc: func(t *testing.T) {
				if value := getCounterValue(t, ConnectionsTotal); value != 2 {
					t.Errorf("expected ConnectionsTotal to be 2, got %v", value)
				}
				if value := getGaugeValue(t, ActiveConnections); value != 1 {
					t.Errorf("expected ActiveConnections to be 1, got %v", value)
				}
			},
		},
		{
			name: "RequestsTotal and RequestDuration record correctly",
			recordFunc: func() {
				RecordRequest("GET", 200, 1500*time.Millisecond)
			},
			checkFunc: func(t *testing.T) {
				if value := getCounterValue(t, RequestsTotal.WithLabelValues("200")); value != 1 {
					t.Errorf("expected RequestsTotal to be 1, got %v", value)
				}
				histogram := getHistogramValue(t, RequestDuration.WithLabelValues("GET"))
				if histogram.GetSampleCount() != 1 {
					t.Errorf("expected RequestDuration sample count to be 1, got %v", histogram.GetSampleCount())
				}
				if histogram.GetSampleSum() != 1.5 {
					t.Errorf("expected RequestDuration sample sum to be 1.5, got %v", histogram.GetSampleSum())
				}
			},
		},
		{
			name: "ResponseSizeBytes observes correctly",
			recordFunc: func() {
				RecordResponseSize(1000)
			},
			checkFunc: func(t *testing.T) {
				histogram := getHistogramValue(t, ResponseSizeBytes)
				if histogram.GetSampleSum() != 1000 {
					t.Errorf("expected ResponseSizeBytes sample sum to be 1000, got %v", histogram.GetSampleSum())
				}
			},
		},
		{
			name: "TimeoutsTotal increments correctly",
			recordFunc: func() {
				RecordTimeout()
			},
			checkFunc: func(t *testing.T) {
				if value := getCounterValue(t, TimeoutsTotal); value != 1 {
					t.Errorf("expected TimeoutsTotal to be 1, got %v", value)
				}
			},
		},
		{
			name: "RateLimitExceeded increments correctly",
			recordFunc: func() {
				RecordRateLimit("global")
			},
			checkFunc: func(t *testing.T) {
				if value := getCounterValue(t, RateLimitExceeded.WithLabelValues("global")); value != 1 {
					t.Errorf("expected RateLimitExceeded to be 1, got %v", value)
				}
			},
		},
		{
			name: "ErrorsTotal and TransportErrorsTotal increment correctly",
			recordFunc: func() {
				RecordError("handler")
				RecordTransportError("ECONNRESET")
			},
			checkFunc: func(t *testing.T) {
				if value := getCounterValue(t, ErrorsTotal.WithLabelValues("handler")); value != 1 {
					t.Errorf("expected ErrorsTotal to be 1, got %v", value)
				}
				if value := getCounterValue(t, TransportErrorsTotal.WithLabelValues("ECONNRESET")); value != 1 {
					t.Errorf("expected TransportErrorsTotal to be 1, got %v", value)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.recordFunc()
			tt.checkFunc(t)
		})
	}
}

func getCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func getGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var metric dto.Metric
	if err := g.Write(&metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return metric.GetGauge().GetValue()
}

func getHistogramValue(t *testing.T, h prometheus.Observer) *dto.Histogram {
	t.Helper()
	var metric dto.Metric
	if err := h.(prometheus.Metric).Write(&metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return metric.GetHistogram()
}

func TestMetricsInitialization(t *testing.T) {
	if err := InitMetrics(nil); err == nil {
		t.Error("expected error for nil registry")
	}

	reg := prometheus.NewRegistry()
	if err := InitMetrics(reg); err != nil {
		t.Fatalf("failed to initialize metrics: %v", err)
	}

	RecordRequest("GET", 200, time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range families {
		if mf.GetName() == "webserver_requests_total" {
			found = true
		}
	}
	if !found {
		t.Error("webserver_requests_total not registered")
	}
}
