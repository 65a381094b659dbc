package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestRequestsTotalByOutcome(t *testing.T) {
	hit := RequestsTotal.WithLabelValues("hit")
	before := counterValue(t, hit)
	hit.Inc()
	hit.Inc()
	if got := counterValue(t, hit) - before; got != 2 {
		t.Errorf("hit delta = %v, want 2", got)
	}
}

func TestCacheGauges(t *testing.T) {
	CacheEntries.Set(42)
	if got := gaugeValue(t, CacheEntries); got != 42 {
		t.Errorf("cache entries = %v, want 42", got)
	}

	before := counterValue(t, CacheSweptTotal)
	CacheSweptTotal.Add(10)
	if got := counterValue(t, CacheSweptTotal) - before; got != 10 {
		t.Errorf("swept delta = %v, want 10", got)
	}
}

func TestUpstreamDurationLabels(t *testing.T) {
	UpstreamDuration.WithLabelValues("anthropic").Observe(0.3)

	var m dto.Metric
	obs := UpstreamDuration.WithLabelValues("anthropic").(prometheus.Histogram)
	if err := obs.Write(&m); err != nil {
		t.Fatal(err)
	}
	if m.GetHistogram().GetSampleCount() == 0 {
		t.Error("expected at least one sample")
	}
	if len(m.GetLabel()) != 1 || m.GetLabel()[0].GetValue() != "anthropic" {
		t.Errorf("labels = %v", m.GetLabel())
	}
}
