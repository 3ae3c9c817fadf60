package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := &dto.Metric{}
	if err := (<-ch).Write(m); err != nil {
		t.Fatal(err)
	}
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	reg := prometheus.NewRegistry()
	orig := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = reg
	t.Cleanup(func() { prometheus.DefaultRegisterer = orig })
	return NewMetrics()
}

func TestRecordNode(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordNode("router", "ok", 0.2)

	if v := counterValue(t, m.NodeCounter.WithLabelValues("router", "ok")); v != 1 {
		t.Errorf("node counter = %v, want 1", v)
	}
}

func TestRecordProviderRequest(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordProviderRequest("ollama", "qwen2.5:7b", "success", 1.5)

	if v := counterValue(t, m.ProviderRequestCounter.WithLabelValues("ollama", "qwen2.5:7b", "success")); v != 1 {
		t.Errorf("provider counter = %v, want 1", v)
	}
}

func TestRecordToolExecution(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordToolExecution("world_apply_ops", "success", 0.01)

	if v := counterValue(t, m.ToolExecutionCounter.WithLabelValues("world_apply_ops", "success")); v != 1 {
		t.Errorf("tool counter = %v, want 1", v)
	}
}

func TestTurnStartedAndEnded(t *testing.T) {
	m := newTestMetrics(t)
	m.TurnStarted()
	if v := counterValue(t, m.ActiveTurns); v != 1 {
		t.Errorf("active turns = %v, want 1", v)
	}
	m.TurnEnded("ok", 3.2)
	if v := counterValue(t, m.ActiveTurns); v != 0 {
		t.Errorf("active turns = %v, want 0", v)
	}
}

func TestRecordError(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordError("answer", "NODE_ERROR")

	if v := counterValue(t, m.ErrorCounter.WithLabelValues("answer", "NODE_ERROR")); v != 1 {
		t.Errorf("error counter = %v, want 1", v)
	}
}
