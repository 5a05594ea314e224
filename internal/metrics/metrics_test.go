package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Turn("reply")
	m.Turn("reply")
	m.Degraded("dialogue")
	m.Ended("keyword")
	m.Launched(true)
	m.Launched(false)

	if got := testutil.ToFloat64(m.turns.WithLabelValues("reply")); got != 2 {
		t.Errorf("expected 2 reply turns, got %v", got)
	}
	if got := testutil.ToFloat64(m.degraded.WithLabelValues("dialogue")); got != 1 {
		t.Errorf("expected 1 degraded dialogue, got %v", got)
	}
	if got := testutil.ToFloat64(m.ended.WithLabelValues("keyword")); got != 1 {
		t.Errorf("expected 1 keyword end, got %v", got)
	}
	if got := testutil.ToFloat64(m.launched.WithLabelValues("failed")); got != 1 {
		t.Errorf("expected 1 failed launch, got %v", got)
	}
}

func TestMetrics_Latency(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Since("synthesis", time.Now().Add(-time.Second))

	if n := testutil.CollectAndCount(m.latency); n != 1 {
		t.Errorf("expected 1 latency series, got %d", n)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.Turn("reply")
	m.Degraded("synthesis")
	m.Ended("max_turns")
	m.Launched(true)
	m.Since("dialogue", time.Now())
}
