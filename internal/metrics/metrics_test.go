package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())
	m.Dispatch()
	m.Call("notify", "delivery", OutcomeOK, 20*time.Millisecond)
	m.Call("notify", "delivery", OutcomeOK, 10*time.Millisecond)
	m.Call("tts", "delivery", OutcomeUnavailable, 0)
	m.Skipped("quiet_hours")
	m.Reload(false)

	if got := testutil.ToFloat64(m.dispatches); got != 1 {
		t.Fatalf("dispatches = %v", got)
	}
	if got := testutil.ToFloat64(m.calls.WithLabelValues("notify", "delivery", OutcomeOK)); got != 2 {
		t.Fatalf("notify ok = %v", got)
	}
	if got := testutil.ToFloat64(m.skipped.WithLabelValues("quiet_hours")); got != 1 {
		t.Fatalf("skipped = %v", got)
	}
	if got := testutil.ToFloat64(m.reloads.WithLabelValues("rejected")); got != 1 {
		t.Fatalf("reload rejected = %v", got)
	}
}

func TestNilSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.Dispatch()
	m.Call("x", "y", OutcomeFailed, time.Second)
	m.Skipped("r")
	m.Reload(true)
}
