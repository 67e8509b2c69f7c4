package metrics

import (
	"strings"
	"sync"
	"testing"
)

func TestCounterConcurrentAdd(t *testing.T) {
	c := NewCounter("test")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Inc()
			}
		}()
	}
	wg.Wait()
	if c.Value() != 8000 {
		t.Fatalf("expected 8000, got %d", c.Value())
	}
	c.Add(-5)
	if c.Value() != 8000 {
		t.Fatal("negative Add must be ignored")
	}
}

func TestGauge(t *testing.T) {
	g := NewGauge("g")
	g.Set(42)
	g.Inc()
	g.Dec()
	if g.Value() != 42 {
		t.Fatalf("expected 42, got %d", g.Value())
	}
}

func TestHistogramSummary(t *testing.T) {
	h := NewHistogram("h")
	if h.Min() != 0 || h.Max() != 0 || h.Mean() != 0 {
		t.Fatal("empty histogram must report zeros")
	}
	for _, v := range []float64{1, 2, 3} {
		h.Observe(v)
	}
	if h.Count() != 3 || h.Sum() != 6 || h.Min() != 1 || h.Max() != 3 || h.Mean() != 2 {
		t.Fatalf("unexpected summary: count=%d sum=%v min=%v max=%v mean=%v",
			h.Count(), h.Sum(), h.Min(), h.Max(), h.Mean())
	}
}

func TestRegistryGetOrCreate(t *testing.T) {
	r := NewRegistry()
	c1 := r.Counter("sched_slots_total")
	c2 := r.Counter("sched_slots_total")
	if c1 != c2 {
		t.Fatal("registry must return the same counter instance")
	}
	c1.Inc()
	snap := r.Snapshot()
	if snap["sched_slots_total"] != int64(1) {
		t.Fatalf("snapshot mismatch: %v", snap["sched_slots_total"])
	}
}

func TestPrometheusRender(t *testing.T) {
	r := NewRegistry()
	r.Counter("sched_slots_total").Add(7)
	r.Gauge("active_ues").Set(3)

	pe := NewPrometheusExporter(r, PrometheusConfig{Namespace: "gnbsched"})
	out := pe.Render()
	if !strings.Contains(out, "gnbsched_sched_slots_total 7") {
		t.Fatalf("missing counter line in output:\n%s", out)
	}
	if !strings.Contains(out, "# TYPE gnbsched_active_ues gauge") {
		t.Fatalf("missing gauge type line in output:\n%s", out)
	}
}
