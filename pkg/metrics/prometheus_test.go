package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegistry(reg)

	r.RecordReport("accepted")
	r.RecordReport("accepted")
	r.RecordReport("stale")
	r.RecordDecision("HoldAtSignal")
	r.RecordConflicts(3)
	r.SetTrains(12)
	r.RecordLatency("decide", 0.002)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	byName := map[string]*dto.MetricFamily{}
	for _, f := range families {
		byName[f.GetName()] = f
	}

	reports := byName["trainctl_status_reports_total"]
	if reports == nil || len(reports.Metric) != 2 {
		t.Fatalf("expected two report series, got %v", reports)
	}
	for _, m := range reports.Metric {
		if m.Label[0].GetValue() == "accepted" && m.Counter.GetValue() != 2 {
			t.Fatalf("accepted = %v", m.Counter.GetValue())
		}
	}
	if g := byName["trainctl_conflicts_current"]; g == nil || g.Metric[0].Gauge.GetValue() != 3 {
		t.Fatalf("conflicts gauge not set: %v", g)
	}
	if g := byName["trainctl_trains_tracked"]; g == nil || g.Metric[0].Gauge.GetValue() != 12 {
		t.Fatalf("trains gauge not set: %v", g)
	}
	if h := byName["trainctl_operation_duration_seconds"]; h == nil || h.Metric[0].Histogram.GetSampleCount() != 1 {
		t.Fatalf("latency not observed: %v", h)
	}
}
