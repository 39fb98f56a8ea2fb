package logger

import (
	"context"
	"sync"
	"testing"
	"time"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func TestCollectorAggregatesRepeats(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Topic: "logs", Publisher: pub})

	for i := 0; i < 3; i++ {
		c.AddLog("warn", "location unresolved", map[string]interface{}{"train_id": "T-1"}, "x.go:1")
	}
	c.AddLog("warn", "location unresolved", map[string]interface{}{"train_id": "T-2"}, "x.go:1")
	if c.Pending() != 2 {
		t.Fatalf("expected 2 distinct entries, got %d", c.Pending())
	}
	c.Close()

	if len(pub.batches) != 1 || pub.topic != "logs" {
		t.Fatalf("expected one batch on logs, got %d on %q", len(pub.batches), pub.topic)
	}
	counts := map[interface{}]int{}
	for _, e := range pub.batches[0] {
		counts[e.Fields["train_id"]] = e.Count
	}
	if counts["T-1"] != 3 || counts["T-2"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestCollectorFlushesOnThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Topic: "logs", Publisher: pub})
	c.AddLog("error", "a", nil, "x.go:1")
	c.AddLog("error", "b", nil, "x.go:2")
	if c.Pending() != 0 {
		t.Fatalf("threshold should have flushed, %d pending", c.Pending())
	}
	c.Close()
	if len(pub.batches) != 1 || len(pub.batches[0]) != 2 {
		t.Fatalf("expected one batch of two, got %+v", pub.batches)
	}
}

func TestLoggerFeedsCollector(t *testing.T) {
	l, err := New(&Config{Level: "debug", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	pub := &capturePublisher{}
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "logs", Publisher: pub})

	child := l.With(String("component", "test"))
	child.Info("not collected")
	child.Warn("collected", String("train_id", "T-9"))
	l.RemoveCollector()

	if len(pub.batches) != 1 || len(pub.batches[0]) != 1 || pub.batches[0][0].Message != "collected" {
		t.Fatalf("expected only the warning to be collected, got %+v", pub.batches)
	}
}
