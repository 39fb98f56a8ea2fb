package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"TrainCtl/internal/domain/models"
)

type memHistory struct {
	mu      sync.Mutex
	fail    int
	calls   int
	batches [][]models.HistoryRecord
}

func (m *memHistory) Init(context.Context) error { return nil }
func (m *memHistory) Store(ctx context.Context, rec models.HistoryRecord) error {
	return m.StoreBatch(ctx, []models.HistoryRecord{rec})
}
func (m *memHistory) StoreBatch(_ context.Context, recs []models.HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail > 0 {
		m.fail--
		return errors.New("clickhouse unavailable")
	}
	m.batches = append(m.batches, append([]models.HistoryRecord(nil), recs...))
	return nil
}
func (m *memHistory) Query(context.Context, string, int) ([]models.HistoryRecord, error) {
	return nil, nil
}
func (m *memHistory) Health(context.Context) error { return nil }
func (m *memHistory) Close() error                 { return nil }

func (m *memHistory) records() []models.HistoryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.HistoryRecord
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

type countingMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{errors: map[string]int{}}
}

func (c *countingMetrics) RecordReport(string)           {}
func (c *countingMetrics) RecordConflicts(int)           {}
func (c *countingMetrics) RecordDecision(string)         {}
func (c *countingMetrics) RecordDataQuality(string)      {}
func (c *countingMetrics) RecordLatency(string, float64) {}
func (c *countingMetrics) SetTrains(int)                 {}
func (c *countingMetrics) RecordError(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors[kind]++
}
func (c *countingMetrics) count(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors[kind]
}

var ts0 = time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC)

func statusRecord(train string, at time.Time) models.HistoryRecord {
	return models.HistoryRecord{Kind: models.HistoryStatus, TrainID: train, Timestamp: at, Location: "S5:100", Status: "OnTime"}
}

func TestPipelineBatchesAndFlushesOnStop(t *testing.T) {
	store := &memHistory{}
	p := NewHistoryPipeline(store, newCountingMetrics(), WithBatch(2, time.Hour), WithMaxRPS(0))
	p.Start(context.Background())

	for i := 0; i < 5; i++ {
		if err := p.Submit(statusRecord("T-1", ts0.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	recs := store.records()
	if len(recs) != 5 {
		t.Fatalf("expected 5 records stored, got %d", len(recs))
	}
	if len(store.batches) != 3 {
		t.Fatalf("expected batches of 2,2,1, got %d batches", len(store.batches))
	}
	seen := map[string]bool{}
	for _, r := range recs {
		if r.EventID == "" || seen[r.EventID] {
			t.Fatalf("every record needs a unique event id, got %q", r.EventID)
		}
		seen[r.EventID] = true
	}
	if err := p.Submit(statusRecord("T-1", ts0)); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
}

func TestPipelineRetriesFailedBatch(t *testing.T) {
	store := &memHistory{fail: 2}
	m := newCountingMetrics()
	p := NewHistoryPipeline(store, m, WithBatch(1, time.Hour), WithMaxRetries(3))
	p.Start(context.Background())

	_ = p.Submit(statusRecord("T-1", ts0))
	_ = p.Stop(context.Background())

	if len(store.records()) != 1 || store.calls != 3 {
		t.Fatalf("expected success on third attempt, calls=%d records=%d", store.calls, len(store.records()))
	}
	if m.count("pipeline_flush") != 2 || m.count("pipeline_batch_drop") != 0 {
		t.Fatalf("unexpected error counts %v", m.errors)
	}
}

func TestPipelineDropsAfterRetries(t *testing.T) {
	store := &memHistory{fail: 10}
	m := newCountingMetrics()
	p := NewHistoryPipeline(store, m, WithBatch(1, time.Hour), WithMaxRetries(1))
	p.Start(context.Background())
	_ = p.Submit(statusRecord("T-1", ts0))
	_ = p.Stop(context.Background())

	if store.calls != 2 || m.count("pipeline_batch_drop") != 1 {
		t.Fatalf("expected one retry then drop, calls=%d errors=%v", store.calls, m.errors)
	}
}

func TestPipelineThrottlesStatusPerTrain(t *testing.T) {
	store := &memHistory{}
	m := newCountingMetrics()
	p := NewHistoryPipeline(store, m, WithMaxRPS(1), WithBatch(100, time.Hour))
	clock := ts0
	p.now = func() time.Time { return clock }
	p.Start(context.Background())

	_ = p.Submit(statusRecord("T-1", ts0))
	_ = p.Submit(statusRecord("T-1", ts0.Add(time.Millisecond)))
	_ = p.Submit(statusRecord("T-2", ts0))
	_ = p.Submit(models.HistoryRecord{Kind: models.HistoryDecision, TrainID: "T-1", Timestamp: ts0, Action: "HoldAtSignal"})
	clock = clock.Add(2 * time.Second)
	_ = p.Submit(statusRecord("T-1", ts0.Add(2*time.Second)))
	_ = p.Stop(context.Background())

	if got := len(store.records()); got != 4 {
		t.Fatalf("expected 4 records (one throttled), got %d", got)
	}
	if m.count("pipeline_throttle") != 1 {
		t.Fatalf("expected one throttle, got %v", m.errors)
	}
}

func TestPipelineRejectsInvalid(t *testing.T) {
	p := NewHistoryPipeline(&memHistory{}, newCountingMetrics())
	cases := []models.HistoryRecord{
		{Kind: models.HistoryStatus, Timestamp: ts0},
		{Kind: models.HistoryStatus, TrainID: "T-1"},
		{Kind: "audit", TrainID: "T-1", Timestamp: ts0},
	}
	for _, rec := range cases {
		if err := p.Submit(rec); !errors.Is(err, models.ErrInvalidReport) {
			t.Fatalf("expected invalid report for %+v, got %v", rec, err)
		}
	}
}
