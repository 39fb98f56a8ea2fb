package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"TrainCtl/internal/domain/models"
	"TrainCtl/internal/repository"
	"TrainCtl/internal/services/conflict"
	"TrainCtl/internal/services/decision"
	"TrainCtl/internal/topology"
	"TrainCtl/pkg/cache"

	"github.com/google/go-cmp/cmp"
)

var now = time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC)

type recorder struct {
	mu      sync.Mutex
	events  []models.DecisionEvent
	records []models.HistoryRecord
	issues  []string
}

func (r *recorder) Publish(_ context.Context, evt models.DecisionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) Submit(rec models.HistoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

type broadcast struct{ events []models.DecisionEvent }

func (b *broadcast) Publish(evt models.DecisionEvent) { b.events = append(b.events, evt) }

type qualityMetrics struct {
	nopMetrics
	reasons []string
}

func (q *qualityMetrics) RecordDataQuality(reason string) { q.reasons = append(q.reasons, reason) }

type harness struct {
	ctl   *TrafficController
	rec   *recorder
	bc    *broadcast
	cache *cache.MemoryCache
}

func newHarness(t *testing.T, opts ...ControllerOption) harness {
	t.Helper()
	topo, err := topology.New(models.TopologyData{
		Segments: []models.TrackSegment{
			{ID: "S1", From: "J1", To: "J2", LengthM: 1000},
			{ID: "S2", From: "J2", To: "J3", LengthM: 2000},
			{ID: "S5", From: "J3", To: "J4", LengthM: 1500},
			{ID: "S6", From: "J4", To: "J5", LengthM: 1000},
		},
		Waypoints: []models.Waypoint{
			{ID: "SIG-3", Type: models.WaypointSignal, Segment: "S2", OffsetM: 1900},
			{ID: "SIG-12", Type: models.WaypointSignal, Segment: "S5", OffsetM: 1200},
		},
	})
	if err != nil {
		t.Fatalf("topology: %v", err)
	}
	h := harness{rec: &recorder{}, bc: &broadcast{}, cache: cache.NewMemoryCache()}
	t.Cleanup(func() { _ = h.cache.Close() })

	base := []ControllerOption{
		WithDecisionPublisher(h.rec),
		WithBroadcaster(h.bc),
		WithHistory(nil, h.rec),
		WithDecisionCache(h.cache, time.Minute),
		WithClock(func() time.Time { return now }),
	}
	h.ctl = NewTrafficController(topo, repository.NewMemoryStateStore(),
		conflict.NewDetector(topo, conflict.DefaultConfig()),
		decision.NewEngine(topo, decision.DefaultPriorityTable(), decision.DefaultConfig()),
		append(base, opts...)...,
	)
	return h
}

func report(id, loc string, speed float64, priority string, at time.Time) models.StatusReport {
	return models.StatusReport{
		TrainID:   id,
		Location:  models.Location{Ref: loc},
		SpeedKmh:  speed,
		Status:    "On Time",
		Priority:  priority,
		Timestamp: at,
	}
}

func mustReport(t *testing.T, ctl *TrafficController, r models.StatusReport) {
	t.Helper()
	if err := ctl.ReportStatus(context.Background(), r); err != nil {
		t.Fatalf("report %s: %v", r.TrainID, err)
	}
}

func TestRequestDecisionClearRoute(t *testing.T) {
	h := newHarness(t)
	mustReport(t, h.ctl, report("T-101", "S1:0", 80, "", now))

	d, err := h.ctl.RequestDecision(context.Background(), "T-101")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Action != models.ActionMaintainSpeed || d.Reason != models.ReasonClear || d.EstimatedImpactMinutes != 0 {
		t.Fatalf("expected clear maintain, got %+v", d)
	}
}

func TestRequestDecisionPrioritisesExpress(t *testing.T) {
	h := newHarness(t)
	mustReport(t, h.ctl, report("T-101", "S5:100", 60, "normal", now))
	mustReport(t, h.ctl, report("T-205", "S5:300", 100, "express", now))
	ctx := context.Background()

	slow, err := h.ctl.RequestDecision(ctx, "T-101")
	if err != nil {
		t.Fatalf("decide T-101: %v", err)
	}
	if slow.Action != models.ActionHoldAtSignal && slow.Action != models.ActionReduceSpeed {
		t.Fatalf("T-101 must yield, got %+v", slow)
	}
	if !strings.Contains(slow.Reason, "T-205") || slow.EstimatedImpactMinutes <= 0 {
		t.Fatalf("yield must name T-205 with impact, got %+v", slow)
	}

	fast, err := h.ctl.RequestDecision(ctx, "T-205")
	if err != nil {
		t.Fatalf("decide T-205: %v", err)
	}
	if fast.Action != models.ActionMaintainSpeed {
		t.Fatalf("T-205 must keep its path, got %+v", fast)
	}

	if len(h.rec.events) != 2 || len(h.bc.events) != 2 {
		t.Fatalf("each decision is published and broadcast once: %d %d", len(h.rec.events), len(h.bc.events))
	}
	if !h.rec.events[0].IssuedAt.Equal(now) {
		t.Fatalf("issued at %s", h.rec.events[0].IssuedAt)
	}
}

func TestRequestDecisionUnknownTrain(t *testing.T) {
	h := newHarness(t)
	mustReport(t, h.ctl, report("T-101", "S1", 10, "", now))
	if _, err := h.ctl.RequestDecision(context.Background(), "T-999"); !errors.Is(err, models.ErrUnknownTrain) {
		t.Fatalf("expected unknown train, got %v", err)
	}
	if _, err := h.ctl.Train(context.Background(), "T-999"); !errors.Is(err, models.ErrUnknownTrain) {
		t.Fatalf("expected unknown train, got %v", err)
	}
}

func TestRequestDecisionCachedPerSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mustReport(t, h.ctl, report("T-101", "S5:100", 60, "", now))

	first, _ := h.ctl.RequestDecision(ctx, "T-101")
	second, _ := h.ctl.RequestDecision(ctx, "T-101")
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("cached decision differs (-first +second):\n%s", diff)
	}
	if len(h.rec.events) != 1 {
		t.Fatalf("cache hit must not re-issue, got %d events", len(h.rec.events))
	}

	mustReport(t, h.ctl, report("T-101", "S5:200", 60, "", now.Add(time.Second)))
	third, _ := h.ctl.RequestDecision(ctx, "T-101")
	if third.SnapshotVersion == first.SnapshotVersion || len(h.rec.events) != 2 {
		t.Fatalf("new snapshot must be decided afresh: v%d events=%d", third.SnapshotVersion, len(h.rec.events))
	}
}

func TestReportStatusRejectsStaleAndInvalid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mustReport(t, h.ctl, report("T-101", "S1:0", 80, "", now))

	for i := 0; i < 2; i++ {
		err := h.ctl.ReportStatus(ctx, report("T-101", "S1:500", 80, "", now))
		if !errors.Is(err, models.ErrStaleReport) {
			t.Fatalf("attempt %d: expected stale, got %v", i, err)
		}
	}
	st, _ := h.ctl.Train(ctx, "T-101")
	if st.Location.Ref != "S1:0" || st.Status != models.StatusOnTime {
		t.Fatalf("stale report must not change state: %+v", st)
	}

	bad := []models.StatusReport{
		report("", "S1", 10, "", now),
		report("T-1", "", 10, "", now),
		report("T-1", "S1", -5, "", now),
		{TrainID: "T-1", Location: models.Location{Ref: "S1"}, Status: "Flying", Timestamp: now},
	}
	for _, r := range bad {
		if err := h.ctl.ReportStatus(ctx, r); !errors.Is(err, models.ErrInvalidReport) {
			t.Fatalf("expected invalid report for %+v, got %v", r, err)
		}
	}

	if len(h.rec.records) != 1 || h.rec.records[0].Kind != models.HistoryStatus {
		t.Fatalf("only the accepted report is recorded, got %+v", h.rec.records)
	}
}

func TestReportStatusStampsMissingTimestamp(t *testing.T) {
	h := newHarness(t)
	mustReport(t, h.ctl, report("T-7", "S2", 40, "", time.Time{}))
	st, err := h.ctl.Train(context.Background(), "T-7")
	if err != nil || !st.Timestamp.Equal(now) {
		t.Fatalf("expected server timestamp %s, got %+v %v", now, st, err)
	}
}

func TestConflictsReportsDataQuality(t *testing.T) {
	m := &qualityMetrics{}
	h := newHarness(t, WithControllerMetrics(m))
	mustReport(t, h.ctl, report("T-1", "S99:0", 40, "", now))
	mustReport(t, h.ctl, report("T-2", "S1:0", 40, "", now))

	res := h.ctl.Conflicts(context.Background())
	if len(res.Excluded) != 1 || res.Excluded[0].TrainID != "T-1" {
		t.Fatalf("expected T-1 excluded, got %+v", res.Excluded)
	}
	if len(m.reasons) != 1 {
		t.Fatalf("data quality not counted: %v", m.reasons)
	}
	if got := h.ctl.Trains(context.Background()); len(got) != 2 || got[0].TrainID != "T-1" {
		t.Fatalf("trains not listed in order: %+v", got)
	}
}

// memMirror keeps one state per train, like the Redis hash.
type memMirror struct {
	mu     sync.Mutex
	states map[string]models.TrainState
}

func newMemMirror() *memMirror { return &memMirror{states: map[string]models.TrainState{}} }

func (m *memMirror) Save(_ context.Context, st models.TrainState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.states[st.TrainID]; !ok || st.Timestamp.After(cur.Timestamp) {
		m.states[st.TrainID] = st
	}
	return nil
}

func (m *memMirror) LoadAll(context.Context) ([]models.TrainState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.TrainState, 0, len(m.states))
	for _, st := range m.states {
		out = append(out, st)
	}
	return out, nil
}

func (m *memMirror) Close() error { return nil }

// listMirror replays whatever it holds, duplicates included.
type listMirror struct{ states []models.TrainState }

func (m *listMirror) Save(context.Context, models.TrainState) error        { return nil }
func (m *listMirror) LoadAll(context.Context) ([]models.TrainState, error) { return m.states, nil }
func (m *listMirror) Close() error                                         { return nil }

func TestWarmUpReplaysMirrorAndClearsCache(t *testing.T) {
	mirror := newMemMirror()
	ctx := context.Background()
	first := newHarness(t, WithStateMirror(mirror))
	mustReport(t, first.ctl, report("T-101", "S5:100", 60, "", now))
	mustReport(t, first.ctl, report("T-101", "S5:300", 60, "", now.Add(time.Second)))
	mustReport(t, first.ctl, report("T-205", "S1", 60, "", now))

	second := newHarness(t, WithStateMirror(mirror))
	_ = second.cache.Set(ctx, second.ctl.decisionPrefix()+":T-101:2", models.Decision{TrainID: "T-101"}, time.Minute)
	n, err := second.ctl.WarmUp(ctx)
	if err != nil {
		t.Fatalf("warm up: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 states replayed (one superseded), got %d", n)
	}
	st, _ := second.ctl.Train(ctx, "T-101")
	if st.Location.Ref != "S5:300" {
		t.Fatalf("latest mirrored state must win, got %+v", st)
	}
	if second.cache.Len() != 0 {
		t.Fatalf("decisions cached before warm up must be dropped")
	}
}

func TestWarmUpAppliesNewestDuplicateLast(t *testing.T) {
	ctx := context.Background()
	older := models.TrainState{TrainID: "T-101", Location: models.Location{Ref: "S5:100"}, SpeedKmh: 60, Timestamp: now}
	newer := older
	newer.Location = models.Location{Ref: "S5:300"}
	newer.Timestamp = now.Add(time.Second)

	h := newHarness(t, WithStateMirror(&listMirror{states: []models.TrainState{newer, older}}))
	if _, err := h.ctl.WarmUp(ctx); err != nil {
		t.Fatalf("warm up: %v", err)
	}
	st, err := h.ctl.Train(ctx, "T-101")
	if err != nil || st.Location.Ref != "S5:300" {
		t.Fatalf("newest replayed state must win, got %+v (%v)", st, err)
	}
}

func TestDecisionCacheIsScopedPerProcess(t *testing.T) {
	ctx := context.Background()
	shared := cache.NewMemoryCache()
	t.Cleanup(func() { _ = shared.Close() })

	a := newHarness(t, WithDecisionCache(shared, time.Minute))
	b := newHarness(t, WithDecisionCache(shared, time.Minute))
	// both stores sit at version 1 with different states
	mustReport(t, a.ctl, report("T-101", "S1:0", 80, "", now))
	mustReport(t, b.ctl, report("T-101", "S5:100", 60, "", now))

	da, err := a.ctl.RequestDecision(ctx, "T-101")
	if err != nil {
		t.Fatalf("decide a: %v", err)
	}
	db, err := b.ctl.RequestDecision(ctx, "T-101")
	if err != nil {
		t.Fatalf("decide b: %v", err)
	}
	if da.SnapshotVersion != db.SnapshotVersion {
		t.Fatalf("expected equal versions, got %d and %d", da.SnapshotVersion, db.SnapshotVersion)
	}
	if shared.Len() != 2 || len(b.rec.events) != 1 {
		t.Fatalf("each process must compute and cache its own decision, cached=%d issued=%d", shared.Len(), len(b.rec.events))
	}

	if _, err := b.ctl.WarmUp(ctx); err != nil {
		t.Fatalf("warm up: %v", err)
	}
	if shared.Len() != 1 {
		t.Fatalf("warm up must only drop its own entries, %d left", shared.Len())
	}
	if _, err := a.ctl.RequestDecision(ctx, "T-101"); err != nil || len(a.rec.events) != 1 {
		t.Fatalf("a should still hit its cache, issued=%d err=%v", len(a.rec.events), err)
	}
}

type memHistory struct{ recs []models.HistoryRecord }

func (m *memHistory) Init(context.Context) error                               { return nil }
func (m *memHistory) Store(context.Context, models.HistoryRecord) error        { return nil }
func (m *memHistory) StoreBatch(context.Context, []models.HistoryRecord) error { return nil }
func (m *memHistory) Query(context.Context, string, int) ([]models.HistoryRecord, error) {
	return m.recs, nil
}
func (m *memHistory) Health(context.Context) error { return nil }
func (m *memHistory) Close() error                 { return nil }

func TestHistory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	if _, err := h.ctl.History(ctx, "T-1", 10); !errors.Is(err, ErrHistoryDisabled) {
		t.Fatalf("expected disabled, got %v", err)
	}

	store := &memHistory{recs: []models.HistoryRecord{{TrainID: "T-1", Kind: models.HistoryStatus}}}
	h = newHarness(t, WithHistory(store, &recorder{}))
	if _, err := h.ctl.History(ctx, "T-1", 10); !errors.Is(err, models.ErrUnknownTrain) {
		t.Fatalf("expected unknown train, got %v", err)
	}
	mustReport(t, h.ctl, report("T-1", "S1", 10, "", now))
	recs, err := h.ctl.History(ctx, "T-1", 10)
	if err != nil || len(recs) != 1 {
		t.Fatalf("history %+v %v", recs, err)
	}
}
