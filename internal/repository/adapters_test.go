package repository

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"TrainCtl/internal/domain/models"
	"TrainCtl/pkg/cache"

	"github.com/google/go-cmp/cmp"
)

type fakeHash struct {
	data map[string]string
}

func (f *fakeHash) HSetIfNewer(_ context.Context, _ string, field string, value interface{}, version int64) (bool, error) {
	vf := field + cache.VersionSuffix
	if cur, ok := f.data[vf]; ok {
		if v, _ := strconv.ParseInt(cur, 10, 64); v >= version {
			return false, nil
		}
	}
	b, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	f.data[field] = string(b)
	f.data[vf] = strconv.FormatInt(version, 10)
	return true, nil
}

func (f *fakeHash) HGetAll(context.Context, string) (map[string]string, error) {
	out := make(map[string]string, len(f.data))
	for k, v := range f.data {
		out[k] = v
	}
	return out, nil
}

func (f *fakeHash) Close() error { return nil }

func TestStateMirrorRoundTrip(t *testing.T) {
	h := &fakeHash{data: map[string]string{}}
	m := newStateMirror(h, nil)
	ctx := context.Background()

	want := state("T-205", t0, 120)
	want.Route = []string{"S4", "S5"}
	if err := m.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	h.data["T-bad"] = "{not json"

	got, err := m.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff([]models.TrainState{want}, got); diff != "" {
		t.Fatalf("mirror mismatch (-want +got):\n%s", diff)
	}
}

func TestStateMirrorKeepsNewestOnReorderedSaves(t *testing.T) {
	h := &fakeHash{data: map[string]string{}}
	m := newStateMirror(h, nil)
	ctx := context.Background()

	newer := state("T-101", t0.Add(time.Second), 80)
	older := state("T-101", t0, 60)
	for _, st := range []models.TrainState{newer, older} {
		if err := m.Save(ctx, st); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	got, err := m.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff([]models.TrainState{newer}, got); diff != "" {
		t.Fatalf("late older save must not win (-want +got):\n%s", diff)
	}
}

type recordingProducer struct {
	topic string
	key   string
	value interface{}
}

func (p *recordingProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	p.topic, p.key, p.value = topic, string(key), value
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func TestDecisionPublisherKeysByTrain(t *testing.T) {
	rp := &recordingProducer{}
	pub := &KafkaDecisionPublisher{producer: rp, topic: "train.decisions"}
	evt := models.DecisionEvent{
		Decision: models.Decision{TrainID: "T-101", Action: models.ActionHoldAtSignal},
		IssuedAt: t0,
	}
	if err := pub.Publish(context.Background(), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if rp.topic != "train.decisions" || rp.key != "T-101" {
		t.Fatalf("unexpected routing %s/%s", rp.topic, rp.key)
	}
	if diff := cmp.Diff(evt, rp.value); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestHistoryRowsSkipUnqueryable(t *testing.T) {
	local := time.FixedZone("CET", 3600)
	recs := []models.HistoryRecord{
		{EventID: "e1", Kind: models.HistoryDecision, TrainID: "T-101", Timestamp: t0.In(local), Action: "HoldAtSignal", Reason: "yield to T-205", Impact: 1.5},
		{EventID: "e2", Kind: models.HistoryStatus, Timestamp: t0},
		{EventID: "e3", Kind: models.HistoryStatus, TrainID: "T-205"},
	}
	rows := historyRows(recs)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if len(rows[0]) != len(strings.Split(historyColumns, ",")) {
		t.Fatalf("row has %d values for %s", len(rows[0]), historyColumns)
	}
	if ts := rows[0][3].(time.Time); ts.Location() != time.UTC || !ts.Equal(t0) {
		t.Fatalf("timestamp not normalised to UTC: %s", ts)
	}
	if stmt := historySchema("train_history")[0]; !strings.Contains(stmt, "ORDER BY (train_id, ts, event_id)") {
		t.Fatalf("unexpected schema %s", stmt)
	}
}
