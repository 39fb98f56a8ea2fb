package conflict

import (
	"testing"
	"time"

	"TrainCtl/internal/domain/models"
	"TrainCtl/internal/topology"

	"github.com/google/go-cmp/cmp"
)

func testNetwork(t *testing.T) *topology.Topology {
	t.Helper()
	topo, err := topology.New(models.TopologyData{
		Segments: []models.TrackSegment{
			{ID: "S1", From: "J1", To: "J2", LengthM: 1000, MaxSpeedKmh: 120},
			{ID: "S2", From: "J2", To: "J3", LengthM: 2000},
			{ID: "S5", From: "J3", To: "J4", LengthM: 1500},
			{ID: "S6", From: "J4", To: "J5", LengthM: 1000},
			{ID: "S7", From: "J2", To: "J4", LengthM: 800},
		},
		Waypoints: []models.Waypoint{
			{ID: "SIG-12", Type: models.WaypointSignal, Segment: "S5", OffsetM: 1200},
		},
	})
	if err != nil {
		t.Fatalf("topology: %v", err)
	}
	return topo
}

var at = time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC)

func train(id, loc string, speed float64, route ...string) models.TrainState {
	return models.TrainState{
		TrainID:   id,
		Location:  models.Location{Ref: loc},
		SpeedKmh:  speed,
		Status:    models.StatusOnTime,
		Route:     route,
		Timestamp: at,
	}
}

func snapshot(states ...models.TrainState) models.Snapshot {
	snap := models.Snapshot{Version: 7, Trains: map[string]models.TrainState{}}
	for _, s := range states {
		snap.Trains[s.TrainID] = s
	}
	return snap
}

func TestProjectFollowsRouteAndStopsAtBranch(t *testing.T) {
	net := testNetwork(t)
	seg := func(id string, s, e float64) models.Occupancy {
		return models.Occupancy{Resource: models.Resource{Kind: models.ResourceSegment, ID: id}, Start: s, End: e}
	}
	jn := func(id string, at float64) models.Occupancy {
		return models.Occupancy{Resource: models.Resource{Kind: models.ResourceJunction, ID: id}, Start: at, End: at}
	}

	st := train("T-1", "S1", 60)
	got := Project(net, st, models.Position{Segment: "S1"}, 10, 64)
	want := []models.Occupancy{seg("S1", 0, 1), jn("J2", 1)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("branch without route (-want +got):\n%s", diff)
	}

	st = train("T-1", "S1", 60, "S1", "S7")
	got = Project(net, st, models.Position{Segment: "S1"}, 10, 64)
	want = []models.Occupancy{seg("S1", 0, 1), jn("J2", 1), seg("S7", 1, 1.8), jn("J4", 1.8), seg("S6", 1.8, 2.8), jn("J5", 2.8)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("routed projection (-want +got):\n%s", diff)
	}
}

func TestProjectCapsAtSegmentLimitAndHorizon(t *testing.T) {
	net := testNetwork(t)
	got := Project(net, train("T-1", "S1", 200), models.Position{Segment: "S1"}, 10, 64)
	if got[0].End != 0.5 {
		t.Fatalf("expected speed capped to 120 km/h (exit 0.5 min), got %+v", got[0])
	}

	got = Project(net, train("T-2", "S2", 6), models.Position{Segment: "S2"}, 10, 64)
	if len(got) != 1 || got[0].End != 10 {
		t.Fatalf("expected projection clipped to horizon, got %+v", got)
	}
}

func TestSharedSegmentIsReportedOnce(t *testing.T) {
	d := NewDetector(testNetwork(t), DefaultConfig())
	res := d.Detect(snapshot(train("T-205", "S5:300", 100), train("T-101", "S5:100", 60)))

	if len(res.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %+v", res.Conflicts)
	}
	c := res.Conflicts[0]
	if c.TrainA != "T-101" || c.TrainB != "T-205" {
		t.Fatalf("pair must be ordered lexically, got %s/%s", c.TrainA, c.TrainB)
	}
	if c.Resource.ID != "S5" || c.GapMinutes != 0 || c.OverlapMinutes <= 0 {
		t.Fatalf("unexpected conflict %+v", c)
	}
	if c.Severity != 60 {
		t.Fatalf("overlap severity must be 1/MinGap = 60, got %v", c.Severity)
	}
	if res.SnapshotVersion != 7 {
		t.Fatalf("expected snapshot version to be carried, got %d", res.SnapshotVersion)
	}
}

func TestEveryPairAtMostOnce(t *testing.T) {
	d := NewDetector(testNetwork(t), DefaultConfig())
	res := d.Detect(snapshot(
		train("A", "S5:0", 30),
		train("B", "S5:500", 30),
		train("C", "S5:1000", 0),
	))
	seen := map[[2]string]bool{}
	for _, c := range res.Conflicts {
		if c.TrainA >= c.TrainB {
			t.Fatalf("unordered pair %+v", c)
		}
		key := [2]string{c.TrainA, c.TrainB}
		if seen[key] {
			t.Fatalf("pair reported twice: %v", key)
		}
		seen[key] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 pairs, got %v", seen)
	}
}

func TestStationaryTrainBlocksEntry(t *testing.T) {
	d := NewDetector(testNetwork(t), DefaultConfig())

	// T-2 reaches J3 after 2 minutes and enters S5 where T-1 is stopped.
	res := d.Detect(snapshot(train("T-1", "S5:500", 0), train("T-2", "S2:0", 60)))
	if len(res.Conflicts) != 1 {
		t.Fatalf("expected conflict with stationary train, got %+v", res.Conflicts)
	}
	c := res.Conflicts[0]
	if c.Resource.ID != "S5" || c.EntryA != 0 || c.ExitA != 10 || c.EntryB != 2 {
		t.Fatalf("unexpected conflict %+v", c)
	}

	// Too slow to reach S5 within the horizon.
	res = d.Detect(snapshot(train("T-1", "S5:500", 0), train("T-2", "S2:0", 6)))
	if len(res.Conflicts) != 0 {
		t.Fatalf("expected no conflict beyond horizon, got %+v", res.Conflicts)
	}
}

func TestOrderingBySeverityThenTrainID(t *testing.T) {
	d := NewDetector(testNetwork(t), DefaultConfig())
	res := d.Detect(snapshot(
		// cross J4 one minute apart: gap 1, severity 1
		train("T-001", "S5:0", 90),
		train("T-002", "S7:0", 24, "S7", "S9"),
		// both stopped on S2: overlap, severity 60
		train("T-100", "S2:0", 0),
		train("T-101", "S2:500", 0),
	))
	var got [][2]string
	for _, c := range res.Conflicts {
		got = append(got, [2]string{c.TrainA, c.TrainB})
	}
	want := [][2]string{{"T-100", "T-101"}, {"T-001", "T-002"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ordering (-want +got):\n%s", diff)
	}
	if j := res.Conflicts[1]; j.Resource.Kind != models.ResourceJunction || j.GapMinutes != 1 || j.Severity != 1 {
		t.Fatalf("unexpected junction conflict %+v", j)
	}
}

func TestUnknownLocationIsExcluded(t *testing.T) {
	d := NewDetector(testNetwork(t), DefaultConfig())
	res := d.Detect(snapshot(
		train("T-X", "Milepost 105", 40),
		train("T-101", "S5:100", 60),
		train("T-205", "S5:300", 100),
	))
	if len(res.Excluded) != 1 || res.Excluded[0].TrainID != "T-X" {
		t.Fatalf("expected T-X excluded, got %+v", res.Excluded)
	}
	if len(res.Conflicts) != 1 {
		t.Fatalf("remaining trains must still be checked, got %+v", res.Conflicts)
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	d := NewDetector(testNetwork(t), DefaultConfig())
	snap := snapshot(
		train("T-1", "S5:0", 30),
		train("T-2", "S5:500", 80),
		train("T-3", "S2:100", 60),
		train("T-4", "S1:0", 100, "S1", "S7"),
		train("T-5", "S6:200", 0),
	)
	first := d.Detect(snap)
	for i := 0; i < 20; i++ {
		if diff := cmp.Diff(first, d.Detect(snap)); diff != "" {
			t.Fatalf("run %d differs (-first +got):\n%s", i, diff)
		}
	}
}

func TestHeadwayBoundary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Headway = time.Minute
	d := NewDetector(testNetwork(t), cfg)
	// same junction crossing as above, gap exactly 1 minute is not below headway
	res := d.Detect(snapshot(train("T-001", "S5:0", 90), train("T-002", "S7:0", 24, "S7", "S9")))
	if len(res.Conflicts) != 0 {
		t.Fatalf("gap equal to headway is safe, got %+v", res.Conflicts)
	}
}
