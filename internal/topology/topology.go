// Package topology holds the static track network: segments joined at
// junctions, plus the stations and signals placed along them. A Topology is
// built once and only read afterwards, so it is safe for concurrent use.
package topology

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"TrainCtl/internal/domain/models"
)

// Topology is an immutable, validated track network.
type Topology struct {
	name      string
	segments  []models.TrackSegment
	waypoints []models.Waypoint
	segByID   map[string]models.TrackSegment
	wpByID    map[string]models.Waypoint
	outgoing  map[string][]models.TrackSegment // junction -> segments leaving it, sorted by ID
	signals   map[string][]models.Waypoint     // segment -> signals sorted by offset
	junctions []string
	// all-pairs junction distances, filled at build time
	dist map[string]map[string]float64
}

// New validates data and builds a Topology. Every failure is a
// *models.TopologyLoadError.
func New(data models.TopologyData) (*Topology, error) {
	t := &Topology{
		name:     data.Name,
		segByID:  make(map[string]models.TrackSegment, len(data.Segments)),
		wpByID:   make(map[string]models.Waypoint, len(data.Waypoints)),
		outgoing: make(map[string][]models.TrackSegment),
		signals:  make(map[string][]models.Waypoint),
	}
	if len(data.Segments) == 0 {
		return nil, loadErr(fmt.Errorf("no segments"))
	}

	junctions := make(map[string]struct{})
	for _, s := range data.Segments {
		if err := t.addSegment(s); err != nil {
			return nil, err
		}
		junctions[s.From] = struct{}{}
		junctions[s.To] = struct{}{}
	}
	for _, w := range data.Waypoints {
		if err := t.addWaypoint(w); err != nil {
			return nil, err
		}
	}

	for j := range junctions {
		t.junctions = append(t.junctions, j)
	}
	sort.Strings(t.junctions)
	for j := range t.outgoing {
		segs := t.outgoing[j]
		sort.Slice(segs, func(a, b int) bool { return segs[a].ID < segs[b].ID })
	}
	for s := range t.signals {
		sigs := t.signals[s]
		sort.Slice(sigs, func(a, b int) bool {
			if sigs[a].OffsetM != sigs[b].OffsetM {
				return sigs[a].OffsetM < sigs[b].OffsetM
			}
			return sigs[a].ID < sigs[b].ID
		})
	}
	t.computeDistances()
	return t, nil
}

func loadErr(err error) error { return &models.TopologyLoadError{Err: err} }

func (t *Topology) addSegment(s models.TrackSegment) error {
	switch {
	case s.ID == "":
		return loadErr(fmt.Errorf("segment with empty id"))
	case s.From == "" || s.To == "":
		return loadErr(fmt.Errorf("segment %q: both junctions are required", s.ID))
	case s.From == s.To:
		return loadErr(fmt.Errorf("segment %q: from and to are the same junction %q", s.ID, s.From))
	case !(s.LengthM > 0) || math.IsInf(s.LengthM, 0):
		return loadErr(fmt.Errorf("segment %q: length must be positive, got %v", s.ID, s.LengthM))
	case s.MaxSpeedKmh < 0:
		return loadErr(fmt.Errorf("segment %q: negative max speed", s.ID))
	case strings.Contains(s.ID, ":"):
		return loadErr(fmt.Errorf("segment %q: ':' is reserved for offsets", s.ID))
	}
	if _, dup := t.segByID[s.ID]; dup {
		return loadErr(fmt.Errorf("segment %q already exists", s.ID))
	}
	t.segments = append(t.segments, s)
	t.segByID[s.ID] = s
	t.outgoing[s.From] = append(t.outgoing[s.From], s)
	return nil
}

func (t *Topology) addWaypoint(w models.Waypoint) error {
	if w.ID == "" {
		return loadErr(fmt.Errorf("waypoint with empty id"))
	}
	if w.Type != models.WaypointStation && w.Type != models.WaypointSignal {
		return loadErr(fmt.Errorf("waypoint %q: unknown type %q", w.ID, w.Type))
	}
	if _, dup := t.wpByID[w.ID]; dup {
		return loadErr(fmt.Errorf("waypoint %q already exists", w.ID))
	}
	if _, clash := t.segByID[w.ID]; clash {
		return loadErr(fmt.Errorf("waypoint %q clashes with a segment id", w.ID))
	}
	seg, ok := t.segByID[w.Segment]
	if !ok {
		return loadErr(fmt.Errorf("waypoint %q: segment %q not found", w.ID, w.Segment))
	}
	if w.OffsetM < 0 || w.OffsetM > seg.LengthM {
		return loadErr(fmt.Errorf("waypoint %q: offset %v outside segment %q (0..%v)", w.ID, w.OffsetM, seg.ID, seg.LengthM))
	}
	t.waypoints = append(t.waypoints, w)
	t.wpByID[w.ID] = w
	if w.Type == models.WaypointSignal {
		t.signals[w.Segment] = append(t.signals[w.Segment], w)
	}
	return nil
}

// Name returns the network name.
func (t *Topology) Name() string { return t.name }

// Segments returns all segments in load order.
func (t *Topology) Segments() []models.TrackSegment {
	return append([]models.TrackSegment(nil), t.segments...)
}

// Waypoints returns all stations and signals in load order.
func (t *Topology) Waypoints() []models.Waypoint {
	return append([]models.Waypoint(nil), t.waypoints...)
}

// Junctions returns junction IDs sorted.
func (t *Topology) Junctions() []string {
	return append([]string(nil), t.junctions...)
}

// Data returns the serialisable form.
func (t *Topology) Data() models.TopologyData {
	return models.TopologyData{Name: t.name, Segments: t.Segments(), Waypoints: t.Waypoints()}
}

// Segment looks up a segment by ID.
func (t *Topology) Segment(id string) (models.TrackSegment, bool) {
	s, ok := t.segByID[id]
	return s, ok
}

// Outgoing returns segments leaving junction, sorted by ID.
func (t *Topology) Outgoing(junction string) []models.TrackSegment {
	return append([]models.TrackSegment(nil), t.outgoing[junction]...)
}

// Neighbors returns the segments a train can continue onto after segmentID.
func (t *Topology) Neighbors(segmentID string) []models.TrackSegment {
	s, ok := t.segByID[segmentID]
	if !ok {
		return nil
	}
	return t.Outgoing(s.To)
}

// Resolve turns a reported location into a position on a known segment.
func (t *Topology) Resolve(loc models.Location) (models.Position, error) {
	if loc.SegmentID != "" {
		return t.position(loc.SegmentID, loc.OffsetM)
	}
	ref := strings.TrimSpace(loc.Ref)
	if ref == "" {
		return models.Position{}, fmt.Errorf("%w: empty location", models.ErrNotFound)
	}
	if w, ok := t.wpByID[ref]; ok {
		return models.Position{Segment: w.Segment, OffsetM: w.OffsetM}, nil
	}
	if i := strings.LastIndexByte(ref, ':'); i > 0 {
		off, err := strconv.ParseFloat(strings.TrimSpace(ref[i+1:]), 64)
		if err != nil {
			return models.Position{}, fmt.Errorf("%w: bad offset in %q", models.ErrNotFound, ref)
		}
		return t.position(strings.TrimSpace(ref[:i]), off)
	}
	return t.position(ref, 0)
}

func (t *Topology) position(segmentID string, offset float64) (models.Position, error) {
	s, ok := t.segByID[segmentID]
	if !ok {
		return models.Position{}, fmt.Errorf("%w: segment %q", models.ErrNotFound, segmentID)
	}
	if math.IsNaN(offset) || offset < 0 || offset > s.LengthM {
		return models.Position{}, fmt.Errorf("%w: offset %v outside segment %q (0..%v)", models.ErrNotFound, offset, s.ID, s.LengthM)
	}
	return models.Position{Segment: s.ID, OffsetM: offset}, nil
}

// SegmentContaining returns the segment a location lies on.
func (t *Topology) SegmentContaining(loc models.Location) (models.TrackSegment, error) {
	pos, err := t.Resolve(loc)
	if err != nil {
		return models.TrackSegment{}, err
	}
	return t.segByID[pos.Segment], nil
}

// NextSignal finds the nearest signal at or ahead of pos, looking at the
// current segment first and then one junction further.
func (t *Topology) NextSignal(pos models.Position) (models.Waypoint, bool) {
	for _, sig := range t.signals[pos.Segment] {
		if sig.OffsetM >= pos.OffsetM {
			return sig, true
		}
	}
	var (
		best     models.Waypoint
		bestDist = math.Inf(1)
	)
	seg, ok := t.segByID[pos.Segment]
	if !ok {
		return models.Waypoint{}, false
	}
	remaining := seg.LengthM - pos.OffsetM
	for _, next := range t.outgoing[seg.To] {
		sigs := t.signals[next.ID]
		if len(sigs) == 0 {
			continue
		}
		if d := remaining + sigs[0].OffsetM; d < bestDist || (d == bestDist && sigs[0].ID < best.ID) {
			best, bestDist = sigs[0], d
		}
	}
	return best, !math.IsInf(bestDist, 1)
}
