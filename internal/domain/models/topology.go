package models

// WaypointType classifies fixed points on the track.
type WaypointType string

const (
	WaypointStation WaypointType = "station"
	WaypointSignal  WaypointType = "signal"
)

// TrackSegment is a directed stretch of track between two junctions.
// Trains on it travel from From towards To.
type TrackSegment struct {
	ID          string  `json:"id" yaml:"id"`
	From        string  `json:"from" yaml:"from"`
	To          string  `json:"to" yaml:"to"`
	LengthM     float64 `json:"length_m" yaml:"length_m"`
	MaxSpeedKmh float64 `json:"max_speed_kmh,omitempty" yaml:"max_speed_kmh"` // 0 = unrestricted
}

// Waypoint is a station or signal fixed on a segment.
type Waypoint struct {
	ID      string       `json:"id" yaml:"id"`
	Type    WaypointType `json:"type" yaml:"type"`
	Segment string       `json:"segment" yaml:"segment"`
	OffsetM float64      `json:"offset_m" yaml:"offset_m"`
	Name    string       `json:"name,omitempty" yaml:"name"`
}

// Position is a resolved point along a segment.
type Position struct {
	Segment string  `json:"segment"`
	OffsetM float64 `json:"offset_m"`
}

// TopologyData is the serialisable form of a network.
type TopologyData struct {
	Name      string         `json:"name" yaml:"name"`
	Segments  []TrackSegment `json:"segments" yaml:"segments"`
	Waypoints []Waypoint     `json:"waypoints" yaml:"waypoints"`
}
