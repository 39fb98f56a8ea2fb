package models

import (
	"strings"
	"time"
)

// TrainStatus is the operational status reported by a train.
type TrainStatus string

const (
	StatusOnTime  TrainStatus = "OnTime"
	StatusDelayed TrainStatus = "Delayed"
	StatusIdle    TrainStatus = "Idle"
	StatusHolding TrainStatus = "Holding"
)

// ParseTrainStatus accepts enum names as well as the human readable forms
// used by field reporting ("On Time", "on-time", ...).
func ParseTrainStatus(s string) (TrainStatus, bool) {
	norm := strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s))
	switch norm {
	case "ontime":
		return StatusOnTime, true
	case "delayed":
		return StatusDelayed, true
	case "idle", "stopped":
		return StatusIdle, true
	case "holding", "hold":
		return StatusHolding, true
	}
	return "", false
}

// Location is where a train reported itself. Either Ref is set (waypoint ID,
// "<segment>" or "<segment>:<offset>") or SegmentID with OffsetM.
type Location struct {
	Ref       string  `json:"ref,omitempty"`
	SegmentID string  `json:"segment_id,omitempty"`
	OffsetM   float64 `json:"offset_m,omitempty"`
}

func (l Location) String() string {
	if l.SegmentID != "" {
		return l.SegmentID
	}
	return l.Ref
}

// TrainState is the latest accepted report for one train. Values are
// replaced wholesale on every accepted update and never mutated in place.
type TrainState struct {
	TrainID      string      `json:"train_id"`
	Location     Location    `json:"location"`
	SpeedKmh     float64     `json:"speed_kmh"`
	Status       TrainStatus `json:"status"`
	DelayMinutes int         `json:"delay_minutes"`
	Priority     string      `json:"priority,omitempty"`
	Route        []string    `json:"route,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// Clone returns a deep copy so callers can hold the value past a snapshot.
func (s TrainState) Clone() TrainState {
	out := s
	if s.Route != nil {
		out.Route = append([]string(nil), s.Route...)
	}
	return out
}

// Stationary reports whether the train is not moving.
func (s TrainState) Stationary() bool { return s.SpeedKmh <= 0 }

// Snapshot is a point-in-time copy of every stored train.
type Snapshot struct {
	Version uint64                `json:"version"`
	Trains  map[string]TrainState `json:"trains"`
}

// Get returns the state for trainID.
func (s Snapshot) Get(trainID string) (TrainState, bool) {
	st, ok := s.Trains[trainID]
	return st, ok
}
