package models

import "time"

// Action is the recommendation issued to a train.
type Action string

const (
	ActionMaintainSpeed Action = "MaintainSpeed"
	ActionReduceSpeed   Action = "ReduceSpeed"
	ActionHoldAtSignal  Action = "HoldAtSignal"
)

// ReasonClear is used when no conflict involves the train.
const ReasonClear = "clear"

// Decision is the engine's recommendation for one train.
type Decision struct {
	TrainID                string    `json:"train_id"`
	Action                 Action    `json:"action"`
	Reason                 string    `json:"reason"`
	EstimatedImpactMinutes float64   `json:"estimated_impact_minutes"`
	TargetSpeedKmh         float64   `json:"target_speed_kmh,omitempty"`
	HoldSignalID           string    `json:"hold_signal_id,omitempty"`
	Conflict               *Conflict `json:"conflict,omitempty"`
	SnapshotVersion        uint64    `json:"snapshot_version"`
}

// DecisionEvent is what gets published and streamed once a decision is issued.
type DecisionEvent struct {
	Decision Decision  `json:"decision"`
	IssuedAt time.Time `json:"issued_at"`
}

// HistoryKind tags a history record.
type HistoryKind string

const (
	HistoryStatus   HistoryKind = "status"
	HistoryDecision HistoryKind = "decision"
)

// HistoryRecord is one row of the per-train audit trail.
type HistoryRecord struct {
	EventID   string      `json:"event_id"`
	Kind      HistoryKind `json:"kind"`
	TrainID   string      `json:"train_id"`
	Timestamp time.Time   `json:"timestamp"`
	Location  string      `json:"location,omitempty"`
	SpeedKmh  float64     `json:"speed_kmh,omitempty"`
	Status    string      `json:"status,omitempty"`
	Delay     int         `json:"delay_minutes,omitempty"`
	Action    string      `json:"action,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Impact    float64     `json:"impact_minutes,omitempty"`
}
