package models

// ResourceKind distinguishes contested track resources.
type ResourceKind string

const (
	ResourceSegment  ResourceKind = "segment"
	ResourceJunction ResourceKind = "junction"
)

// Resource identifies a segment or junction two trains compete for.
type Resource struct {
	Kind ResourceKind `json:"kind"`
	ID   string       `json:"id"`
}

func (r Resource) String() string { return string(r.Kind) + " " + r.ID }

// Occupancy is the projected window, in minutes from now, during which a
// train holds a resource.
type Occupancy struct {
	Resource Resource `json:"resource"`
	Start    float64  `json:"start_min"`
	End      float64  `json:"end_min"`
}

// Conflict is an unsafe pair of occupancies. TrainA always sorts before
// TrainB so each pair is reported exactly once.
type Conflict struct {
	TrainA         string   `json:"train_a"`
	TrainB         string   `json:"train_b"`
	Resource       Resource `json:"resource"`
	EntryA         float64  `json:"entry_a_min"`
	ExitA          float64  `json:"exit_a_min"`
	EntryB         float64  `json:"entry_b_min"`
	ExitB          float64  `json:"exit_b_min"`
	OverlapMinutes float64  `json:"overlap_minutes"`
	GapMinutes     float64  `json:"gap_minutes"`
	Severity       float64  `json:"severity"`
}

// Involves reports whether trainID is one side of the conflict.
func (c Conflict) Involves(trainID string) bool {
	return c.TrainA == trainID || c.TrainB == trainID
}

// Other returns the opposing train and both occupancy windows from the
// perspective of trainID.
func (c Conflict) Other(trainID string) (other string, selfEntry, selfExit, otherEntry, otherExit float64) {
	if c.TrainA == trainID {
		return c.TrainB, c.EntryA, c.ExitA, c.EntryB, c.ExitB
	}
	return c.TrainA, c.EntryB, c.ExitB, c.EntryA, c.ExitA
}

// DataQualityIssue describes a train excluded from detection.
type DataQualityIssue struct {
	TrainID  string `json:"train_id"`
	Location string `json:"location"`
	Reason   string `json:"reason"`
}

func (d DataQualityIssue) Error() string {
	return "data quality: train " + d.TrainID + " at " + d.Location + ": " + d.Reason
}

func (d DataQualityIssue) Is(target error) bool { return target == ErrDataQuality }

// DetectionResult is the output of one detection pass.
type DetectionResult struct {
	SnapshotVersion uint64             `json:"snapshot_version"`
	Conflicts       []Conflict         `json:"conflicts"`
	Excluded        []DataQualityIssue `json:"excluded,omitempty"`
}
