package service

import (
	"TrainCtl/internal/domain/models"
)

// ConflictDetector projects every train in a snapshot and reports unsafe pairs.
// Implementations must be pure: same snapshot in, same result out.
type ConflictDetector interface {
	Detect(snap models.Snapshot) models.DetectionResult
}

// DecisionMaker recommends an action for one train given the current conflicts.
type DecisionMaker interface {
	Decide(trainID string, snap models.Snapshot, conflicts []models.Conflict) (models.Decision, error)
}
