package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrStaleReport   = errors.New("stale report")
	ErrUnknownTrain  = errors.New("unknown train")
	ErrDataQuality   = errors.New("data quality")
	ErrTopologyLoad  = errors.New("topology load")
	ErrNotFound      = errors.New("not found")
	ErrUnreachable   = errors.New("unreachable")
	ErrInvalidReport = errors.New("invalid report")
)

// StaleReportError is returned when a report is not newer than the stored state.
type StaleReportError struct {
	TrainID  string
	Stored   time.Time
	Reported time.Time
}

func (e *StaleReportError) Error() string {
	return fmt.Sprintf("stale report for %s: reported %s, stored %s",
		e.TrainID, e.Reported.Format(time.RFC3339Nano), e.Stored.Format(time.RFC3339Nano))
}

func (e *StaleReportError) Is(target error) bool { return target == ErrStaleReport }

// TopologyLoadError wraps every failure raised while building a topology.
type TopologyLoadError struct {
	Source string
	Err    error
}

func (e *TopologyLoadError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("topology load: %v", e.Err)
	}
	return fmt.Sprintf("topology load %s: %v", e.Source, e.Err)
}

func (e *TopologyLoadError) Unwrap() error { return e.Err }

func (e *TopologyLoadError) Is(target error) bool { return target == ErrTopologyLoad }

// UnknownTrainError names the train that has no recorded state.
func UnknownTrainError(trainID string) error {
	return fmt.Errorf("%w: %s", ErrUnknownTrain, trainID)
}
