package repository

import (
	"context"

	"TrainCtl/internal/domain/models"
)

type StateStore interface {
	Update(state models.TrainState) error // models.ErrStaleReport unless strictly newer
	Get(trainID string) (models.TrainState, bool)
	Snapshot() models.Snapshot
	Version() uint64
	Len() int
}

// StateMirror persists accepted states outside the process so a restart can
// warm the store.
type StateMirror interface {
	Save(ctx context.Context, state models.TrainState) error
	LoadAll(ctx context.Context) ([]models.TrainState, error)
	Close() error
}

type History interface {
	Init(ctx context.Context) error // ensure tables
	Store(ctx context.Context, rec models.HistoryRecord) error
	StoreBatch(ctx context.Context, recs []models.HistoryRecord) error
	Query(ctx context.Context, trainID string, limit int) ([]models.HistoryRecord, error)
	Health(ctx context.Context) error
	Close() error
}

type DecisionPublisher interface {
	Publish(ctx context.Context, evt models.DecisionEvent) error
	Close() error
}

type Metrics interface {
	RecordReport(result string)
	RecordConflicts(n int)
	RecordDecision(action string)
	RecordDataQuality(reason string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	SetTrains(n int)
}
