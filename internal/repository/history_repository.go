package repository

import (
	"context"
	"fmt"
	"time"

	"TrainCtl/internal/domain/models"
	"TrainCtl/internal/domain/repository"
	pkgch "TrainCtl/pkg/clickhouse"
)

const historyColumns = "event_id, kind, train_id, ts, location, speed_kmh, status, delay_minutes, action, reason, impact_minutes"

// ClickHouseHistory implements History for ClickHouse.
type ClickHouseHistory struct {
	client *pkgch.Client
	table  string
}

// NewClickHouseHistory creates the history store. Table defaults to
// train_history.
func NewClickHouseHistory(client *pkgch.Client, table string) repository.History {
	if table == "" {
		table = "train_history"
	}
	return &ClickHouseHistory{client: client, table: table}
}

// Init creates the history table. ReplacingMergeTree on event_id keeps
// retried batches idempotent.
func (s *ClickHouseHistory) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, historySchema(s.table))
}

func historySchema(table string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	event_id String,
	kind LowCardinality(String),
	train_id String,
	ts DateTime64(3, 'UTC'),
	location String,
	speed_kmh Float64,
	status LowCardinality(String),
	delay_minutes Int32,
	action LowCardinality(String),
	reason String,
	impact_minutes Float64
) ENGINE = ReplacingMergeTree
ORDER BY (train_id, ts, event_id)
TTL toDateTime(ts) + INTERVAL 90 DAY`, table),
	}
}

func (s *ClickHouseHistory) Store(ctx context.Context, rec models.HistoryRecord) error {
	return s.StoreBatch(ctx, []models.HistoryRecord{rec})
}

func (s *ClickHouseHistory) StoreBatch(ctx context.Context, recs []models.HistoryRecord) error {
	rows := historyRows(recs)
	if len(rows) == 0 {
		return nil
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table, historyColumns)
	if err := s.client.InsertRows(ctx, q, rows); err != nil {
		return fmt.Errorf("store %d history records: %w", len(rows), err)
	}
	return nil
}

// historyRows skips records that could never be queried back.
func historyRows(recs []models.HistoryRecord) [][]interface{} {
	rows := make([][]interface{}, 0, len(recs))
	for _, r := range recs {
		if r.TrainID == "" || r.Timestamp.IsZero() {
			continue
		}
		rows = append(rows, []interface{}{
			r.EventID,
			string(r.Kind),
			r.TrainID,
			r.Timestamp.UTC(),
			r.Location,
			r.SpeedKmh,
			r.Status,
			int32(r.Delay),
			r.Action,
			r.Reason,
			r.Impact,
		})
	}
	return rows
}

// Query returns the newest records for trainID, newest first.
func (s *ClickHouseHistory) Query(ctx context.Context, trainID string, limit int) ([]models.HistoryRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE train_id = ? ORDER BY ts DESC LIMIT ?", historyColumns, s.table)
	rows, err := s.client.DB().QueryContext(ctx, q, trainID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history for %s: %w", trainID, err)
	}
	defer rows.Close()

	var out []models.HistoryRecord
	for rows.Next() {
		var (
			r     models.HistoryRecord
			kind  string
			ts    time.Time
			delay int32
		)
		if err := rows.Scan(&r.EventID, &kind, &r.TrainID, &ts, &r.Location, &r.SpeedKmh,
			&r.Status, &delay, &r.Action, &r.Reason, &r.Impact); err != nil {
			return nil, err
		}
		r.Kind = models.HistoryKind(kind)
		r.Timestamp = ts.UTC()
		r.Delay = int(delay)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *ClickHouseHistory) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *ClickHouseHistory) Close() error {
	return nil // client is owned by the caller
}
