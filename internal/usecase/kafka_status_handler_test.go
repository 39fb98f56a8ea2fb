package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"TrainCtl/internal/domain/models"
	pkgkafka "TrainCtl/pkg/kafka"
)

type reporterFunc func(ctx context.Context, r models.StatusReport) error

func (f reporterFunc) ReportStatus(ctx context.Context, r models.StatusReport) error { return f(ctx, r) }

func TestKafkaStatusHandlerDecodes(t *testing.T) {
	var got models.StatusReport
	h := NewKafkaStatusHandler("train.status", reporterFunc(func(_ context.Context, r models.StatusReport) error {
		got = r
		return nil
	}), nil, nil)

	payload := `{"train_id":"T-101","current_location":"S5:100","speed_kmh":60,"timestamp":"2024-10-10T10:00:00Z"}`
	if err := h.Handle(context.Background(), []byte(payload)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	want := time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC)
	if got.TrainID != "T-101" || got.Location.Ref != "S5:100" || !got.Timestamp.Equal(want) || got.Status != "On Time" {
		t.Fatalf("unexpected report %+v", got)
	}
}

func TestKafkaStatusHandlerErrors(t *testing.T) {
	stale := reporterFunc(func(context.Context, models.StatusReport) error {
		return &models.StaleReportError{TrainID: "T-101"}
	})
	h := NewKafkaStatusHandler("train.status", stale, nil, nil)
	valid := []byte(`{"train_id":"T-101","current_location":"S5"}`)
	if err := h.Handle(context.Background(), valid); err != nil {
		t.Fatalf("stale reports are acknowledged, got %v", err)
	}

	permanent := map[string]string{
		"bad json":      `{"train_id":`,
		"missing train": `{"current_location":"S5"}`,
		"bad timestamp": `{"train_id":"T-1","current_location":"S5","timestamp":"yesterday"}`,
	}
	for name, payload := range permanent {
		var perm *pkgkafka.PermanentError
		if err := h.Handle(context.Background(), []byte(payload)); !errors.As(err, &perm) {
			t.Fatalf("%s: expected permanent error, got %v", name, err)
		}
	}

	transient := errors.New("store unavailable")
	h = NewKafkaStatusHandler("train.status", reporterFunc(func(context.Context, models.StatusReport) error {
		return transient
	}), nil, nil)
	if err := h.Handle(context.Background(), valid); !errors.Is(err, transient) {
		t.Fatalf("transient errors are retried, got %v", err)
	}
}
