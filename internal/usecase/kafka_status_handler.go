package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"TrainCtl/internal/domain/models"
	domrepo "TrainCtl/internal/domain/repository"
	xhttp "TrainCtl/pkg/http"
	pkgkafka "TrainCtl/pkg/kafka"
	"TrainCtl/pkg/logger"
	"TrainCtl/pkg/util"

	"github.com/creasty/defaults"
)

// StatusReporter is the part of the controller the consumer needs.
type StatusReporter interface {
	ReportStatus(ctx context.Context, r models.StatusReport) error
}

// KafkaStatusHandler feeds status reports from Kafka into the controller.
// Payloads use the same JSON shape as POST /api/v1/train_status.
type KafkaStatusHandler struct {
	topic    string
	reporter StatusReporter
	metrics  domrepo.Metrics
	log      *logger.Logger
}

func NewKafkaStatusHandler(topic string, reporter StatusReporter, metrics domrepo.Metrics, l *logger.Logger) *KafkaStatusHandler {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if l == nil {
		l = logger.Nop()
	}
	return &KafkaStatusHandler{topic: topic, reporter: reporter, metrics: metrics, log: l}
}

func (h *KafkaStatusHandler) Topic() string { return h.topic }

// Handle acks stale reports; a replayed partition is not an error. Payloads
// that can never succeed are returned as permanent so they skip retries.
func (h *KafkaStatusHandler) Handle(ctx context.Context, b []byte) error {
	var req models.StatusReportRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode status report: %w", err))
	}
	if err := defaults.Set(&req); err != nil {
		return pkgkafka.Permanent(err)
	}
	if err := xhttp.Validate(&req); err != nil {
		h.metrics.RecordError("consumer_validate")
		return pkgkafka.Permanent(fmt.Errorf("%w: %v", models.ErrInvalidReport, xhttp.ValidationErrors(err)))
	}

	var ts time.Time
	if req.Timestamp != "" {
		parsed, ok := util.ParseTime(req.Timestamp)
		if !ok {
			h.metrics.RecordError("consumer_validate")
			return pkgkafka.Permanent(fmt.Errorf("%w: bad timestamp %q", models.ErrInvalidReport, req.Timestamp))
		}
		ts = parsed
		h.metrics.RecordLatency("ingest_e2e", time.Since(ts).Seconds())
	}

	err := h.reporter.ReportStatus(ctx, req.Report(ts))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrStaleReport):
		h.log.Debug("stale report skipped", logger.String("train_id", req.TrainID), logger.String("trace_id", pkgkafka.TraceID(ctx)))
		return nil
	case errors.Is(err, models.ErrInvalidReport):
		return pkgkafka.Permanent(err)
	default:
		return err
	}
}

var _ pkgkafka.MessageHandler = (*KafkaStatusHandler)(nil)
