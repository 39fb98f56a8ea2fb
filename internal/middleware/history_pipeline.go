package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"TrainCtl/internal/domain/models"
	domrepo "TrainCtl/internal/domain/repository"
	"TrainCtl/pkg/logger"

	"github.com/google/uuid"
)

// ErrPipelineClosed is returned by Submit after Stop.
var ErrPipelineClosed = errors.New("history pipeline closed")

// HistoryPipeline sits between ingestion and the history store. It
// validates and throttles records, batches them, and retries failed writes
// in the background so a slow or absent store never blocks a status report.
type HistoryPipeline struct {
	store   domrepo.History
	metrics domrepo.Metrics
	log     *logger.Logger

	maxRPS        int
	bufSize       int
	batchSize     int
	flushInterval time.Duration
	maxRetries    int

	in       chan models.HistoryRecord
	done     chan struct{}
	mu       sync.Mutex
	started  bool
	closed   bool
	lastSeen map[string]time.Time // per-train last accepted status record
	now      func() time.Time
}

type PipelineOption func(*HistoryPipeline)

// WithMaxRPS caps status records per second per train. Decisions are
// never throttled.
func WithMaxRPS(n int) PipelineOption {
	return func(p *HistoryPipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets how many records may wait for the store.
func WithBufferSize(n int) PipelineOption {
	return func(p *HistoryPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithBatch sets the batch size and the longest a partial batch waits.
func WithBatch(size int, interval time.Duration) PipelineOption {
	return func(p *HistoryPipeline) {
		if size > 0 {
			p.batchSize = size
		}
		if interval > 0 {
			p.flushInterval = interval
		}
	}
}

// WithMaxRetries sets how often a failed batch is retried before it is dropped.
func WithMaxRetries(n int) PipelineOption {
	return func(p *HistoryPipeline) {
		if n >= 0 {
			p.maxRetries = n
		}
	}
}

// WithPipelineLogger sets the logger.
func WithPipelineLogger(l *logger.Logger) PipelineOption {
	return func(p *HistoryPipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// NewHistoryPipeline creates a new pipeline. Call Start before Submit.
func NewHistoryPipeline(store domrepo.History, metrics domrepo.Metrics, opts ...PipelineOption) *HistoryPipeline {
	p := &HistoryPipeline{
		store:         store,
		metrics:       metrics,
		log:           logger.Nop(),
		maxRPS:        20,
		bufSize:       1000,
		batchSize:     500,
		flushInterval: time.Second,
		maxRetries:    3,
		done:          make(chan struct{}),
		lastSeen:      make(map[string]time.Time),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.in = make(chan models.HistoryRecord, p.bufSize)
	p.log = p.log.With(logger.String("component", "history_pipeline"))
	return p
}

// Start launches the background writer.
func (p *HistoryPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.closed {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.run(ctx)
}

// Stop flushes what is buffered and waits for the writer until ctx expires.
func (p *HistoryPipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	started := p.started
	close(p.in)
	p.mu.Unlock()

	if !started {
		return nil
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("history pipeline stop: %w", ctx.Err())
	}
}

// Submit validates, throttles and enqueues rec without blocking. A full
// buffer drops the record and counts it.
func (p *HistoryPipeline) Submit(rec models.HistoryRecord) error {
	if err := validateRecord(rec); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if rec.EventID == "" {
		rec.EventID = uuid.New().String()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPipelineClosed
	}
	if rec.Kind == models.HistoryStatus && !p.allow(rec.TrainID, p.now()) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	select {
	case p.in <- rec:
		return nil
	default:
		p.metrics.RecordError("pipeline_buffer_full")
		return nil
	}
}

// Pending returns how many records wait in the buffer.
func (p *HistoryPipeline) Pending() int {
	return len(p.in)
}

func (p *HistoryPipeline) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()
	batch := make([]models.HistoryRecord, 0, p.batchSize)

	for {
		select {
		case rec, ok := <-p.in:
			if !ok {
				p.flush(ctx, batch)
				return
			}
			batch = append(batch, rec)
			if len(batch) >= p.batchSize {
				p.flush(ctx, batch)
				batch = make([]models.HistoryRecord, 0, p.batchSize)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				p.flush(ctx, batch)
				batch = make([]models.HistoryRecord, 0, p.batchSize)
			}
		}
	}
}

// flush writes one batch with exponential backoff, dropping it after
// maxRetries failed retries.
func (p *HistoryPipeline) flush(ctx context.Context, batch []models.HistoryRecord) {
	if len(batch) == 0 {
		return
	}
	start := time.Now()
	backoff := 50 * time.Millisecond
	for attempt := 0; ; attempt++ {
		err := p.store.StoreBatch(ctx, batch)
		if err == nil {
			p.metrics.RecordLatency("history_flush", time.Since(start).Seconds())
			return
		}
		p.metrics.RecordError("pipeline_flush")
		if attempt >= p.maxRetries || ctx.Err() != nil {
			p.metrics.RecordError("pipeline_batch_drop")
			p.log.Error("history batch dropped",
				logger.Int("records", len(batch)),
				logger.Int("attempts", attempt+1),
				logger.Error(err),
			)
			return
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
}

func validateRecord(rec models.HistoryRecord) error {
	if rec.TrainID == "" {
		return fmt.Errorf("%w: history record without train id", models.ErrInvalidReport)
	}
	if rec.Timestamp.IsZero() {
		return fmt.Errorf("%w: history record without timestamp", models.ErrInvalidReport)
	}
	if rec.Kind != models.HistoryStatus && rec.Kind != models.HistoryDecision {
		return fmt.Errorf("%w: unknown history kind %q", models.ErrInvalidReport, rec.Kind)
	}
	return nil
}

// allow admits at most maxRPS status records per second per train.
// Caller holds p.mu.
func (p *HistoryPipeline) allow(trainID string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	last, ok := p.lastSeen[trainID]
	if ok && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[trainID] = now
	return true
}
