package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"TrainCtl/internal/domain/models"
	domrepo "TrainCtl/internal/domain/repository"
	domsvc "TrainCtl/internal/domain/service"
	"TrainCtl/pkg/cache"
	"TrainCtl/pkg/logger"

	"github.com/google/uuid"
)

const decisionKeyPrefix = "decision"

// ErrHistoryDisabled is returned by History when no history store is wired.
var ErrHistoryDisabled = errors.New("history store disabled")

// HistorySink accepts audit records without blocking the caller.
type HistorySink interface {
	Submit(rec models.HistoryRecord) error
}

// Broadcaster fans issued decisions out to live subscribers.
type Broadcaster interface {
	Publish(evt models.DecisionEvent)
}

// Network is the read-only topology view the controller exposes.
type Network interface {
	Data() models.TopologyData
}

// TrafficController is the single entry point for status ingestion and
// decision queries, whatever transport they arrive on.
type TrafficController struct {
	net      Network
	store    domrepo.StateStore
	detector domsvc.ConflictDetector
	engine   domsvc.DecisionMaker

	mirror      domrepo.StateMirror
	history     domrepo.History
	sink        HistorySink
	publisher   domrepo.DecisionPublisher
	broadcaster Broadcaster
	cache       cache.Service
	decisionTTL time.Duration
	// store versions are process-local, so cache keys carry the process
	instance    string

	metrics domrepo.Metrics
	log     *logger.Logger
	now     func() time.Time
}

type ControllerOption func(*TrafficController)

// WithStateMirror persists accepted states and enables WarmUp.
func WithStateMirror(m domrepo.StateMirror) ControllerOption {
	return func(c *TrafficController) { c.mirror = m }
}

// WithHistory wires the audit trail: records go out through sink and are
// read back from store.
func WithHistory(store domrepo.History, sink HistorySink) ControllerOption {
	return func(c *TrafficController) {
		c.history = store
		c.sink = sink
	}
}

func WithDecisionPublisher(p domrepo.DecisionPublisher) ControllerOption {
	return func(c *TrafficController) { c.publisher = p }
}

func WithBroadcaster(b Broadcaster) ControllerOption {
	return func(c *TrafficController) { c.broadcaster = b }
}

// WithDecisionCache caches decisions per (train, snapshot version).
func WithDecisionCache(svc cache.Service, ttl time.Duration) ControllerOption {
	return func(c *TrafficController) {
		c.cache = svc
		if ttl > 0 {
			c.decisionTTL = ttl
		}
	}
}

func WithControllerMetrics(m domrepo.Metrics) ControllerOption {
	return func(c *TrafficController) {
		if m != nil {
			c.metrics = m
		}
	}
}

func WithControllerLogger(l *logger.Logger) ControllerOption {
	return func(c *TrafficController) {
		if l != nil {
			c.log = l
		}
	}
}

// WithClock replaces the clock used to stamp reports without a timestamp.
func WithClock(now func() time.Time) ControllerOption {
	return func(c *TrafficController) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTrafficController wires the core components. Every option is optional.
func NewTrafficController(net Network, store domrepo.StateStore, detector domsvc.ConflictDetector, engine domsvc.DecisionMaker, opts ...ControllerOption) *TrafficController {
	c := &TrafficController{
		net:         net,
		store:       store,
		detector:    detector,
		engine:      engine,
		decisionTTL: 5 * time.Minute,
		instance:    uuid.NewString(),
		metrics:     nopMetrics{},
		log:         logger.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(logger.String("component", "traffic_controller"))
	return c
}

// ReportStatus validates a report and records it as the train's latest
// state. Reports not strictly newer than the stored state fail with
// models.ErrStaleReport and leave the store unchanged.
func (c *TrafficController) ReportStatus(ctx context.Context, r models.StatusReport) error {
	st, err := c.toState(r)
	if err != nil {
		c.metrics.RecordReport("invalid")
		return err
	}
	if err := c.store.Update(st); err != nil {
		if errors.Is(err, models.ErrStaleReport) {
			c.metrics.RecordReport("stale")
		} else {
			c.metrics.RecordError("state_update")
		}
		return err
	}
	c.metrics.RecordReport("accepted")
	c.metrics.SetTrains(c.store.Len())

	if c.mirror != nil {
		if err := c.mirror.Save(ctx, st); err != nil {
			c.metrics.RecordError("state_mirror")
			c.log.Warn("mirror state failed", logger.String("train_id", st.TrainID), logger.Error(err))
		}
	}
	c.record(models.HistoryRecord{
		Kind:      models.HistoryStatus,
		TrainID:   st.TrainID,
		Timestamp: st.Timestamp,
		Location:  st.Location.String(),
		SpeedKmh:  st.SpeedKmh,
		Status:    string(st.Status),
		Delay:     st.DelayMinutes,
	})
	return nil
}

func (c *TrafficController) toState(r models.StatusReport) (models.TrainState, error) {
	if r.TrainID == "" {
		return models.TrainState{}, fmt.Errorf("%w: train id required", models.ErrInvalidReport)
	}
	if r.Location.Ref == "" && r.Location.SegmentID == "" {
		return models.TrainState{}, fmt.Errorf("%w: location required for %s", models.ErrInvalidReport, r.TrainID)
	}
	if r.SpeedKmh < 0 || r.DelayMinutes < 0 {
		return models.TrainState{}, fmt.Errorf("%w: negative speed or delay for %s", models.ErrInvalidReport, r.TrainID)
	}
	status, ok := models.ParseTrainStatus(r.Status)
	if !ok {
		return models.TrainState{}, fmt.Errorf("%w: unknown status %q", models.ErrInvalidReport, r.Status)
	}
	ts := r.Timestamp
	if ts.IsZero() {
		ts = c.now()
	}
	st := models.TrainState{
		TrainID:      r.TrainID,
		Location:     r.Location,
		SpeedKmh:     r.SpeedKmh,
		Status:       status,
		DelayMinutes: r.DelayMinutes,
		Priority:     r.Priority,
		Timestamp:    ts.UTC(),
	}
	if len(r.Route) > 0 {
		st.Route = append([]string(nil), r.Route...)
	}
	return st, nil
}

// RequestDecision runs detection over a fresh snapshot and returns the
// recommendation for trainID. Decisions are deterministic per snapshot, so
// a cached one for the same snapshot version is returned as is.
func (c *TrafficController) RequestDecision(ctx context.Context, trainID string) (models.Decision, error) {
	snap := c.store.Snapshot()
	if _, ok := snap.Get(trainID); !ok {
		return models.Decision{}, models.UnknownTrainError(trainID)
	}

	key := cache.GenerateKeyWithParams(c.decisionPrefix(), trainID, snap.Version)
	if c.cache != nil {
		var cached models.Decision
		if err := c.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			c.log.Warn("decision cache read failed", logger.String("key", key), logger.Error(err))
		}
	}

	res := c.detect(snap)
	start := time.Now()
	d, err := c.engine.Decide(trainID, snap, res.Conflicts)
	if err != nil {
		c.metrics.RecordError("decide")
		return models.Decision{}, fmt.Errorf("decide %s: %w", trainID, err)
	}
	c.metrics.RecordLatency("decide", time.Since(start).Seconds())
	c.metrics.RecordDecision(string(d.Action))

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, d, c.decisionTTL); err != nil {
			c.log.Warn("decision cache write failed", logger.String("key", key), logger.Error(err))
		}
	}
	c.issue(ctx, d)
	return d, nil
}

func (c *TrafficController) issue(ctx context.Context, d models.Decision) {
	evt := models.DecisionEvent{Decision: d, IssuedAt: c.now().UTC()}
	if c.publisher != nil {
		if err := c.publisher.Publish(ctx, evt); err != nil {
			c.metrics.RecordError("decision_publish")
			c.log.Warn("publish decision failed", logger.String("train_id", d.TrainID), logger.Error(err))
		}
	}
	if c.broadcaster != nil {
		c.broadcaster.Publish(evt)
	}
	c.record(models.HistoryRecord{
		Kind:      models.HistoryDecision,
		TrainID:   d.TrainID,
		Timestamp: evt.IssuedAt,
		Action:    string(d.Action),
		Reason:    d.Reason,
		Impact:    d.EstimatedImpactMinutes,
	})
}

// Conflicts returns the full conflict set for the current snapshot.
func (c *TrafficController) Conflicts(_ context.Context) models.DetectionResult {
	return c.detect(c.store.Snapshot())
}

func (c *TrafficController) detect(snap models.Snapshot) models.DetectionResult {
	start := time.Now()
	res := c.detector.Detect(snap)
	c.metrics.RecordLatency("detect", time.Since(start).Seconds())
	c.metrics.RecordConflicts(len(res.Conflicts))
	for _, issue := range res.Excluded {
		c.metrics.RecordDataQuality(issue.Reason)
		c.log.Warn("train excluded from detection",
			logger.String("train_id", issue.TrainID),
			logger.String("location", issue.Location),
			logger.String("reason", issue.Reason),
		)
	}
	return res
}

// Trains lists every known train ordered by ID.
func (c *TrafficController) Trains(_ context.Context) []models.TrainState {
	snap := c.store.Snapshot()
	out := make([]models.TrainState, 0, len(snap.Trains))
	for _, st := range snap.Trains {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrainID < out[j].TrainID })
	return out
}

func (c *TrafficController) Train(_ context.Context, trainID string) (models.TrainState, error) {
	st, ok := c.store.Get(trainID)
	if !ok {
		return models.TrainState{}, models.UnknownTrainError(trainID)
	}
	return st, nil
}

// History returns the newest audit records of a known train.
func (c *TrafficController) History(ctx context.Context, trainID string, limit int) ([]models.HistoryRecord, error) {
	if c.history == nil {
		return nil, ErrHistoryDisabled
	}
	if _, ok := c.store.Get(trainID); !ok {
		return nil, models.UnknownTrainError(trainID)
	}
	recs, err := c.history.Query(ctx, trainID, limit)
	if err != nil {
		c.metrics.RecordError("history_query")
		return nil, fmt.Errorf("history for %s: %w", trainID, err)
	}
	if recs == nil {
		recs = []models.HistoryRecord{}
	}
	return recs, nil
}

func (c *TrafficController) Topology() models.TopologyData {
	return c.net.Data()
}

// WarmUp replays mirrored states into the store and drops decisions this
// process cached. Other processes use their own key prefix and are left
// alone; their entries expire with the TTL.
func (c *TrafficController) WarmUp(ctx context.Context) (int, error) {
	if c.cache != nil {
		if err := c.cache.DeleteByPattern(ctx, cache.BuildPattern(c.decisionPrefix()+":")); err != nil {
			c.log.Warn("clear decision cache failed", logger.Error(err))
		}
	}
	if c.mirror == nil {
		return 0, nil
	}
	states, err := c.mirror.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	// oldest first per train so Update keeps the newest state
	sort.SliceStable(states, func(i, j int) bool {
		if states[i].TrainID != states[j].TrainID {
			return states[i].TrainID < states[j].TrainID
		}
		return states[i].Timestamp.Before(states[j].Timestamp)
	})
	n := 0
	for _, st := range states {
		if err := c.store.Update(st); err != nil {
			continue
		}
		n++
	}
	c.metrics.SetTrains(c.store.Len())
	return n, nil
}

// decisionPrefix scopes cached decisions to this process. Replicas share
// the Redis layer but not store versions.
func (c *TrafficController) decisionPrefix() string {
	return decisionKeyPrefix + ":" + c.instance
}

// Ready reports whether backing stores answer.
func (c *TrafficController) Ready(ctx context.Context) error {
	if c.history != nil {
		if err := c.history.Health(ctx); err != nil {
			return fmt.Errorf("history: %w", err)
		}
	}
	return nil
}

func (c *TrafficController) record(rec models.HistoryRecord) {
	if c.sink == nil {
		return
	}
	if err := c.sink.Submit(rec); err != nil {
		c.log.Debug("history record rejected", logger.String("train_id", rec.TrainID), logger.Error(err))
	}
}

type nopMetrics struct{}

func (nopMetrics) RecordReport(string)           {}
func (nopMetrics) RecordConflicts(int)           {}
func (nopMetrics) RecordDecision(string)         {}
func (nopMetrics) RecordDataQuality(string)      {}
func (nopMetrics) RecordError(string)            {}
func (nopMetrics) RecordLatency(string, float64) {}
func (nopMetrics) SetTrains(int)                 {}
