// Package decision turns the conflict set into a per-train recommendation.
package decision

import (
	"fmt"
	"time"

	"TrainCtl/internal/domain/models"
	"TrainCtl/internal/domain/service"
	"TrainCtl/pkg/util"
)

// Network is the part of the topology the engine reads.
type Network interface {
	Resolve(loc models.Location) (models.Position, error)
	Segment(id string) (models.TrackSegment, bool)
	NextSignal(pos models.Position) (models.Waypoint, bool)
}

// Config tunes action selection.
type Config struct {
	Headway             time.Duration // clearance added behind the other train
	ReduceSpeedMaxDelay time.Duration // longer delays become holds
	MinSpeedKmh         float64       // slowest speed worth recommending
	MinImpact           time.Duration // floor for a yielding train's impact
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Headway:             2 * time.Minute,
		ReduceSpeedMaxDelay: 3 * time.Minute,
		MinSpeedKmh:         10,
		MinImpact:           6 * time.Second,
	}
}

// Engine is deterministic: identical inputs give identical decisions.
type Engine struct {
	net        Network
	priorities PriorityTable
	cfg        Config
}

// NewEngine creates a decision engine.
func NewEngine(net Network, priorities PriorityTable, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.Headway <= 0 {
		cfg.Headway = def.Headway
	}
	if cfg.ReduceSpeedMaxDelay <= 0 {
		cfg.ReduceSpeedMaxDelay = def.ReduceSpeedMaxDelay
	}
	if cfg.MinSpeedKmh <= 0 {
		cfg.MinSpeedKmh = def.MinSpeedKmh
	}
	if cfg.MinImpact <= 0 {
		cfg.MinImpact = def.MinImpact
	}
	if priorities.Ranks == nil {
		priorities = DefaultPriorityTable()
	}
	return &Engine{net: net, priorities: priorities, cfg: cfg}
}

// Priorities exposes the table in use.
func (e *Engine) Priorities() PriorityTable { return e.priorities }

// Decide recommends an action for trainID based on its most severe conflict.
func (e *Engine) Decide(trainID string, snap models.Snapshot, conflicts []models.Conflict) (models.Decision, error) {
	self, ok := snap.Get(trainID)
	if !ok {
		return models.Decision{}, models.UnknownTrainError(trainID)
	}
	dec := models.Decision{TrainID: trainID, SnapshotVersion: snap.Version}

	c, ok := mostSevere(trainID, conflicts)
	if !ok {
		dec.Action = models.ActionMaintainSpeed
		dec.Reason = models.ReasonClear
		return dec, nil
	}
	dec.Conflict = &c

	other, selfEntry, selfExit, otherEntry, otherExit := c.Other(trainID)
	otherState := snap.Trains[other]
	where := c.Resource.String()

	yields, reason := e.arbitrate(
		side{id: trainID, state: self, entry: selfEntry, exit: selfExit},
		side{id: other, state: otherState, entry: otherEntry, exit: otherExit},
		where,
	)
	dec.Reason = reason
	if !yields {
		dec.Action = models.ActionMaintainSpeed
		return dec, nil
	}

	delay := otherExit + e.cfg.Headway.Minutes() - selfEntry
	if floor := e.cfg.MinImpact.Minutes(); delay < floor {
		delay = floor
	}
	dec.EstimatedImpactMinutes = util.Round(delay, 2)

	pos, posErr := e.net.Resolve(self.Location)
	if !self.Stationary() && selfEntry > 0 && delay <= e.cfg.ReduceSpeedMaxDelay.Minutes() {
		// entry times were projected at the capped speed, so scale that one
		speed := self.SpeedKmh
		if posErr == nil {
			if seg, ok := e.net.Segment(pos.Segment); ok && seg.MaxSpeedKmh > 0 && speed > seg.MaxSpeedKmh {
				speed = seg.MaxSpeedKmh
			}
		}
		target := speed * selfEntry / (selfEntry + delay)
		if target >= e.cfg.MinSpeedKmh {
			dec.Action = models.ActionReduceSpeed
			dec.TargetSpeedKmh = util.Round(target, 1)
			return dec, nil
		}
	}

	dec.Action = models.ActionHoldAtSignal
	if posErr == nil {
		if sig, ok := e.net.NextSignal(pos); ok {
			dec.HoldSignalID = sig.ID
			dec.Reason = fmt.Sprintf("hold at signal %s: %s", sig.ID, dec.Reason)
		}
	}
	return dec, nil
}

// side is one train's view of a contested resource.
type side struct {
	id          string
	state       models.TrainState
	entry, exit float64
}

// stopped reports whether the train stands on the resource already.
func (s side) stopped() bool { return s.state.Stationary() && s.entry == 0 }

// arbitrate decides whether self yields to other and explains why. A train
// standing on the resource is an obstacle and never yields to a mover. Then
// the lower rank yields. On equal rank the later entry yields, then the
// later exit (the train behind on a shared segment), then the larger ID.
func (e *Engine) arbitrate(self, other side, where string) (bool, string) {
	switch {
	case other.stopped() && !self.stopped():
		return true, fmt.Sprintf("stopped train %s blocks %s", other.id, where)
	case self.stopped() && !other.stopped():
		return false, fmt.Sprintf("stopped on %s, %s must wait", where, other.id)
	}

	selfRank, otherRank := e.priorities.Rank(self.state), e.priorities.Rank(other.state)
	switch {
	case selfRank > otherRank:
		return false, fmt.Sprintf("priority over %s on %s", other.id, where)
	case selfRank < otherRank:
		return true, fmt.Sprintf("conflict with %s train %s on %s", e.priorities.Class(other.state), other.id, where)
	}

	switch {
	case self.entry != other.entry:
		if self.entry < other.entry {
			return false, fmt.Sprintf("reaches %s before %s", where, other.id)
		}
		return true, fmt.Sprintf("%s reaches %s first", other.id, where)
	case self.exit != other.exit:
		if self.exit < other.exit {
			return false, fmt.Sprintf("ahead of %s on %s", other.id, where)
		}
		return true, fmt.Sprintf("%s is ahead on %s", other.id, where)
	case self.id < other.id:
		return false, fmt.Sprintf("keeps %s over %s on train id", where, other.id)
	default:
		return true, fmt.Sprintf("%s keeps %s on train id", other.id, where)
	}
}

// mostSevere returns the first conflict with the highest severity that
// involves trainID. Input order decides ties.
func mostSevere(trainID string, conflicts []models.Conflict) (models.Conflict, bool) {
	var (
		best  models.Conflict
		found bool
	)
	for _, c := range conflicts {
		if !c.Involves(trainID) {
			continue
		}
		if !found || c.Severity > best.Severity {
			best, found = c, true
		}
	}
	return best, found
}

var _ service.DecisionMaker = (*Engine)(nil)
