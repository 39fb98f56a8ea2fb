// Package conflict finds pairs of trains projected to hold the same track
// resource too close together in time.
package conflict

import (
	"math"
	"sort"
	"time"

	"TrainCtl/internal/domain/models"
	"TrainCtl/internal/domain/service"
)

// Config tunes detection.
type Config struct {
	Horizon time.Duration // how far ahead trains are projected
	Headway time.Duration // occupancies closer than this are unsafe
	MinGap  time.Duration // floor for severity so overlaps stay finite
	MaxHops int           // segments walked per projection
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Horizon: 10 * time.Minute,
		Headway: 2 * time.Minute,
		MinGap:  time.Second,
		MaxHops: 64,
	}
}

// Detector is a pure function of (snapshot, network, config).
type Detector struct {
	net Network
	cfg Config
}

// NewDetector creates a detector. Zero config fields fall back to defaults.
func NewDetector(net Network, cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.Horizon <= 0 {
		cfg.Horizon = def.Horizon
	}
	if cfg.Headway <= 0 {
		cfg.Headway = def.Headway
	}
	if cfg.MinGap <= 0 {
		cfg.MinGap = def.MinGap
	}
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = def.MaxHops
	}
	return &Detector{net: net, cfg: cfg}
}

// Config returns the effective configuration.
func (d *Detector) Config() Config { return d.cfg }

type projected struct {
	id  string
	occ []models.Occupancy
}

// Detect projects every resolvable train and returns the conflicting pairs,
// most severe first, ties broken by train IDs.
func (d *Detector) Detect(snap models.Snapshot) models.DetectionResult {
	res := models.DetectionResult{SnapshotVersion: snap.Version, Conflicts: []models.Conflict{}}

	ids := make([]string, 0, len(snap.Trains))
	for id := range snap.Trains {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	horizon := d.cfg.Horizon.Minutes()
	trains := make([]projected, 0, len(ids))
	for _, id := range ids {
		st := snap.Trains[id]
		pos, err := d.net.Resolve(st.Location)
		if err != nil {
			res.Excluded = append(res.Excluded, models.DataQualityIssue{
				TrainID:  id,
				Location: st.Location.String(),
				Reason:   err.Error(),
			})
			continue
		}
		trains = append(trains, projected{id: id, occ: Project(d.net, st, pos, horizon, d.cfg.MaxHops)})
	}

	headway := d.cfg.Headway.Minutes()
	for i := 0; i < len(trains); i++ {
		for j := i + 1; j < len(trains); j++ {
			if c, ok := d.worst(trains[i], trains[j], headway); ok {
				res.Conflicts = append(res.Conflicts, c)
			}
		}
	}

	sort.SliceStable(res.Conflicts, func(a, b int) bool {
		ca, cb := res.Conflicts[a], res.Conflicts[b]
		if ca.Severity != cb.Severity {
			return ca.Severity > cb.Severity
		}
		if ca.TrainA != cb.TrainA {
			return ca.TrainA < cb.TrainA
		}
		return ca.TrainB < cb.TrainB
	})
	return res
}

// worst picks the single most critical shared resource for a pair: smallest
// gap, then earliest start, then resource ID. a.id sorts before b.id.
func (d *Detector) worst(a, b projected, headway float64) (models.Conflict, bool) {
	var (
		best  models.Conflict
		found bool
		start float64
	)
	for _, oa := range a.occ {
		for _, ob := range b.occ {
			if oa.Resource != ob.Resource {
				continue
			}
			lo := math.Max(oa.Start, ob.Start)
			hi := math.Min(oa.End, ob.End)
			gap := math.Max(0, lo-hi)
			if gap >= headway {
				continue
			}
			s := math.Min(oa.Start, ob.Start)
			if found && !better(gap, s, oa.Resource, best.GapMinutes, start, best.Resource) {
				continue
			}
			best = models.Conflict{
				TrainA:         a.id,
				TrainB:         b.id,
				Resource:       oa.Resource,
				EntryA:         oa.Start,
				ExitA:          oa.End,
				EntryB:         ob.Start,
				ExitB:          ob.End,
				OverlapMinutes: math.Max(0, hi-lo),
				GapMinutes:     gap,
				Severity:       1 / math.Max(gap, d.cfg.MinGap.Minutes()),
			}
			start, found = s, true
		}
	}
	return best, found
}

func better(gap, start float64, r models.Resource, bestGap, bestStart float64, bestR models.Resource) bool {
	if gap != bestGap {
		return gap < bestGap
	}
	if start != bestStart {
		return start < bestStart
	}
	if r.Kind != bestR.Kind {
		return r.Kind > bestR.Kind // segments before junctions
	}
	return r.ID < bestR.ID
}

var _ service.ConflictDetector = (*Detector)(nil)
