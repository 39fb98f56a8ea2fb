package conflict

import (
	"math"

	"TrainCtl/internal/domain/models"
)

// Network is the part of the topology the detector reads.
type Network interface {
	Resolve(loc models.Location) (models.Position, error)
	Segment(id string) (models.TrackSegment, bool)
	Outgoing(junction string) []models.TrackSegment
}

// metresPerMinute converts km/h.
func metresPerMinute(kmh float64) float64 { return kmh * 1000 / 60 }

// effectiveSpeed caps the reported speed at the segment limit.
func effectiveSpeed(reported float64, seg models.TrackSegment) float64 {
	if seg.MaxSpeedKmh > 0 && reported > seg.MaxSpeedKmh {
		return seg.MaxSpeedKmh
	}
	return reported
}

// Project extrapolates the resources a train holds over the next horizon
// minutes. A stationary train holds its segment for the whole horizon. A
// moving train follows its route, or the only exit of each junction, and
// stops projecting at a branch it has no route for.
func Project(net Network, st models.TrainState, pos models.Position, horizon float64, maxHops int) []models.Occupancy {
	seg, ok := net.Segment(pos.Segment)
	if !ok || horizon <= 0 {
		return nil
	}
	if st.Stationary() {
		return []models.Occupancy{{
			Resource: models.Resource{Kind: models.ResourceSegment, ID: seg.ID},
			Start:    0,
			End:      horizon,
		}}
	}

	route := st.Route
	if len(route) > 0 && route[0] == seg.ID {
		route = route[1:]
	}

	var (
		out    []models.Occupancy
		now    float64
		offset = pos.OffsetM
	)
	for hop := 0; hop < maxHops; hop++ {
		speed := metresPerMinute(effectiveSpeed(st.SpeedKmh, seg))
		exit := now + (seg.LengthM-offset)/speed
		out = append(out, models.Occupancy{
			Resource: models.Resource{Kind: models.ResourceSegment, ID: seg.ID},
			Start:    now,
			End:      math.Min(exit, horizon),
		})
		if exit >= horizon {
			break
		}
		out = append(out, models.Occupancy{
			Resource: models.Resource{Kind: models.ResourceJunction, ID: seg.To},
			Start:    exit,
			End:      exit,
		})

		next, rest, ok := nextSegment(net, seg, route)
		if !ok {
			break
		}
		seg, route, offset, now = next, rest, 0, exit
	}
	return out
}

func nextSegment(net Network, seg models.TrackSegment, route []string) (models.TrackSegment, []string, bool) {
	exits := net.Outgoing(seg.To)
	if len(route) > 0 {
		for _, s := range exits {
			if s.ID == route[0] {
				return s, route[1:], true
			}
		}
		return models.TrackSegment{}, nil, false
	}
	if len(exits) == 1 {
		return exits[0], nil, true
	}
	return models.TrackSegment{}, nil, false
}
