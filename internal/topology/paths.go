package topology

import (
	"fmt"
	"math"

	"TrainCtl/internal/domain/models"
)

// computeDistances runs Floyd-Warshall over junctions. Networks are small and
// static, so the full table is built once at load time.
func (t *Topology) computeDistances() {
	dist := make(map[string]map[string]float64, len(t.junctions))
	for _, i := range t.junctions {
		dist[i] = make(map[string]float64, len(t.junctions))
		for _, j := range t.junctions {
			dist[i][j] = math.Inf(1)
		}
		dist[i][i] = 0
	}
	for _, s := range t.segments {
		if s.LengthM < dist[s.From][s.To] {
			dist[s.From][s.To] = s.LengthM
		}
	}
	for _, k := range t.junctions {
		for _, i := range t.junctions {
			dik := dist[i][k]
			if math.IsInf(dik, 1) {
				continue
			}
			for _, j := range t.junctions {
				if d := dik + dist[k][j]; d < dist[i][j] {
					dist[i][j] = d
				}
			}
		}
	}
	t.dist = dist
}

// JunctionDistance is the shortest travel distance between two junctions.
func (t *Topology) JunctionDistance(from, to string) (float64, error) {
	row, ok := t.dist[from]
	if !ok {
		return 0, fmt.Errorf("%w: junction %q", models.ErrNotFound, from)
	}
	d, ok := row[to]
	if !ok {
		return 0, fmt.Errorf("%w: junction %q", models.ErrNotFound, to)
	}
	if math.IsInf(d, 1) {
		return 0, fmt.Errorf("%w: no path from junction %q to %q", models.ErrUnreachable, from, to)
	}
	return d, nil
}

// Distance is the travel distance in metres from a to b in the direction of
// travel.
func (t *Topology) Distance(a, b models.Position) (float64, error) {
	sa, ok := t.segByID[a.Segment]
	if !ok {
		return 0, fmt.Errorf("%w: segment %q", models.ErrNotFound, a.Segment)
	}
	sb, ok := t.segByID[b.Segment]
	if !ok {
		return 0, fmt.Errorf("%w: segment %q", models.ErrNotFound, b.Segment)
	}
	if a.Segment == b.Segment && b.OffsetM >= a.OffsetM {
		return b.OffsetM - a.OffsetM, nil
	}
	between, err := t.JunctionDistance(sa.To, sb.From)
	if err != nil {
		return 0, err
	}
	return (sa.LengthM - a.OffsetM) + between + b.OffsetM, nil
}
