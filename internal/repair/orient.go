package repair

import (
	"github.com/paulmach/orb"

	"github.com/roach88/geosafe/internal/ir"
)

// OrientRings returns a copy of g with every polygon ring closed, repeated
// consecutive points removed, shells counter-clockwise and holes clockwise.
// Non-polygonal geometries are returned unchanged.
func OrientRings(g ir.Geometry) ir.Geometry {
	out := g.Clone()
	switch v := out.Orb().(type) {
	case orb.Polygon:
		orientPolygon(v)
	case orb.MultiPolygon:
		for _, p := range v {
			orientPolygon(p)
		}
	}
	return out
}

func orientPolygon(p orb.Polygon) {
	for i, ring := range p {
		ring = dedupe(ring)
		if len(ring) == 0 {
			p[i] = ring
			continue
		}
		if ring[0] != ring[len(ring)-1] {
			ring = append(ring, ring[0])
		}
		o := ring.Orientation()
		if (i == 0 && o == orb.CW) || (i > 0 && o == orb.CCW) {
			ring.Reverse()
		}
		p[i] = ring
	}
}

func dedupe(r orb.Ring) orb.Ring {
	out := make(orb.Ring, 0, len(r))
	for i, c := range r {
		if i > 0 && c == r[i-1] {
			continue
		}
		out = append(out, c)
	}
	return out
}
