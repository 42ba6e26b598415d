// Package geosengine implements the geometry engine on GEOS through
// github.com/twpayne/go-geos.
//
// Geometries cross the boundary as GeoJSON. GEOS reports failures by
// panicking inside go-geos; every call recovers and returns the panic as an
// error so one bad record cannot stop a run.
package geosengine

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-geos"

	"github.com/roach88/geosafe/internal/geom"
	"github.com/roach88/geosafe/internal/ir"
)

// Engine is the GEOS geometry engine. It is safe for concurrent use; go-geos
// serializes access to its default context.
type Engine struct{}

var _ geom.Engine = Engine{}

// New returns a GEOS engine.
func New() Engine {
	return Engine{}
}

// Name implements geom.Engine.
func (Engine) Name() string { return "geos" }

// Check implements geom.Validator. Rings GEOS cannot even build are
// reported as invalid rather than as errors.
func (Engine) Check(g ir.Geometry) (valid bool, reason string, err error) {
	if g.IsNull() || g.IsEmpty() {
		return true, "", nil
	}
	if reason := structuralProblem(g); reason != "" {
		return false, reason, nil
	}
	err = with(func() error {
		gg, err := toGEOS(g)
		if err != nil {
			return err
		}
		defer gg.Destroy()
		valid = gg.IsValid()
		if !valid {
			reason = cleanReason(gg.IsValidReason())
		}
		return nil
	})
	return valid, reason, err
}

// BufferZero implements geom.Validator. Open rings are closed first.
func (Engine) BufferZero(g ir.Geometry) (ir.Geometry, error) {
	return unary(closeRings(g), func(gg *geos.Geom) *geos.Geom {
		return gg.Buffer(0, 8)
	})
}

// MakeValid implements geom.Validator. Open rings are closed first.
func (Engine) MakeValid(g ir.Geometry) (ir.Geometry, error) {
	return unary(closeRings(g), func(gg *geos.Geom) *geos.Geom {
		return gg.MakeValid()
	})
}

// Buffer implements geom.Engine.
func (Engine) Buffer(g ir.Geometry, distance float64, segments int) (ir.Geometry, error) {
	if segments <= 0 {
		segments = 8
	}
	return unary(g, func(gg *geos.Geom) *geos.Geom {
		return gg.Buffer(distance, segments)
	})
}

// Relate implements geom.Engine.
func (Engine) Relate(p geom.Predicate, a, b ir.Geometry, distance float64) (ok bool, err error) {
	if a.IsNull() || b.IsNull() || a.IsEmpty() || b.IsEmpty() {
		return false, nil
	}
	err = with(func() error {
		ga, err := toGEOS(a)
		if err != nil {
			return err
		}
		defer ga.Destroy()
		gb, err := toGEOS(b)
		if err != nil {
			return err
		}
		defer gb.Destroy()

		switch p {
		case geom.Intersects:
			ok = ga.Intersects(gb)
		case geom.Within:
			ok = ga.Within(gb)
		case geom.Contains:
			ok = ga.Contains(gb)
		case geom.DWithin:
			ok = ga.Distance(gb) <= distance
		default:
			return fmt.Errorf("predicate %q: %w", p, geom.ErrUnsupported)
		}
		return nil
	})
	return ok, err
}

// Overlay implements geom.Engine.
func (Engine) Overlay(how geom.OverlayHow, a, b ir.Geometry) (ir.Geometry, error) {
	var op func(x, y *geos.Geom) *geos.Geom
	switch how {
	case geom.OverlayIntersection:
		op = (*geos.Geom).Intersection
	case geom.OverlayUnion:
		op = (*geos.Geom).Union
	case geom.OverlayDifference:
		op = (*geos.Geom).Difference
	case geom.OverlaySymmetricDifference:
		op = (*geos.Geom).SymDifference
	default:
		return ir.Geometry{}, fmt.Errorf("overlay %q: %w", how, geom.ErrUnsupported)
	}
	return binary(a, b, op)
}

// Clip implements geom.Engine as the intersection with mask.
func (Engine) Clip(g, mask ir.Geometry) (ir.Geometry, error) {
	return binary(g, mask, (*geos.Geom).Intersection)
}

func unary(g ir.Geometry, op func(*geos.Geom) *geos.Geom) (out ir.Geometry, err error) {
	if g.IsNull() {
		return ir.Geometry{}, nil
	}
	if g.IsEmpty() {
		return ir.Empty(g.Type()), nil
	}
	err = with(func() error {
		gg, err := toGEOS(g)
		if err != nil {
			return err
		}
		defer gg.Destroy()
		res := op(gg)
		defer res.Destroy()
		out, err = fromGEOS(res)
		return err
	})
	return out, err
}

func binary(a, b ir.Geometry, op func(x, y *geos.Geom) *geos.Geom) (out ir.Geometry, err error) {
	if a.IsNull() || b.IsNull() {
		return ir.Geometry{}, fmt.Errorf("null operand: %w", geom.ErrUnsupported)
	}
	err = with(func() error {
		ga, err := toGEOS(a)
		if err != nil {
			return err
		}
		defer ga.Destroy()
		gb, err := toGEOS(b)
		if err != nil {
			return err
		}
		defer gb.Destroy()
		res := op(ga, gb)
		defer res.Destroy()
		out, err = fromGEOS(res)
		return err
	})
	return out, err
}

// with runs fn, turning a GEOS panic into an error.
func with(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("geos: %v", r)
		}
	}()
	return fn()
}

// cleanReason drops the coordinate suffix GEOS appends to validity reasons,
// e.g. "Self-intersection[1 1]".
func cleanReason(reason string) string {
	if i := strings.IndexByte(reason, '['); i > 0 {
		reason = reason[:i]
	}
	return strings.TrimSpace(reason)
}

// structuralProblem finds defects GEOS refuses to construct.
func structuralProblem(g ir.Geometry) string {
	switch v := g.Orb().(type) {
	case orb.LineString:
		if len(v) < 2 {
			return "Too few points"
		}
	case orb.MultiLineString:
		for _, ls := range v {
			if len(ls) < 2 {
				return "Too few points"
			}
		}
	case orb.Polygon:
		return ringProblem(v)
	case orb.MultiPolygon:
		for _, p := range v {
			if reason := ringProblem(p); reason != "" {
				return reason
			}
		}
	}
	return ""
}

func ringProblem(p orb.Polygon) string {
	for _, ring := range p {
		if len(ring) < 4 {
			return "Too few points"
		}
		if !ring.Closed() {
			return "Ring not closed"
		}
	}
	return ""
}

func closeRings(g ir.Geometry) ir.Geometry {
	closePolygon := func(p orb.Polygon) {
		for i, ring := range p {
			if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
				p[i] = append(ring, ring[0])
			}
		}
	}
	out := g.Clone()
	switch v := out.Orb().(type) {
	case orb.Polygon:
		closePolygon(v)
	case orb.MultiPolygon:
		for _, p := range v {
			closePolygon(p)
		}
	}
	return out
}
