package testutil

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/planar"

	"github.com/roach88/geosafe/internal/geom"
	"github.com/roach88/geosafe/internal/ir"
)

// PlanarEngine is a small in-memory geometry engine for tests.
//
// It is exact for the shapes tests use: convex polygons, points and
// straight lines. Buffers are Minkowski sums with a regular polygon whose
// vertices include the four axis directions, so a buffer by d grows a
// bounding box by exactly d on every side. Clip and intersection go through
// orb/clip and require an axis-aligned rectangle as the mask. Union,
// difference and symmetric difference return geom.ErrUnsupported.
//
// Thread-safety: PlanarEngine is safe for concurrent use via internal mutex.
type PlanarEngine struct {
	mu    sync.Mutex
	calls map[string]int

	// Fail injects an error for a method name ("Buffer", "Clip", ...).
	Fail map[string]error
}

// NewPlanarEngine creates a planar engine with zeroed call counters.
func NewPlanarEngine() *PlanarEngine {
	return &PlanarEngine{calls: make(map[string]int), Fail: make(map[string]error)}
}

var _ geom.Engine = (*PlanarEngine)(nil)

// Name implements geom.Engine.
func (e *PlanarEngine) Name() string { return "planar-test" }

// Calls returns the total number of engine calls so far.
func (e *PlanarEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		n += c
	}
	return n
}

// CallsTo returns the number of calls to one method.
func (e *PlanarEngine) CallsTo(method string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[method]
}

func (e *PlanarEngine) enter(method string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls[method]++
	return e.Fail[method]
}

// Check implements geom.Validator.
func (e *PlanarEngine) Check(g ir.Geometry) (bool, string, error) {
	if err := e.enter("Check"); err != nil {
		return false, "", err
	}
	switch v := g.Orb().(type) {
	case orb.LineString:
		if len(v) < 2 {
			return false, "Too few points", nil
		}
	case orb.MultiLineString:
		for _, ls := range v {
			if len(ls) < 2 {
				return false, "Too few points", nil
			}
		}
	case orb.Polygon:
		if reason := polygonProblem(v); reason != "" {
			return false, reason, nil
		}
	case orb.MultiPolygon:
		for _, p := range v {
			if reason := polygonProblem(p); reason != "" {
				return false, reason, nil
			}
		}
	}
	return true, "", nil
}

func polygonProblem(p orb.Polygon) string {
	for _, ring := range p {
		switch {
		case len(ring) < 4:
			return "Too few points"
		case !ring.Closed():
			return "Ring not closed"
		case ringSelfIntersects(ring):
			return "Self-intersection"
		}
	}
	return ""
}

// BufferZero implements geom.Validator. Polygon parts are replaced by the
// convex hull of their shell; degenerate parts are dropped.
func (e *PlanarEngine) BufferZero(g ir.Geometry) (ir.Geometry, error) {
	if err := e.enter("BufferZero"); err != nil {
		return ir.Geometry{}, err
	}
	return hullParts(g), nil
}

// MakeValid implements geom.Validator with the same hull rule as
// BufferZero.
func (e *PlanarEngine) MakeValid(g ir.Geometry) (ir.Geometry, error) {
	if err := e.enter("MakeValid"); err != nil {
		return ir.Geometry{}, err
	}
	return hullParts(g), nil
}

// Buffer implements geom.Engine.
func (e *PlanarEngine) Buffer(g ir.Geometry, distance float64, segments int) (ir.Geometry, error) {
	if err := e.enter("Buffer"); err != nil {
		return ir.Geometry{}, err
	}
	if distance < 0 {
		return ir.Geometry{}, fmt.Errorf("negative buffer: %w", geom.ErrUnsupported)
	}
	if g.IsNull() || g.IsEmpty() {
		return ir.Empty(ir.GeometryPolygon), nil
	}
	if distance == 0 {
		return hullParts(g), nil
	}
	if segments <= 0 {
		segments = 8
	}
	n := 4 * segments
	var pts []orb.Point
	for _, c := range g.Coords() {
		for k := range n {
			a := 2 * math.Pi * float64(k) / float64(n)
			pts = append(pts, orb.Point{c.X() + distance*math.Cos(a), c.Y() + distance*math.Sin(a)})
		}
	}
	return ir.NewPolygon(convexHull(pts)), nil
}

// Relate implements geom.Engine.
func (e *PlanarEngine) Relate(p geom.Predicate, a, b ir.Geometry, distance float64) (bool, error) {
	if err := e.enter("Relate"); err != nil {
		return false, err
	}
	if a.IsNull() || a.IsEmpty() || b.IsNull() || b.IsEmpty() {
		return false, nil
	}
	switch p {
	case geom.Intersects:
		return intersects(a, b), nil
	case geom.Within:
		return within(a, b), nil
	case geom.Contains:
		return within(b, a), nil
	case geom.DWithin:
		return planarDistance(a, b) <= distance, nil
	default:
		return false, fmt.Errorf("predicate %q: %w", p, geom.ErrUnsupported)
	}
}

// Overlay implements geom.Engine. Only intersection is supported.
func (e *PlanarEngine) Overlay(how geom.OverlayHow, a, b ir.Geometry) (ir.Geometry, error) {
	if err := e.enter("Overlay"); err != nil {
		return ir.Geometry{}, err
	}
	if how != geom.OverlayIntersection {
		return ir.Geometry{}, fmt.Errorf("overlay %s: %w", how, geom.ErrUnsupported)
	}
	return clipTo(a, b)
}

// Clip implements geom.Engine.
func (e *PlanarEngine) Clip(g, mask ir.Geometry) (ir.Geometry, error) {
	if err := e.enter("Clip"); err != nil {
		return ir.Geometry{}, err
	}
	return clipTo(g, mask)
}

func clipTo(g, mask ir.Geometry) (ir.Geometry, error) {
	window, err := rectangle(mask)
	if err != nil {
		return ir.Geometry{}, err
	}
	if g.IsNull() || g.IsEmpty() {
		return ir.Empty(g.Type()), nil
	}
	if g.Type().Dimension() < 0 {
		return ir.Geometry{}, fmt.Errorf("clip %s: %w", g.Type(), geom.ErrUnsupported)
	}
	// clip.Geometry works in place.
	out := ir.FromOrb(clip.Geometry(window, orb.Clone(g.Orb())))
	if out.IsNull() || out.IsEmpty() || (g.Type().Dimension() == 2 && out.Area() == 0) {
		return ir.Empty(g.Type()), nil
	}
	return out, nil
}

// rectangle returns the bound of a mask that is a single axis-aligned
// rectangle.
func rectangle(mask ir.Geometry) (orb.Bound, error) {
	p, ok := mask.Orb().(orb.Polygon)
	if !ok || len(p) != 1 {
		return orb.Bound{}, fmt.Errorf("mask must be a single polygon without holes: %w", geom.ErrUnsupported)
	}
	b := p.Bound()
	boxArea := (b.Right() - b.Left()) * (b.Top() - b.Bottom())
	if boxArea == 0 || math.Abs(mask.Area()-boxArea) > 1e-9*boxArea {
		return orb.Bound{}, fmt.Errorf("non-rectangular mask: %w", geom.ErrUnsupported)
	}
	return b, nil
}

func hullParts(g ir.Geometry) ir.Geometry {
	var shells []orb.Ring
	switch v := g.Orb().(type) {
	case orb.Polygon:
		if len(v) > 0 {
			shells = append(shells, v[0])
		}
	case orb.MultiPolygon:
		for _, p := range v {
			if len(p) > 0 {
				shells = append(shells, p[0])
			}
		}
	default:
		return g.Clone()
	}

	out := orb.MultiPolygon{}
	for _, shell := range shells {
		if hull := convexHull(shell); len(hull) >= 4 {
			out = append(out, orb.Polygon{hull})
		}
	}
	switch len(out) {
	case 0:
		return ir.Empty(ir.GeometryPolygon)
	case 1:
		return ir.FromOrb(out[0])
	default:
		return ir.FromOrb(out)
	}
}

// convexHull returns the closed counter-clockwise hull of pts using the
// monotone chain algorithm. Collinear points are dropped. Fewer than three
// non-collinear points yield a ring shorter than four coordinates.
func convexHull(pts []orb.Point) orb.Ring {
	ps := make([]orb.Point, len(pts))
	copy(ps, pts)
	sort.Slice(ps, func(i, j int) bool {
		if ps[i][0] != ps[j][0] {
			return ps[i][0] < ps[j][0]
		}
		return ps[i][1] < ps[j][1]
	})
	uniq := ps[:0]
	for i, p := range ps {
		if i == 0 || p != ps[i-1] {
			uniq = append(uniq, p)
		}
	}
	if len(uniq) < 3 {
		return orb.Ring(uniq)
	}
	hull := make(orb.Ring, 0, 2*len(uniq))
	for _, p := range uniq {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(uniq) - 2; i >= 0; i-- {
		p := uniq[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	// hull ends with its first point, which closes the ring.
	if len(hull) < 4 {
		return hull[:len(hull)-1]
	}
	return hull
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

// paths returns every line and ring of g as point sequences.
func paths(g ir.Geometry) [][]orb.Point {
	var out [][]orb.Point
	switch v := g.Orb().(type) {
	case orb.LineString:
		out = append(out, v)
	case orb.MultiLineString:
		for _, ls := range v {
			out = append(out, ls)
		}
	case orb.Polygon:
		for _, r := range v {
			out = append(out, r)
		}
	case orb.MultiPolygon:
		for _, p := range v {
			for _, r := range p {
				out = append(out, r)
			}
		}
	}
	return out
}

type segment struct{ a, b orb.Point }

func segments(g ir.Geometry) []segment {
	var out []segment
	for _, p := range paths(g) {
		for i := 1; i < len(p); i++ {
			out = append(out, segment{p[i-1], p[i]})
		}
	}
	return out
}

// ringSelfIntersects tests every pair of non-adjacent edges. orb/planar
// has no self-intersection test.
func ringSelfIntersects(ring orb.Ring) bool {
	n := len(ring) - 1
	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			if segmentsIntersect(ring[i], ring[i+1], ring[j], ring[j+1]) {
				return true
			}
		}
	}
	return false
}

func segmentsIntersect(p1, p2, p3, p4 orb.Point) bool {
	d1 := cross(p3, p4, p1)
	d2 := cross(p3, p4, p2)
	d3 := cross(p1, p2, p3)
	d4 := cross(p1, p2, p4)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(p3, p4, p1)) ||
		(d2 == 0 && onSegment(p3, p4, p2)) ||
		(d3 == 0 && onSegment(p1, p2, p3)) ||
		(d4 == 0 && onSegment(p1, p2, p4))
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1]) &&
		cross(a, b, p) == 0
}

func onBoundary(p orb.Point, g ir.Geometry) bool {
	for _, s := range segments(g) {
		if onSegment(s.a, s.b, p) {
			return true
		}
	}
	return false
}

// covered reports whether p lies in the closure of g.
func covered(p orb.Point, g ir.Geometry) bool {
	switch v := g.Orb().(type) {
	case orb.Point:
		return v == p
	case orb.MultiPoint:
		for _, c := range v {
			if c == p {
				return true
			}
		}
		return false
	case orb.Polygon:
		return (len(v) > 0 && planar.PolygonContains(v, p)) || onBoundary(p, g)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(v, p) || onBoundary(p, g)
	default:
		return onBoundary(p, g)
	}
}

func intersects(a, b ir.Geometry) bool {
	for _, sa := range segments(a) {
		for _, sb := range segments(b) {
			if segmentsIntersect(sa.a, sa.b, sb.a, sb.b) {
				return true
			}
		}
	}
	for _, c := range a.Coords() {
		if covered(c, b) {
			return true
		}
	}
	for _, c := range b.Coords() {
		if covered(c, a) {
			return true
		}
	}
	return false
}

func within(a, b ir.Geometry) bool {
	for _, c := range a.Coords() {
		if !covered(c, b) {
			return false
		}
	}
	return true
}

// planarDistance is exact for disjoint geometries: the nearest pair always
// includes a vertex of one side.
func planarDistance(a, b ir.Geometry) float64 {
	if intersects(a, b) {
		return 0
	}
	best := math.Inf(1)
	for _, c := range a.Coords() {
		best = math.Min(best, planar.DistanceFrom(b.Orb(), c))
	}
	for _, c := range b.Coords() {
		best = math.Min(best, planar.DistanceFrom(a.Orb(), c))
	}
	return best
}
