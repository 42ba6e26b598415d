package ir

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// GeometryType names a simple-features geometry type. Values match the
// GeoJSON type names orb reports. The zero value denotes a null geometry.
type GeometryType string

const (
	GeometryNull            GeometryType = ""
	GeometryPoint           GeometryType = "Point"
	GeometryLineString      GeometryType = "LineString"
	GeometryPolygon         GeometryType = "Polygon"
	GeometryMultiPoint      GeometryType = "MultiPoint"
	GeometryMultiLineString GeometryType = "MultiLineString"
	GeometryMultiPolygon    GeometryType = "MultiPolygon"
)

// Dimension returns the topological dimension of the type: 0 for points,
// 1 for lines, 2 for polygons and -1 for null.
func (t GeometryType) Dimension() int {
	switch t {
	case GeometryPoint, GeometryMultiPoint:
		return 0
	case GeometryLineString, GeometryMultiLineString:
		return 1
	case GeometryPolygon, GeometryMultiPolygon:
		return 2
	default:
		return -1
	}
}

// IsMulti reports whether the type is a multi-part type.
func (t GeometryType) IsMulti() bool {
	return t == GeometryMultiPoint || t == GeometryMultiLineString || t == GeometryMultiPolygon
}

// Geometry is a simple-features geometry backed by an orb geometry, with
// coordinates in the units of the owning dataset's CRS.
//
// The zero value is the null geometry. A geometry with a type and no
// coordinates is empty. orb.Point cannot be empty, so an empty point is
// carried as an empty orb.MultiPoint.
type Geometry struct {
	geom orb.Geometry
}

// FromOrb wraps an orb geometry. Rings and bounds become polygons; nil
// becomes the null geometry.
func FromOrb(g orb.Geometry) Geometry {
	switch v := g.(type) {
	case orb.Ring:
		return Geometry{geom: orb.Polygon{v}}
	case orb.Bound:
		return Geometry{geom: v.ToPolygon()}
	}
	return Geometry{geom: g}
}

// Orb returns the underlying orb geometry, nil for the null geometry. The
// result shares coordinates with g.
func (g Geometry) Orb() orb.Geometry {
	return g.geom
}

// Type returns the geometry type. Unsupported orb types such as
// collections report their GeoJSON name and a dimension of -1.
func (g Geometry) Type() GeometryType {
	if g.geom == nil {
		return GeometryNull
	}
	return GeometryType(g.geom.GeoJSONType())
}

// NewPoint returns a point geometry.
func NewPoint(x, y float64) Geometry {
	return Geometry{geom: orb.Point{x, y}}
}

// NewLineString returns a line geometry through the given points.
func NewLineString(pts ...orb.Point) Geometry {
	return Geometry{geom: orb.LineString(clonePoints(pts))}
}

// NewPolygon returns a polygon with the given shell and holes. Rings are
// stored as given, open or closed.
func NewPolygon(shell orb.Ring, holes ...orb.Ring) Geometry {
	p := make(orb.Polygon, 0, 1+len(holes))
	p = append(p, orb.Ring(clonePoints(shell)))
	for _, h := range holes {
		p = append(p, orb.Ring(clonePoints(h)))
	}
	return Geometry{geom: p}
}

// NewMultiPoint returns a multi-point geometry.
func NewMultiPoint(pts ...orb.Point) Geometry {
	return Geometry{geom: orb.MultiPoint(clonePoints(pts))}
}

// NewMultiPolygon returns a multi-polygon from polygon geometries.
// Non-polygon members are ignored.
func NewMultiPolygon(polys ...Geometry) Geometry {
	mp := orb.MultiPolygon{}
	for _, p := range polys {
		switch v := p.geom.(type) {
		case orb.Polygon:
			mp = append(mp, v.Clone())
		case orb.MultiPolygon:
			mp = append(mp, v.Clone()...)
		}
	}
	return Geometry{geom: mp}
}

// Box returns the axis-aligned rectangle polygon with a closed,
// counter-clockwise shell.
func Box(minX, minY, maxX, maxY float64) Geometry {
	return Geometry{geom: orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}.ToPolygon()}
}

// Empty returns an empty geometry of the given type. GeometryNull yields
// the null geometry.
func Empty(t GeometryType) Geometry {
	switch t {
	case GeometryPoint, GeometryMultiPoint:
		return Geometry{geom: orb.MultiPoint{}}
	case GeometryLineString:
		return Geometry{geom: orb.LineString{}}
	case GeometryPolygon:
		return Geometry{geom: orb.Polygon{}}
	case GeometryMultiLineString:
		return Geometry{geom: orb.MultiLineString{}}
	case GeometryMultiPolygon:
		return Geometry{geom: orb.MultiPolygon{}}
	}
	return Geometry{}
}

// IsNull reports whether the geometry is missing altogether.
func (g Geometry) IsNull() bool {
	return g.geom == nil
}

// IsEmpty reports whether the geometry has a type but no coordinates.
func (g Geometry) IsEmpty() bool {
	return !g.IsNull() && g.NumCoords() == 0
}

// NumCoords returns the total number of coordinates in the geometry.
func (g Geometry) NumCoords() int {
	n := 0
	eachPoint(g.geom, func(*orb.Point) { n++ })
	return n
}

// Clone returns a deep copy of the geometry.
func (g Geometry) Clone() Geometry {
	if g.geom == nil {
		return Geometry{}
	}
	return Geometry{geom: orb.Clone(g.geom)}
}

// MapCoords returns a copy of the geometry with fn applied to every
// coordinate. The first error aborts the walk.
func (g Geometry) MapCoords(fn func(orb.Point) (orb.Point, error)) (Geometry, error) {
	out := g.Clone()
	if p, ok := out.geom.(orb.Point); ok {
		np, err := fn(p)
		if err != nil {
			return Geometry{}, err
		}
		return Geometry{geom: np}, nil
	}
	var err error
	eachPoint(out.geom, func(p *orb.Point) {
		if err != nil {
			return
		}
		*p, err = fn(*p)
	})
	if err != nil {
		return Geometry{}, err
	}
	return out, nil
}

// Coords returns every coordinate of the geometry in storage order.
func (g Geometry) Coords() []orb.Point {
	out := make([]orb.Point, 0, g.NumCoords())
	if p, ok := g.geom.(orb.Point); ok {
		return append(out, p)
	}
	eachPoint(g.geom, func(p *orb.Point) { out = append(out, *p) })
	return out
}

// Bounds returns the bounding box of the geometry. ok is false for null
// and empty geometries.
func (g Geometry) Bounds() (orb.Bound, bool) {
	if g.IsNull() || g.IsEmpty() {
		return orb.Bound{}, false
	}
	return g.geom.Bound(), true
}

// Area returns the planar area of a polygonal geometry, holes subtracted.
// Non-polygonal geometries have zero area.
func (g Geometry) Area() float64 {
	if g.Type().Dimension() != 2 || g.IsEmpty() {
		return 0
	}
	return math.Abs(planar.Area(g.geom))
}

// Length returns the planar length of a lineal geometry. Other geometries
// have zero length.
func (g Geometry) Length() float64 {
	if g.Type().Dimension() != 1 {
		return 0
	}
	return planar.Length(g.geom)
}

// eachPoint visits every coordinate by reference. A lone orb.Point is a
// value, so fn sees a copy of it.
func eachPoint(g orb.Geometry, fn func(*orb.Point)) {
	visit := func(pts []orb.Point) {
		for i := range pts {
			fn(&pts[i])
		}
	}
	switch v := g.(type) {
	case orb.Point:
		p := v
		fn(&p)
	case orb.MultiPoint:
		visit(v)
	case orb.LineString:
		visit(v)
	case orb.Ring:
		visit(v)
	case orb.MultiLineString:
		for _, ls := range v {
			visit(ls)
		}
	case orb.Polygon:
		for _, r := range v {
			visit(r)
		}
	case orb.MultiPolygon:
		for _, p := range v {
			for _, r := range p {
				visit(r)
			}
		}
	}
}

func clonePoints[S ~[]orb.Point](pts S) []orb.Point {
	if pts == nil {
		return nil
	}
	out := make([]orb.Point, len(pts))
	copy(out, pts)
	return out
}
