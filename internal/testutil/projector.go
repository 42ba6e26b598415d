package testutil

import (
	"fmt"
	"math"
	"sync"

	"github.com/paulmach/orb"

	"github.com/roach88/geosafe/internal/crs"
	"github.com/roach88/geosafe/internal/ir"
)

// MetersPerDegree is the scale of the affine UTM stand-in.
const MetersPerDegree = 111320.0

const (
	affineFalseEasting = 500000.0
	affineCentralLon   = -123.0
	mercatorRadius     = 6378137.0
)

// AffineProjector is a deterministic projection engine for tests.
//
// It routes every transformation through longitude/latitude and knows:
//   - EPSG:4326 and OGC:CRS84 (identity)
//   - EPSG:32610, approximated as x = 500000 + (lon+123)*111320,
//     y = lat*111320
//   - EPSG:3857, spherical Mercator
//
// Other identifiers fail. Describe uses the built-in catalog.
type AffineProjector struct {
	crs.Catalog

	mu    sync.Mutex
	calls int

	// Fail, when set, is returned by every Reproject call.
	Fail error
}

// NewAffineProjector creates a projector with a zeroed call counter.
func NewAffineProjector() *AffineProjector {
	return &AffineProjector{}
}

var _ crs.Projector = (*AffineProjector)(nil)

// Name implements crs.Projector.
func (p *AffineProjector) Name() string { return "affine-test" }

// Calls returns the number of Reproject calls.
func (p *AffineProjector) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Reproject implements crs.Projector.
func (p *AffineProjector) Reproject(geoms []ir.Geometry, from, to string) ([]ir.Geometry, error) {
	p.mu.Lock()
	p.calls++
	fail := p.Fail
	p.mu.Unlock()
	if fail != nil {
		return nil, fail
	}

	src, err := crs.Normalize(from)
	if err != nil {
		return nil, err
	}
	dst, err := crs.Normalize(to)
	if err != nil {
		return nil, err
	}
	out := make([]ir.Geometry, len(geoms))
	for i, g := range geoms {
		moved, err := g.MapCoords(func(c orb.Point) (orb.Point, error) {
			ll, err := toLonLat(c, src)
			if err != nil {
				return orb.Point{}, err
			}
			return fromLonLat(ll, dst)
		})
		if err != nil {
			return nil, err
		}
		out[i] = moved
	}
	return out, nil
}

func toLonLat(c orb.Point, id string) (orb.Point, error) {
	switch id {
	case "EPSG:4326", "OGC:CRS84":
		return c, nil
	case "EPSG:32610":
		return orb.Point{(c.X()-affineFalseEasting)/MetersPerDegree + affineCentralLon, c.Y() / MetersPerDegree}, nil
	case "EPSG:3857":
		lon := c.X() / mercatorRadius * 180 / math.Pi
		lat := (2*math.Atan(math.Exp(c.Y()/mercatorRadius)) - math.Pi/2) * 180 / math.Pi
		return orb.Point{lon, lat}, nil
	default:
		return orb.Point{}, fmt.Errorf("affine projector: unsupported source %s", id)
	}
}

func fromLonLat(c orb.Point, id string) (orb.Point, error) {
	switch id {
	case "EPSG:4326", "OGC:CRS84":
		return c, nil
	case "EPSG:32610":
		return orb.Point{affineFalseEasting + (c.X()-affineCentralLon)*MetersPerDegree, c.Y() * MetersPerDegree}, nil
	case "EPSG:3857":
		if math.Abs(c.Y()) >= 90 {
			return orb.Point{}, fmt.Errorf("affine projector: latitude %v out of Mercator range", c.Y())
		}
		x := mercatorRadius * c.X() * math.Pi / 180
		y := mercatorRadius * math.Log(math.Tan(math.Pi/4+c.Y()*math.Pi/360))
		return orb.Point{x, y}, nil
	default:
		return orb.Point{}, fmt.Errorf("affine projector: unsupported target %s", id)
	}
}
