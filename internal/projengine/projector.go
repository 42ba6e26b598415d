// Package projengine implements the projection engine on PROJ through
// github.com/pebbe/proj/v5.
//
// Coordinates stay in east/north (longitude/latitude) order on both sides:
// pipelines are built from PROJ forward steps, which are always east/north,
// so authority axis order never reaches the data.
package projengine

import (
	"fmt"
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/pebbe/proj/v5"

	"github.com/roach88/geosafe/internal/crs"
	"github.com/roach88/geosafe/internal/ir"
)

// Projector transforms geometries with PROJ. Metadata comes from the
// built-in CRS catalog.
//
// Thread-safety: a PROJ context is not safe for concurrent use, so every
// call holds the projector's mutex. Transformations are created once per
// CRS pair and cached.
type Projector struct {
	crs.Catalog

	mu    sync.Mutex
	ctx   *proj.Context
	cache map[[2]string]*proj.PJ
}

var _ crs.Projector = (*Projector)(nil)

// New creates a projector with its own PROJ context. Call Close when done.
func New() *Projector {
	return &Projector{ctx: proj.NewContext(), cache: make(map[[2]string]*proj.PJ)}
}

// Close releases the PROJ context and cached transformations.
func (p *Projector) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, pj := range p.cache {
		pj.Close()
		delete(p.cache, k)
	}
	if p.ctx != nil {
		p.ctx.Close()
		p.ctx = nil
	}
}

// Name implements crs.Projector.
func (p *Projector) Name() string { return "proj" }

// Reproject implements crs.Projector.
func (p *Projector) Reproject(geoms []ir.Geometry, from, to string) ([]ir.Geometry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx == nil {
		return nil, fmt.Errorf("projector is closed")
	}
	pj, err := p.transformation(from, to)
	if err != nil {
		return nil, err
	}

	out := make([]ir.Geometry, len(geoms))
	for i, g := range geoms {
		projected, err := g.MapCoords(func(c orb.Point) (orb.Point, error) {
			x, y, _, _, err := pj.Trans(proj.Fwd, c.X(), c.Y(), 0, 0)
			if err != nil {
				return orb.Point{}, err
			}
			if !finite(x) || !finite(y) {
				return orb.Point{}, fmt.Errorf("coordinate (%g, %g) has no image", c.X(), c.Y())
			}
			return orb.Point{x, y}, nil
		})
		if err != nil {
			return nil, &crs.ProjectionError{From: from, To: to, Index: i, Err: err}
		}
		out[i] = projected
	}
	return out, nil
}

func (p *Projector) transformation(from, to string) (*proj.PJ, error) {
	key := [2]string{from, to}
	if pj, ok := p.cache[key]; ok {
		return pj, nil
	}
	def, err := pipeline(from, to)
	if err != nil {
		return nil, err
	}
	pj, err := p.ctx.Create(def)
	if err != nil {
		return nil, fmt.Errorf("create transformation %s -> %s: %w", from, to, err)
	}
	p.cache[key] = pj
	return pj, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
