package geosengine

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-geos"

	"github.com/roach88/geosafe/internal/geom"
	"github.com/roach88/geosafe/internal/ir"
)

func toGEOS(g ir.Geometry) (*geos.Geom, error) {
	s, err := g.GeoJSON()
	if err != nil {
		return nil, err
	}
	gg, err := geos.NewGeomFromGeoJSON(s)
	if err != nil {
		return nil, fmt.Errorf("geos: read %s: %w", g.Type(), err)
	}
	return gg, nil
}

// fromGEOS converts a GEOS result. Geometry collections, which overlays
// produce when pieces of different dimension touch, keep only their
// highest-dimension members.
func fromGEOS(gg *geos.Geom) (ir.Geometry, error) {
	if gg.TypeID() == geos.TypeIDGeometryCollection {
		return fromCollection(gg)
	}
	return ir.ParseGeoJSON(gg.ToGeoJSON(-1))
}

func fromCollection(gg *geos.Geom) (ir.Geometry, error) {
	var members []ir.Geometry
	for i := range gg.NumGeometries() {
		m, err := fromGEOS(gg.Geometry(i))
		if err != nil {
			return ir.Geometry{}, err
		}
		if !m.IsEmpty() {
			members = append(members, m)
		}
	}
	if len(members) == 0 {
		return ir.Empty(ir.GeometryPolygon), nil
	}

	dim := 0
	for _, m := range members {
		dim = max(dim, m.Type().Dimension())
	}

	var out orb.Geometry
	switch dim {
	case 2:
		mp := orb.MultiPolygon{}
		for _, m := range members {
			switch v := m.Orb().(type) {
			case orb.Polygon:
				mp = append(mp, v)
			case orb.MultiPolygon:
				mp = append(mp, v...)
			}
		}
		if out = mp; len(mp) == 1 {
			out = mp[0]
		}
	case 1:
		ml := orb.MultiLineString{}
		for _, m := range members {
			switch v := m.Orb().(type) {
			case orb.LineString:
				ml = append(ml, v)
			case orb.MultiLineString:
				ml = append(ml, v...)
			}
		}
		if out = ml; len(ml) == 1 {
			out = ml[0]
		}
	case 0:
		mp := orb.MultiPoint{}
		for _, m := range members {
			mp = append(mp, m.Coords()...)
		}
		if out = mp; len(mp) == 1 {
			out = mp[0]
		}
	default:
		return ir.Geometry{}, fmt.Errorf("geometry collection of dimension %d: %w", dim, geom.ErrUnsupported)
	}
	return ir.FromOrb(out), nil
}
