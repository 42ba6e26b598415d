package ir

import (
	"bytes"
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// MarshalJSON encodes the geometry as an RFC 7946 geometry object.
// A null geometry encodes as JSON null.
func (g Geometry) MarshalJSON() ([]byte, error) {
	if g.IsNull() {
		return []byte("null"), nil
	}
	if g.Type().Dimension() < 0 {
		return nil, fmt.Errorf("unsupported geometry type %q", g.Type())
	}
	return geojson.NewGeometry(g.geom).MarshalJSON()
}

// UnmarshalJSON decodes an RFC 7946 geometry object. JSON null decodes to
// the null geometry. GeometryCollection is not supported.
func (g *Geometry) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*g = Geometry{}
		return nil
	}
	gj, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return fmt.Errorf("decode geometry: %w", err)
	}
	if gj.Coordinates == nil {
		return fmt.Errorf("unsupported geometry type %q", gj.Type)
	}
	out := FromOrb(gj.Coordinates)
	if out.Type().Dimension() < 0 {
		return fmt.Errorf("unsupported geometry type %q", gj.Type)
	}
	*g = out
	return nil
}

// ParseGeoJSON decodes a single GeoJSON geometry object.
func ParseGeoJSON(s string) (Geometry, error) {
	var g Geometry
	if err := g.UnmarshalJSON([]byte(s)); err != nil {
		return Geometry{}, err
	}
	return g, nil
}

// GeoJSON returns the geometry encoded as a GeoJSON geometry object.
func (g Geometry) GeoJSON() (string, error) {
	b, err := g.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
