package testutil

import (
	"github.com/paulmach/orb"

	"github.com/roach88/geosafe/internal/ir"
)

// Fixture datasets around San Francisco. UTM coordinates follow
// AffineProjector's EPSG:32610 approximation.

// PointsWGS84 returns two labelled points in EPSG:4326.
func PointsWGS84() ir.Dataset {
	ds := ir.NewDataset("stops", "EPSG:4326",
		ir.NewPoint(-122.40, 37.79),
		ir.NewPoint(-122.30, 37.70),
	)
	ds.Records[0].Properties = map[string]any{"id": 1, "name": "Embarcadero"}
	ds.Records[1].Properties = map[string]any{"id": 2, "name": "Oakland"}
	return ds
}

// DistrictsUTM returns two square districts in EPSG:32610. The first
// contains the first point of PointsWGS84 once reprojected.
func DistrictsUTM() ir.Dataset {
	x0 := 500000 + 0.6*MetersPerDegree
	y0 := 37.79 * MetersPerDegree
	ds := ir.NewDataset("districts", "EPSG:32610",
		ir.Box(x0-1000, y0-1000, x0+1000, y0+1000),
		ir.Box(x0+50000, y0+50000, x0+52000, y0+52000),
	)
	ds.Records[0].Properties = map[string]any{"id": 10, "name": "Downtown"}
	ds.Records[1].Properties = map[string]any{"id": 11, "name": "Elsewhere"}
	return ds
}

// ParcelsWGS84 returns two small parcels in EPSG:4326.
func ParcelsWGS84() ir.Dataset {
	ds := ir.NewDataset("parcels", "EPSG:4326",
		ir.Box(-122.41, 37.78, -122.40, 37.79),
		ir.Box(-122.30, 37.70, -122.29, 37.71),
	)
	ds.Records[0].Properties = map[string]any{"parcel": "A"}
	ds.Records[1].Properties = map[string]any{"parcel": "B"}
	return ds
}

// Bowtie returns a self-intersecting polygon inside a size x size square.
// Its lobes are unequal so the ring has a non-zero signed area.
func Bowtie(size float64) ir.Geometry {
	return ir.NewPolygon(orb.Ring{{0, 0}, {size, size}, {size, 0}, {0, size / 2}, {0, 0}})
}

// Sliver returns a polygon with zero area.
func Sliver() ir.Geometry {
	return ir.NewPolygon(orb.Ring{{0, 0}, {1, 0}, {2, 0}, {0, 0}})
}
