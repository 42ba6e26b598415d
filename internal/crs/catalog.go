package crs

import (
	"fmt"
	"strconv"
	"strings"
)

// Catalog is a built-in describer for commonly used CRSs. It knows the
// geographic datums, Web Mercator, the WGS 84 and NAD83 UTM zones and a
// handful of national grids. Anything else is ErrUnknownCRS.
type Catalog struct{}

var catalogEntries = map[string]Reference{
	"EPSG:4326":  {ID: "EPSG:4326", Name: "WGS 84", Geographic: true, Unit: UnitDegree, AxisOrder: AxisNorthEast},
	"EPSG:4269":  {ID: "EPSG:4269", Name: "NAD83", Geographic: true, Unit: UnitDegree, AxisOrder: AxisNorthEast},
	"EPSG:4258":  {ID: "EPSG:4258", Name: "ETRS89", Geographic: true, Unit: UnitDegree, AxisOrder: AxisNorthEast},
	"EPSG:4267":  {ID: "EPSG:4267", Name: "NAD27", Geographic: true, Unit: UnitDegree, AxisOrder: AxisNorthEast},
	"OGC:CRS84":  {ID: "OGC:CRS84", Name: "WGS 84 (CRS84)", Geographic: true, Unit: UnitDegree, AxisOrder: AxisEastNorth},
	"EPSG:3857":  {ID: "EPSG:3857", Name: "WGS 84 / Pseudo-Mercator", Unit: UnitMeter, AxisOrder: AxisEastNorth},
	"EPSG:3395":  {ID: "EPSG:3395", Name: "WGS 84 / World Mercator", Unit: UnitMeter, AxisOrder: AxisEastNorth},
	"EPSG:3035":  {ID: "EPSG:3035", Name: "ETRS89-extended / LAEA Europe", Unit: UnitMeter, AxisOrder: AxisNorthEast},
	"EPSG:27700": {ID: "EPSG:27700", Name: "OSGB36 / British National Grid", Unit: UnitMeter, AxisOrder: AxisEastNorth},
	"EPSG:2154":  {ID: "EPSG:2154", Name: "RGF93 v1 / Lambert-93", Unit: UnitMeter, AxisOrder: AxisEastNorth},
	"EPSG:5070":  {ID: "EPSG:5070", Name: "NAD83 / Conus Albers", Unit: UnitMeter, AxisOrder: AxisEastNorth},
	"EPSG:2227":  {ID: "EPSG:2227", Name: "NAD83 / California zone 3 (ftUS)", Unit: UnitUSSurveyFoot, AxisOrder: AxisEastNorth},
	"EPSG:2263":  {ID: "EPSG:2263", Name: "NAD83 / New York Long Island (ftUS)", Unit: UnitUSSurveyFoot, AxisOrder: AxisEastNorth},
	"EPSG:2272":  {ID: "EPSG:2272", Name: "NAD83 / Pennsylvania South (ftUS)", Unit: UnitUSSurveyFoot, AxisOrder: AxisEastNorth},
	"EPSG:3433":  {ID: "EPSG:3433", Name: "NAD83 / Arkansas North (ft)", Unit: UnitFoot, AxisOrder: AxisEastNorth},
}

// Describe resolves an identifier against the catalog.
func (Catalog) Describe(id string) (Reference, error) {
	norm, err := Normalize(id)
	if err != nil {
		return Reference{}, err
	}
	if ref, ok := catalogEntries[norm]; ok {
		return ref, nil
	}
	if ref, ok := utmZone(norm); ok {
		return ref, nil
	}
	return Reference{}, fmt.Errorf("%w: %s", ErrUnknownCRS, norm)
}

// utmZone describes EPSG:326xx / 327xx (WGS 84) and EPSG:269xx (NAD83)
// UTM zone codes.
func utmZone(id string) (Reference, bool) {
	code, ok := strings.CutPrefix(id, "EPSG:")
	if !ok {
		return Reference{}, false
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return Reference{}, false
	}
	var name string
	switch {
	case n >= 32601 && n <= 32660:
		name = fmt.Sprintf("WGS 84 / UTM zone %dN", n-32600)
	case n >= 32701 && n <= 32760:
		name = fmt.Sprintf("WGS 84 / UTM zone %dS", n-32700)
	case n >= 26901 && n <= 26923:
		name = fmt.Sprintf("NAD83 / UTM zone %dN", n-26900)
	default:
		return Reference{}, false
	}
	return Reference{ID: id, Name: name, Unit: UnitMeter, AxisOrder: AxisEastNorth}, true
}

// UTMZoneFor returns the WGS 84 UTM zone identifier containing a
// longitude/latitude position.
func UTMZoneFor(lon, lat float64) string {
	zone := int((lon+180)/6) + 1
	zone = min(max(zone, 1), 60)
	if lat < 0 {
		return fmt.Sprintf("EPSG:%d", 32700+zone)
	}
	return fmt.Sprintf("EPSG:%d", 32600+zone)
}
