package projengine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/geosafe/internal/crs"
)

// geographic is the forward step for longitude/latitude CRSs: PROJ works
// in radians internally, datasets carry degrees.
const geographic = "+proj=unitconvert +xy_in=rad +xy_out=deg"

// definitions holds the PROJ forward step for each supported CRS. All of
// them sit on WGS 84 or a datum within a metre of it (GRS80 based), so no
// datum shift step is needed between them. CRSs that need grid or Helmert
// shifts (NAD27, OSGB36) are left out.
var definitions = map[string]string{
	"EPSG:4326": geographic,
	"OGC:CRS84": geographic,
	"EPSG:4269": geographic,
	"EPSG:4258": geographic,
	"EPSG:3857": "+proj=webmerc +lat_0=0 +lon_0=0 +x_0=0 +y_0=0 +ellps=WGS84",
	"EPSG:3395": "+proj=merc +lon_0=0 +k=1 +x_0=0 +y_0=0 +ellps=WGS84",
	"EPSG:3035": "+proj=laea +lat_0=52 +lon_0=10 +x_0=4321000 +y_0=3210000 +ellps=GRS80",
	"EPSG:5070": "+proj=aea +lat_0=23 +lon_0=-96 +lat_1=29.5 +lat_2=45.5 +x_0=0 +y_0=0 +ellps=GRS80",
	"EPSG:2154": "+proj=lcc +lat_0=46.5 +lon_0=3 +lat_1=49 +lat_2=44 +x_0=700000 +y_0=6600000 +ellps=GRS80",
	"EPSG:2227": "+proj=lcc +lat_0=36.5 +lon_0=-120.5 +lat_1=38.4333333333333 +lat_2=37.0666666666667 +x_0=2000000.0001016 +y_0=500000.0001016 +ellps=GRS80 +units=us-ft",
}

// definition returns the forward step for id.
func definition(id string) (string, error) {
	norm, err := crs.Normalize(id)
	if err != nil {
		return "", err
	}
	if def, ok := definitions[norm]; ok {
		return def, nil
	}
	if def, ok := utm(norm); ok {
		return def, nil
	}
	return "", fmt.Errorf("%w: no PROJ definition for %s", crs.ErrUnknownCRS, norm)
}

// utm covers the WGS 84 and NAD83 UTM zone codes.
func utm(id string) (string, bool) {
	code, ok := strings.CutPrefix(id, "EPSG:")
	if !ok {
		return "", false
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return "", false
	}
	switch {
	case n >= 32601 && n <= 32660:
		return fmt.Sprintf("+proj=utm +zone=%d +ellps=WGS84", n-32600), true
	case n >= 32701 && n <= 32760:
		return fmt.Sprintf("+proj=utm +zone=%d +south +ellps=WGS84", n-32700), true
	case n >= 26901 && n <= 26923:
		return fmt.Sprintf("+proj=utm +zone=%d +ellps=GRS80", n-26900), true
	}
	return "", false
}

// pipeline builds a PROJ pipeline taking coordinates in from to to.
func pipeline(from, to string) (string, error) {
	src, err := definition(from)
	if err != nil {
		return "", err
	}
	dst, err := definition(to)
	if err != nil {
		return "", err
	}
	return "+proj=pipeline +step +inv " + src + " +step " + dst, nil
}
