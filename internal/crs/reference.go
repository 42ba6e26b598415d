package crs

import (
	"fmt"
	"strconv"
	"strings"
)

// Unit is the linear or angular unit of a CRS's first axis.
type Unit string

const (
	UnitMeter        Unit = "meter"
	UnitFoot         Unit = "foot"
	UnitUSSurveyFoot Unit = "us-survey-foot"
	UnitDegree       Unit = "degree"
	UnitUnknown      Unit = "unknown"
)

// IsLinear reports whether distances in this unit are meaningful lengths.
func (u Unit) IsLinear() bool {
	return u == UnitMeter || u == UnitFoot || u == UnitUSSurveyFoot
}

// MetersPerUnit returns the conversion factor to meters, or 0 when the unit
// is not linear.
func (u Unit) MetersPerUnit() float64 {
	switch u {
	case UnitMeter:
		return 1
	case UnitFoot:
		return 0.3048
	case UnitUSSurveyFoot:
		return 1200.0 / 3937.0
	default:
		return 0
	}
}

// AxisOrder is the authority-declared order of the first two axes.
type AxisOrder string

const (
	AxisEastNorth AxisOrder = "east_north"
	AxisNorthEast AxisOrder = "north_east"
)

// Reference is the resolved metadata of one CRS. It is immutable once
// resolved.
type Reference struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Geographic bool      `json:"geographic"`
	Unit       Unit      `json:"unit"`
	AxisOrder  AxisOrder `json:"axis_order"`
}

// IsAngular reports whether metric operations are unsafe in this CRS.
func (r Reference) IsAngular() bool {
	return r.Geographic || r.Unit == UnitDegree
}

// Authority returns the authority part of the identifier.
func (r Reference) Authority() string {
	auth, _, _ := strings.Cut(r.ID, ":")
	return auth
}

// Code returns the numeric code of the identifier, or 0 when the code is
// not numeric.
func (r Reference) Code() int {
	_, code, _ := strings.Cut(r.ID, ":")
	n, err := strconv.Atoi(code)
	if err != nil {
		return 0
	}
	return n
}

func (r Reference) String() string {
	if r.Name == "" {
		return r.ID
	}
	return fmt.Sprintf("%s (%s)", r.ID, r.Name)
}

// Normalize canonicalizes a CRS identifier to AUTHORITY:CODE in upper case.
// A bare number is taken as an EPSG code. An empty or malformed identifier
// returns an error.
func Normalize(id string) (string, error) {
	s := strings.TrimSpace(id)
	if s == "" {
		return "", fmt.Errorf("empty CRS identifier")
	}
	if _, err := strconv.Atoi(s); err == nil {
		return "EPSG:" + s, nil
	}
	auth, code, ok := strings.Cut(s, ":")
	auth = strings.TrimSpace(auth)
	code = strings.TrimSpace(code)
	if !ok || auth == "" || code == "" || strings.Contains(code, ":") {
		return "", fmt.Errorf("malformed CRS identifier %q: want AUTHORITY:CODE", id)
	}
	return strings.ToUpper(auth) + ":" + strings.ToUpper(code), nil
}

// Equal reports whether two identifiers name the same CRS after
// normalization. Malformed identifiers are never equal.
func Equal(a, b string) bool {
	na, err := Normalize(a)
	if err != nil {
		return false
	}
	nb, err := Normalize(b)
	if err != nil {
		return false
	}
	return na == nb
}
