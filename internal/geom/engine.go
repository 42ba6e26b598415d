// Package geom defines the geometry engine boundary.
//
// geosafe has no geometry kernel of its own. Every geometric computation is
// delegated to an Engine; the safe operations and the repairer decide what
// to ask for, the engine only computes.
package geom

import (
	"errors"
	"fmt"

	"github.com/roach88/geosafe/internal/ir"
)

// ErrUnsupported is returned by engines that cannot perform a computation.
var ErrUnsupported = errors.New("unsupported by geometry engine")

// Predicate is a binary spatial predicate.
type Predicate string

const (
	Intersects Predicate = "intersects"
	Within     Predicate = "within"
	Contains   Predicate = "contains"
	DWithin    Predicate = "dwithin"
)

// ParsePredicate validates a predicate name.
func ParsePredicate(s string) (Predicate, error) {
	switch p := Predicate(s); p {
	case Intersects, Within, Contains, DWithin:
		return p, nil
	default:
		return "", fmt.Errorf("unknown predicate %q: want intersects, within, contains or dwithin", s)
	}
}

// IsMetric reports whether the predicate measures distance.
func (p Predicate) IsMetric() bool {
	return p == DWithin
}

// OverlayHow is a set-theoretic overlay operation.
type OverlayHow string

const (
	OverlayIntersection        OverlayHow = "intersection"
	OverlayUnion               OverlayHow = "union"
	OverlayDifference          OverlayHow = "difference"
	OverlaySymmetricDifference OverlayHow = "symmetric_difference"
)

// ParseOverlayHow validates an overlay operation name.
func ParseOverlayHow(s string) (OverlayHow, error) {
	switch h := OverlayHow(s); h {
	case OverlayIntersection, OverlayUnion, OverlayDifference, OverlaySymmetricDifference:
		return h, nil
	default:
		return "", fmt.Errorf("unknown overlay %q: want intersection, union, difference or symmetric_difference", s)
	}
}

// Validator checks and repairs single geometries.
type Validator interface {
	// Check reports whether g is valid. reason describes the first problem
	// found and is empty for valid geometries.
	Check(g ir.Geometry) (valid bool, reason string, err error)

	// BufferZero returns the zero-distance buffer of g.
	BufferZero(g ir.Geometry) (ir.Geometry, error)

	// MakeValid returns a valid geometry covering the same point set.
	MakeValid(g ir.Geometry) (ir.Geometry, error)
}

// Engine is the full geometry engine used by the safe operations.
// All distances are in the units of the geometries' CRS.
type Engine interface {
	Validator

	// Name identifies the engine in provenance environment records.
	Name() string

	// Buffer returns g grown by distance, approximating quarter circles
	// with segments line segments.
	Buffer(g ir.Geometry, distance float64, segments int) (ir.Geometry, error)

	// Relate evaluates a against b. distance is used by DWithin only.
	Relate(p Predicate, a, b ir.Geometry, distance float64) (bool, error)

	// Overlay computes a set-theoretic combination of a and b.
	Overlay(how OverlayHow, a, b ir.Geometry) (ir.Geometry, error)

	// Clip returns the part of g inside mask.
	Clip(g, mask ir.Geometry) (ir.Geometry, error)
}
