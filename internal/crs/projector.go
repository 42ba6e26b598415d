package crs

import (
	"context"
	"fmt"

	"github.com/roach88/geosafe/internal/ir"
)

// Projector is the projection engine boundary. Implementations transform
// coordinates; they never decide whether a transformation is appropriate.
type Projector interface {
	Describer

	// Name identifies the engine in provenance environment records.
	Name() string

	// Reproject transforms geometries from one CRS to another. The result
	// has the same length and order as geoms. Coordinates are in
	// east/north order on both sides regardless of authority axis order.
	Reproject(geoms []ir.Geometry, from, to string) ([]ir.Geometry, error)
}

// ReprojectDataset returns a copy of ds in CRS to. The input is never
// modified. A dataset already in to is returned as a copy unchanged.
func ReprojectDataset(ctx context.Context, p Projector, ds ir.Dataset, to string) (ir.Dataset, error) {
	target, err := Normalize(to)
	if err != nil {
		return ir.Dataset{}, err
	}
	if Equal(ds.CRS, target) {
		out := ds.Clone()
		out.CRS = target
		return out, nil
	}
	if err := ctx.Err(); err != nil {
		return ir.Dataset{}, err
	}

	// Null and empty geometries pass through untouched.
	idx := make([]int, 0, len(ds.Records))
	geoms := make([]ir.Geometry, 0, len(ds.Records))
	for i, r := range ds.Records {
		if r.Geometry.IsNull() || r.Geometry.IsEmpty() {
			continue
		}
		idx = append(idx, i)
		geoms = append(geoms, r.Geometry)
	}

	projected, err := p.Reproject(geoms, ds.CRS, target)
	if err != nil {
		return ir.Dataset{}, &ProjectionError{Dataset: ds.Name, From: ds.CRS, To: target, Index: -1, Err: err}
	}
	if len(projected) != len(geoms) {
		return ir.Dataset{}, &ProjectionError{
			Dataset: ds.Name, From: ds.CRS, To: target, Index: -1,
			Err: fmt.Errorf("engine returned %d geometries for %d inputs", len(projected), len(geoms)),
		}
	}

	out := ds.Clone()
	out.CRS = target
	for j, i := range idx {
		out.Records[i].Geometry = projected[j]
	}
	return out, nil
}
