package safeops

import (
	"context"
	"fmt"

	"github.com/roach88/geosafe/internal/guard"
	"github.com/roach88/geosafe/internal/ir"
	"go.opentelemetry.io/otel/attribute"
)

// Reproject returns a copy of ds in CRS to. The reprojection goes through
// the guard, so it is recorded as a decision like any other operation:
// auto-resolved when coordinates moved, allowed when ds was already in to.
// Geometries are not re-validated, so a round trip returns the input
// geometries up to projection precision.
func (o *Ops) Reproject(ctx context.Context, ds ir.Dataset, to string) (res Result, err error) {
	if to == "" {
		return Result{}, fmt.Errorf("reproject %q: target CRS is required", ds.Name)
	}
	ctx, span := startSpan(ctx, ir.OpReproject, attribute.String("geosafe.crs.target", to))
	defer func() { endSpan(span, err) }()

	resolution, err := o.guard.Check(ctx, guard.Request{
		Operation: ir.OpReproject,
		Datasets:  []ir.Dataset{ds},
		TargetCRS: to,
	})
	res.Decisions = append(res.Decisions, resolution.Decision)
	if err != nil {
		return res, err
	}
	res.Dataset = resolution.Datasets[0]
	return res, nil
}

// Validate runs the validator on ds alone.
func (o *Ops) Validate(ctx context.Context, ds ir.Dataset) (res Result, err error) {
	ctx, span := startSpan(ctx, ir.OpValidate)
	defer func() { endSpan(span, err) }()

	out, err := o.validate(ctx, ds, &res)
	if err != nil {
		return res, err
	}
	res.Dataset = out
	return res, nil
}
