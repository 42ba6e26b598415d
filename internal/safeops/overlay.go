package safeops

import (
	"context"

	"github.com/roach88/geosafe/internal/geom"
	"github.com/roach88/geosafe/internal/guard"
	"github.com/roach88/geosafe/internal/ir"
	"go.opentelemetry.io/otel/attribute"
)

// OverlayOptions parameterizes Overlay.
type OverlayOptions struct {
	How       geom.OverlayHow
	TargetCRS string
}

// Overlay combines two polygon datasets record by record.
//
// Intersection emits one record per intersecting pair with the attributes
// of both. Difference emits each first-dataset record minus every second
// record it touches. Symmetric difference is both differences, and union
// is the intersection plus both differences. Attribute names present in
// both datasets are suffixed _1 and _2. Empty pieces are dropped.
func (o *Ops) Overlay(ctx context.Context, a, b ir.Dataset, opts OverlayOptions) (res Result, err error) {
	if opts.How == "" {
		opts.How = geom.OverlayIntersection
	}
	if _, err := geom.ParseOverlayHow(string(opts.How)); err != nil {
		return Result{}, err
	}

	ctx, span := startSpan(ctx, ir.OpOverlay, attribute.String("geosafe.overlay.how", string(opts.How)))
	defer func() { endSpan(span, err) }()

	inputs, err := o.prepare(ctx, guard.Request{
		Operation: ir.OpOverlay,
		Datasets:  []ir.Dataset{a, b},
		TargetCRS: opts.TargetCRS,
	}, &res)
	if err != nil {
		return res, err
	}
	first, second := inputs[0], inputs[1]
	clash := attributeClashes(first, second)

	out := first.WithRecords(nil)
	emit := func(g ir.Geometry, props map[string]any) {
		if g.IsNull() || g.IsEmpty() {
			return
		}
		out.Records = append(out.Records, ir.Record{Index: len(out.Records), Geometry: g, Properties: props})
	}

	switch opts.How {
	case geom.OverlayIntersection, geom.OverlayUnion:
		if err := o.intersections(ctx, first, second, clash, emit); err != nil {
			return res, err
		}
	}
	switch opts.How {
	case geom.OverlayDifference, geom.OverlaySymmetricDifference, geom.OverlayUnion:
		if err := o.differences(ctx, first, second, func(g ir.Geometry, rec ir.Record) {
			emit(g, renameProperties(rec.Properties, clash, "_1"))
		}); err != nil {
			return res, err
		}
	}
	switch opts.How {
	case geom.OverlaySymmetricDifference, geom.OverlayUnion:
		if err := o.differences(ctx, second, first, func(g ir.Geometry, rec ir.Record) {
			emit(g, renameProperties(rec.Properties, clash, "_2"))
		}); err != nil {
			return res, err
		}
	}

	o.logger.Debug("overlay",
		"first", first.Name, "second", second.Name, "how", opts.How, "records", len(out.Records))

	if err := o.finish(ctx, out, &res); err != nil {
		return res, err
	}
	return res, nil
}

func (o *Ops) intersections(ctx context.Context, first, second ir.Dataset, clash map[string]bool, emit func(ir.Geometry, map[string]any)) error {
	for _, ra := range first.Records {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, rb := range second.Records {
			hit, err := o.engine.Relate(geom.Intersects, ra.Geometry, rb.Geometry, 0)
			if err != nil {
				return engineError(ir.OpOverlay, first.Name, ra.Index, err)
			}
			if !hit {
				continue
			}
			g, err := o.engine.Overlay(geom.OverlayIntersection, ra.Geometry, rb.Geometry)
			if err != nil {
				return engineError(ir.OpOverlay, first.Name, ra.Index, err)
			}
			emit(g, mergeProperties(ra.Properties, rb.Properties, clash, "_1", "_2"))
		}
	}
	return nil
}

// differences subtracts from each record of from every record of other it
// intersects.
func (o *Ops) differences(ctx context.Context, from, other ir.Dataset, emit func(ir.Geometry, ir.Record)) error {
	for _, rec := range from.Records {
		if err := ctx.Err(); err != nil {
			return err
		}
		g := rec.Geometry
		for _, cut := range other.Records {
			hit, err := o.engine.Relate(geom.Intersects, g, cut.Geometry, 0)
			if err != nil {
				return engineError(ir.OpOverlay, from.Name, rec.Index, err)
			}
			if !hit {
				continue
			}
			g, err = o.engine.Overlay(geom.OverlayDifference, g, cut.Geometry)
			if err != nil {
				return engineError(ir.OpOverlay, from.Name, rec.Index, err)
			}
			if g.IsEmpty() {
				break
			}
		}
		emit(g.Clone(), rec)
	}
	return nil
}
