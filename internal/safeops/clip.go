package safeops

import (
	"context"
	"errors"

	"github.com/roach88/geosafe/internal/geom"
	"github.com/roach88/geosafe/internal/guard"
	"github.com/roach88/geosafe/internal/ir"
)

// ClipOptions parameterizes Clip.
type ClipOptions struct {
	TargetCRS string
}

// Clip keeps the parts of ds inside the union of the mask dataset's
// geometries. Records outside the mask are dropped; the others keep their
// attributes and index.
func (o *Ops) Clip(ctx context.Context, ds, mask ir.Dataset, opts ClipOptions) (res Result, err error) {
	ctx, span := startSpan(ctx, ir.OpClip)
	defer func() { endSpan(span, err) }()

	inputs, err := o.prepare(ctx, guard.Request{
		Operation: ir.OpClip,
		Datasets:  []ir.Dataset{ds, mask},
		TargetCRS: opts.TargetCRS,
	}, &res)
	if err != nil {
		return res, err
	}
	in, m := inputs[0], inputs[1]

	window, err := o.maskUnion(m)
	if err != nil {
		return res, err
	}

	out := in.WithRecords(nil)
	if !window.IsNull() {
		for _, rec := range in.Records {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			hit, err := o.engine.Relate(geom.Intersects, rec.Geometry, window, 0)
			if err != nil {
				return res, engineError(ir.OpClip, in.Name, rec.Index, err)
			}
			if !hit {
				continue
			}
			g, err := o.engine.Clip(rec.Geometry, window)
			if err != nil {
				return res, engineError(ir.OpClip, in.Name, rec.Index, err)
			}
			if g.IsNull() || g.IsEmpty() {
				continue
			}
			clipped := rec.Clone()
			clipped.Geometry = g
			clipped.Validity = ir.ValidityUnchecked
			clipped.Note = ""
			out.Records = append(out.Records, clipped)
		}
	}

	if err := o.finish(ctx, out, &res); err != nil {
		return res, err
	}
	return res, nil
}

// maskUnion folds the mask geometries into one. A single-record mask is
// used as is; an empty mask yields a null geometry.
func (o *Ops) maskUnion(mask ir.Dataset) (ir.Geometry, error) {
	var window ir.Geometry
	for _, rec := range mask.Records {
		if rec.Geometry.IsNull() || rec.Geometry.IsEmpty() {
			continue
		}
		if window.IsNull() {
			window = rec.Geometry
			continue
		}
		u, err := o.engine.Overlay(geom.OverlayUnion, window, rec.Geometry)
		if err != nil {
			if errors.Is(err, geom.ErrUnsupported) {
				return ir.Geometry{}, engineError(ir.OpClip, mask.Name, rec.Index, errors.Join(errors.New("mask has several geometries and the engine cannot union them"), err))
			}
			return ir.Geometry{}, engineError(ir.OpClip, mask.Name, rec.Index, err)
		}
		window = u
	}
	return window, nil
}
