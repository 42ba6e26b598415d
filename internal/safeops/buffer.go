package safeops

import (
	"context"

	"github.com/roach88/geosafe/internal/guard"
	"github.com/roach88/geosafe/internal/ir"
	"go.opentelemetry.io/otel/attribute"
)

// BufferOptions parameterizes Buffer.
type BufferOptions struct {
	// Distance is in the units of the effective CRS.
	Distance float64

	// Segments per quarter circle. Zero uses the Ops default.
	Segments int

	TargetCRS       string
	AllowGeographic bool
}

// Buffer grows every geometry by Distance. Buffering is metric, so the
// guard refuses datasets in angular CRSs unless AllowGeographic is set.
func (o *Ops) Buffer(ctx context.Context, ds ir.Dataset, opts BufferOptions) (res Result, err error) {
	if err := checkFinite("buffer distance", opts.Distance); err != nil {
		return Result{}, err
	}
	segments := opts.Segments
	if segments <= 0 {
		segments = o.segments
	}

	ctx, span := startSpan(ctx, ir.OpBuffer,
		attribute.Float64("geosafe.buffer.distance", opts.Distance),
		attribute.Int("geosafe.buffer.segments", segments))
	defer func() { endSpan(span, err) }()

	inputs, err := o.prepare(ctx, guard.Request{
		Operation:       ir.OpBuffer,
		Datasets:        []ir.Dataset{ds},
		TargetCRS:       opts.TargetCRS,
		AllowGeographic: opts.AllowGeographic,
	}, &res)
	if err != nil {
		return res, err
	}
	in := inputs[0]

	out := in.WithRecords(make([]ir.Record, 0, len(in.Records)))
	for _, rec := range in.Records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		g, err := o.engine.Buffer(rec.Geometry, opts.Distance, segments)
		if err != nil {
			return res, engineError(ir.OpBuffer, in.Name, rec.Index, err)
		}
		buffered := rec.Clone()
		buffered.Geometry = g
		buffered.Validity = ir.ValidityUnchecked
		buffered.Note = ""
		out.Records = append(out.Records, buffered)
	}

	if err := o.finish(ctx, out, &res); err != nil {
		return res, err
	}
	return res, nil
}
