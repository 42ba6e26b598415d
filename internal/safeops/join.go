package safeops

import (
	"context"
	"fmt"

	"github.com/roach88/geosafe/internal/geom"
	"github.com/roach88/geosafe/internal/guard"
	"github.com/roach88/geosafe/internal/ir"
	"go.opentelemetry.io/otel/attribute"
)

// JoinHow selects which left records a join keeps.
type JoinHow string

const (
	// JoinInner keeps only left records with at least one match.
	JoinInner JoinHow = "inner"
	// JoinLeft keeps every left record; unmatched ones carry only their
	// own attributes.
	JoinLeft JoinHow = "left"
)

// ParseJoinHow validates a join mode name. Empty means inner.
func ParseJoinHow(s string) (JoinHow, error) {
	switch h := JoinHow(s); h {
	case "":
		return JoinInner, nil
	case JoinInner, JoinLeft:
		return h, nil
	default:
		return "", fmt.Errorf("unknown join mode %q: want inner or left", s)
	}
}

// JoinOptions parameterizes SpatialJoin.
type JoinOptions struct {
	Predicate geom.Predicate
	How       JoinHow

	// Distance is the search radius for DWithin, in CRS units.
	Distance float64

	TargetCRS       string
	AllowGeographic bool
}

// SpatialJoin attaches to each left record the attributes of every right
// record satisfying the predicate. A left record matching n right records
// appears n times. The output keeps the left geometry; attribute names
// used on both sides are suffixed _left and _right.
func (o *Ops) SpatialJoin(ctx context.Context, left, right ir.Dataset, opts JoinOptions) (res Result, err error) {
	if opts.Predicate == "" {
		opts.Predicate = geom.Intersects
	}
	if _, err := geom.ParsePredicate(string(opts.Predicate)); err != nil {
		return Result{}, err
	}
	how, err := ParseJoinHow(string(opts.How))
	if err != nil {
		return Result{}, err
	}
	if opts.Predicate == geom.DWithin {
		if err := checkFinite("join distance", opts.Distance); err != nil {
			return Result{}, err
		}
		if opts.Distance < 0 {
			return Result{}, fmt.Errorf("join distance must not be negative, got %v", opts.Distance)
		}
	}

	ctx, span := startSpan(ctx, ir.OpJoin,
		attribute.String("geosafe.predicate", string(opts.Predicate)),
		attribute.String("geosafe.join.how", string(how)))
	defer func() { endSpan(span, err) }()

	inputs, err := o.prepare(ctx, guard.Request{
		Operation:       ir.OpJoin,
		Datasets:        []ir.Dataset{left, right},
		TargetCRS:       opts.TargetCRS,
		Metric:          opts.Predicate.IsMetric(),
		AllowGeographic: opts.AllowGeographic,
	}, &res)
	if err != nil {
		return res, err
	}
	l, r := inputs[0], inputs[1]
	clash := attributeClashes(l, r)

	out := l.WithRecords(nil)
	for _, lrec := range l.Records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		matched := false
		for _, rrec := range r.Records {
			ok, err := o.engine.Relate(opts.Predicate, lrec.Geometry, rrec.Geometry, opts.Distance)
			if err != nil {
				return res, engineError(ir.OpJoin, l.Name, lrec.Index, err)
			}
			if !ok {
				continue
			}
			matched = true
			out.Records = append(out.Records, ir.Record{
				Index:      len(out.Records),
				Geometry:   lrec.Geometry.Clone(),
				Properties: mergeProperties(lrec.Properties, rrec.Properties, clash, "_left", "_right"),
			})
		}
		if !matched && how == JoinLeft {
			out.Records = append(out.Records, ir.Record{
				Index:      len(out.Records),
				Geometry:   lrec.Geometry.Clone(),
				Properties: renameProperties(lrec.Properties, clash, "_left"),
			})
		}
	}

	o.logger.Debug("spatial join",
		"left", l.Name, "right", r.Name, "predicate", opts.Predicate,
		"how", how, "records", len(out.Records))

	if err := o.finish(ctx, out, &res); err != nil {
		return res, err
	}
	return res, nil
}
