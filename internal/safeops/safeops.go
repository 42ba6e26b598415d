// Package safeops runs geometry operations behind the CRS guard and the
// geometry validator.
//
// Every operation follows the same template: guard the inputs, validate
// them, delegate the computation to the geometry engine, validate the
// output, and return the result with every decision made along the way.
// A guard refusal returns before any geometric work is done.
package safeops

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/roach88/geosafe/internal/geom"
	"github.com/roach88/geosafe/internal/guard"
	"github.com/roach88/geosafe/internal/ir"
	"github.com/roach88/geosafe/internal/repair"
	"github.com/roach88/geosafe/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultSegments is the buffer quadrant segment count used when neither
// the call nor the Ops configuration sets one.
const DefaultSegments = 8

// Result is the output of one safe operation.
type Result struct {
	Dataset ir.Dataset

	// Decisions lists the guard decision followed by the validator
	// decisions for the inputs and the output, in the order they were made.
	Decisions []ir.Decision

	// Reports holds the validator report for each validation pass.
	Reports []repair.Report
}

// Excluded returns the number of records the validator dropped across all
// passes.
func (r Result) Excluded() int {
	n := 0
	for _, rep := range r.Reports {
		n += rep.Excluded
	}
	return n
}

// Ops runs safe operations against one geometry engine.
type Ops struct {
	guard    *guard.Guard
	repairer *repair.Repairer
	engine   geom.Engine
	segments int
	logger   *slog.Logger
}

// Option configures Ops.
type Option func(*Ops)

// WithSegments sets the default buffer segment count.
func WithSegments(n int) Option {
	return func(o *Ops) {
		if n > 0 {
			o.segments = n
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Ops) { o.logger = l }
}

// New creates Ops. A nil repairer validates with the engine and the
// default strategy.
func New(g *guard.Guard, r *repair.Repairer, engine geom.Engine, opts ...Option) *Ops {
	if r == nil {
		r = repair.New(engine)
	}
	o := &Ops{
		guard:    g,
		repairer: r,
		engine:   engine,
		segments: DefaultSegments,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Engine returns the geometry engine.
func (o *Ops) Engine() geom.Engine {
	return o.engine
}

// Guard returns the CRS guard.
func (o *Ops) Guard() *guard.Guard {
	return o.guard
}

// prepare runs the guard and validates every resolved input.
func (o *Ops) prepare(ctx context.Context, req guard.Request, res *Result) ([]ir.Dataset, error) {
	resolution, err := o.guard.Check(ctx, req)
	res.Decisions = append(res.Decisions, resolution.Decision)
	if err != nil {
		return nil, err
	}
	inputs := make([]ir.Dataset, len(resolution.Datasets))
	for i, ds := range resolution.Datasets {
		valid, err := o.validate(ctx, ds, res)
		if err != nil {
			return nil, err
		}
		inputs[i] = valid
	}
	return inputs, nil
}

// finish validates the engine output and stores it on res.
func (o *Ops) finish(ctx context.Context, out ir.Dataset, res *Result) error {
	valid, err := o.validate(ctx, out, res)
	if err != nil {
		return err
	}
	res.Dataset = valid
	return nil
}

func (o *Ops) validate(ctx context.Context, ds ir.Dataset, res *Result) (ir.Dataset, error) {
	out, rep, err := o.repairer.Validate(ctx, ds)
	res.Reports = append(res.Reports, rep)
	if rep.Decision.Operation != "" {
		res.Decisions = append(res.Decisions, rep.Decision)
	}
	if err != nil {
		return ir.Dataset{}, err
	}
	return out, nil
}

func startSpan(ctx context.Context, op ir.OperationKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return telemetry.Tracer().Start(ctx, "safeops."+string(op),
		trace.WithAttributes(append([]attribute.KeyValue{attribute.String("geosafe.operation", string(op))}, attrs...)...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func engineError(op ir.OperationKind, ds string, index int, err error) error {
	return &geom.EngineError{Operation: string(op), Dataset: ds, Index: index, Err: err}
}

func checkFinite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s must be a finite number, got %v", name, v)
	}
	return nil
}
