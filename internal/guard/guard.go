// Package guard decides whether a geometry operation may run given the
// CRSs of its inputs.
//
// The guard refuses to combine datasets in different CRSs unless a target
// is named, reprojects explicitly when one is, and refuses metric
// operations in angular CRSs. Every call produces exactly one Decision,
// appended to the provenance recorder in the context, including calls that
// are refused.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/geosafe/internal/crs"
	"github.com/roach88/geosafe/internal/ir"
	"github.com/roach88/geosafe/internal/provenance"
	"github.com/roach88/geosafe/internal/telemetry"
)

// Request describes an operation about to run.
type Request struct {
	Operation ir.OperationKind
	Datasets  []ir.Dataset

	// TargetCRS, when set, is the CRS every input is brought into.
	TargetCRS string

	// Metric marks operations whose parameters are distances. Buffer,
	// distance and area are always metric.
	Metric bool

	// AllowGeographic opts in to metric operations in angular CRSs.
	AllowGeographic bool
}

// IsMetric reports whether the request measures distance.
func (r Request) IsMetric() bool {
	switch r.Operation {
	case ir.OpBuffer, ir.OpDistance, ir.OpArea:
		return true
	}
	return r.Metric
}

// Resolution is the outcome of an allowed check.
type Resolution struct {
	// Datasets are the inputs in request order, reprojected where needed.
	Datasets []ir.Dataset

	// CRS is the effective CRS every dataset now shares.
	CRS crs.Reference

	Decision ir.Decision
}

// Guard checks operation requests.
type Guard struct {
	registry  *crs.Registry
	projector crs.Projector
	logger    *slog.Logger
	metrics   *telemetry.Metrics
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// WithMetrics sets the metric instruments. Defaults to telemetry.Default().
func WithMetrics(m *telemetry.Metrics) Option {
	return func(g *Guard) { g.metrics = m }
}

// New creates a guard resolving CRSs through registry and reprojecting
// through projector. A nil registry uses crs.Default().
func New(registry *crs.Registry, projector crs.Projector, opts ...Option) *Guard {
	if registry == nil {
		registry = crs.Default()
	}
	g := &Guard{registry: registry, projector: projector, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = telemetry.Default()
	}
	return g
}

// Registry returns the registry the guard resolves through.
func (g *Guard) Registry() *crs.Registry {
	return g.registry
}

// Check validates req and returns the effective inputs.
//
// Refusals return a typed error (*CRSMismatchError, *UnsafeUnitsError,
// *MissingCRSError, *crs.ProjectionError) and never call the projection
// engine unless the refusal came from it. The decision is recorded in
// both cases and is also available on the returned Resolution.
func (g *Guard) Check(ctx context.Context, req Request) (Resolution, error) {
	d := ir.Decision{
		Operation: req.Operation,
		Inputs:    make([]ir.CRSBinding, len(req.Datasets)),
	}
	for i, ds := range req.Datasets {
		d.Inputs[i] = ir.CRSBinding{Dataset: ds.Name, CRS: ds.CRS}
	}

	res, err := g.check(ctx, req, &d)
	if err != nil {
		d.Outcome = ir.OutcomeBlocked
		d.Reason = err.Error()
		g.logger.Warn("guard blocked operation",
			"operation", req.Operation,
			"inputs", d.InputCRS(),
			"target", req.TargetCRS,
			"error", err)
	} else {
		g.logger.Debug("guard decision",
			"operation", req.Operation,
			"outcome", d.Outcome,
			"effective_crs", d.EffectiveCRS,
			"reprojections", len(d.Reprojections))
	}

	d, recErr := provenance.Record(ctx, d)
	g.metrics.RecordDecision(ctx, string(d.Operation), string(d.Outcome))
	res.Decision = d
	if err != nil {
		return res, err
	}
	if recErr != nil {
		return res, fmt.Errorf("record decision: %w", recErr)
	}
	return res, nil
}

func (g *Guard) check(ctx context.Context, req Request, d *ir.Decision) (Resolution, error) {
	if len(req.Datasets) == 0 {
		return Resolution{}, fmt.Errorf("%s: no input datasets", req.Operation)
	}
	for _, ds := range req.Datasets {
		if ds.CRS == "" {
			return Resolution{}, &MissingCRSError{Operation: req.Operation, Dataset: ds.Name}
		}
	}

	// Normalize every input so that case and formatting differences never
	// count as a mismatch.
	normalized := make([]string, len(req.Datasets))
	for i, ds := range req.Datasets {
		n, err := crs.Normalize(ds.CRS)
		if err != nil {
			return Resolution{}, fmt.Errorf("dataset %q: %w", ds.Name, err)
		}
		normalized[i] = n
	}

	effective := normalized[0]
	if req.TargetCRS != "" {
		t, err := crs.Normalize(req.TargetCRS)
		if err != nil {
			return Resolution{}, fmt.Errorf("target CRS: %w", err)
		}
		effective = t
		d.TargetCRS = t
	} else {
		for _, n := range normalized[1:] {
			if n != effective {
				return Resolution{}, &CRSMismatchError{Operation: req.Operation, Inputs: d.Inputs}
			}
		}
	}
	d.EffectiveCRS = effective

	ref, err := g.registry.Resolve(effective)
	if err != nil {
		return Resolution{}, err
	}

	var notes []string
	if req.IsMetric() {
		if ref.IsAngular() {
			if !req.AllowGeographic {
				return Resolution{}, &UnsafeUnitsError{Operation: req.Operation, CRS: ref}
			}
			notes = append(notes, fmt.Sprintf("override: metric %s allowed in angular CRS %s", req.Operation, effective))
		} else if ref.Unit == crs.UnitUnknown {
			g.logger.Warn("metric operation in CRS with unknown units",
				"operation", req.Operation, "crs", effective)
			notes = append(notes, "warning: CRS units unknown")
		}
	}

	out := make([]ir.Dataset, len(req.Datasets))
	for i, ds := range req.Datasets {
		if normalized[i] == effective {
			out[i] = ds
			out[i].CRS = effective
			continue
		}
		if g.projector == nil {
			return Resolution{}, &crs.ProjectionError{
				Dataset: ds.Name, From: normalized[i], To: effective, Index: -1,
				Err: fmt.Errorf("no projection engine configured"),
			}
		}
		moved, err := crs.ReprojectDataset(ctx, g.projector, ds, effective)
		if err != nil {
			return Resolution{}, err
		}
		out[i] = moved
		d.Reprojections = append(d.Reprojections, ir.Reprojection{Dataset: ds.Name, From: normalized[i], To: effective})
	}

	reason := fmt.Sprintf("all inputs in %s", effective)
	d.Outcome = ir.OutcomeAllowed
	if len(d.Reprojections) > 0 {
		d.Outcome = ir.OutcomeAutoResolved
		reason = fmt.Sprintf("reprojected %d input(s) to target %s", len(d.Reprojections), effective)
	}
	d.Reason = strings.Join(append([]string{reason}, notes...), "; ")

	return Resolution{Datasets: out, CRS: ref}, nil
}
