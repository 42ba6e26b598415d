// Package repair validates dataset geometries and repairs the invalid ones.
//
// Repairs follow a configurable ordered strategy. Each step's result is
// re-checked and the first step that yields a valid geometry wins. Records
// no step can fix are excluded from the output. Every repaired or excluded
// record carries a note naming the problem, the step and the strategy, and
// every Validate call records one validator decision in provenance.
package repair

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/geosafe/internal/geom"
	"github.com/roach88/geosafe/internal/ir"
	"github.com/roach88/geosafe/internal/provenance"
	"github.com/roach88/geosafe/internal/telemetry"
)

const (
	problemNull       = "null geometry"
	problemEmpty      = "empty geometry"
	problemZeroArea   = "zero area"
	problemZeroLength = "zero length"
)

// Repairer validates and repairs datasets.
type Repairer struct {
	engine   geom.Validator
	strategy []Step
	strict   bool
	logger   *slog.Logger
	metrics  *telemetry.Metrics
}

// Option configures a Repairer.
type Option func(*Repairer)

// WithStrategy sets the repair order. An empty list keeps DefaultStrategy.
func WithStrategy(steps ...Step) Option {
	return func(r *Repairer) {
		if len(steps) > 0 {
			r.strategy = append([]Step(nil), steps...)
		}
	}
}

// WithStrict makes Validate fail with *InvalidGeometryError instead of
// repairing.
func WithStrict(strict bool) Option {
	return func(r *Repairer) { r.strict = strict }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Repairer) { r.logger = l }
}

// New creates a repairer backed by engine.
func New(engine geom.Validator, opts ...Option) *Repairer {
	r := &Repairer{
		engine:   engine,
		strategy: append([]Step(nil), DefaultStrategy...),
		logger:   slog.Default(),
		metrics:  telemetry.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Strategy returns the configured repair order.
func (r *Repairer) Strategy() []Step {
	return append([]Step(nil), r.strategy...)
}

// Problem returns a description of what is wrong with g, or "" when g is
// valid.
func (r *Repairer) Problem(g ir.Geometry) (string, error) {
	switch {
	case g.IsNull():
		return problemNull, nil
	case g.IsEmpty():
		return problemEmpty, nil
	}
	valid, reason, err := r.engine.Check(g)
	if err != nil {
		return "", err
	}
	if !valid {
		if reason == "" {
			reason = "invalid geometry"
		}
		return reason, nil
	}
	switch g.Type().Dimension() {
	case 2:
		if g.Area() == 0 {
			return problemZeroArea, nil
		}
	case 1:
		if g.Length() == 0 {
			return problemZeroLength, nil
		}
	}
	return "", nil
}

// Inspect reports on a dataset without changing it.
func (r *Repairer) Inspect(ctx context.Context, ds ir.Dataset) (Report, error) {
	rep := r.newReport(ds)
	for _, rec := range ds.Records {
		problem, err := r.Problem(rec.Geometry)
		if err != nil {
			return Report{}, &geom.EngineError{Operation: "validate", Dataset: ds.Name, Index: rec.Index, Err: err}
		}
		r.count(&rep, problem)
	}
	return rep, nil
}

// Validate returns a copy of ds with invalid records repaired or excluded.
// The input is never modified. An already-valid dataset comes back with the
// same geometries and no notes.
func (r *Repairer) Validate(ctx context.Context, ds ir.Dataset) (ir.Dataset, Report, error) {
	rep := r.newReport(ds)
	d := ir.Decision{
		Operation:    ir.OpValidate,
		Inputs:       []ir.CRSBinding{{Dataset: ds.Name, CRS: ds.CRS}},
		EffectiveCRS: ds.CRS,
	}

	out := ds.WithRecords(make([]ir.Record, 0, len(ds.Records)))
	problems := map[int]string{}
	var invalid []int

	for _, rec := range ds.Records {
		problem, err := r.Problem(rec.Geometry)
		if err != nil {
			return ir.Dataset{}, Report{}, &geom.EngineError{Operation: "validate", Dataset: ds.Name, Index: rec.Index, Err: err}
		}
		r.count(&rep, problem)

		fixed := rec.Clone()
		if problem == "" {
			fixed.Validity = ir.ValidityValid
			out.Records = append(out.Records, fixed)
			continue
		}
		if r.strict {
			problems[rec.Index] = problem
			invalid = append(invalid, rec.Index)
			continue
		}

		repaired, step, err := r.repair(rec.Geometry)
		if err != nil {
			return ir.Dataset{}, Report{}, &geom.EngineError{Operation: "repair", Dataset: ds.Name, Index: rec.Index, Err: err}
		}
		note := ir.RepairNote{Index: rec.Index, Problem: problem, Strategy: stepNames(r.strategy)}
		if step == "" {
			note.Action = ir.RepairExcluded
			rep.Excluded++
			r.logger.Warn("record excluded: no repair step succeeded",
				"dataset", ds.Name, "index", rec.Index, "problem", problem, "strategy", note.Strategy)
		} else {
			note.Action = ir.RepairRepaired
			note.Step = string(step)
			rep.Repaired++
			fixed.Geometry = repaired
			fixed.Validity = ir.ValidityRepaired
			fixed.Note = fmt.Sprintf("%s repaired by %s (strategy %s)", problem, step, strings.Join(note.Strategy, ","))
			out.Records = append(out.Records, fixed)
		}
		rep.Notes = append(rep.Notes, note)
	}

	if r.strict && len(invalid) > 0 {
		err := &InvalidGeometryError{Dataset: ds.Name, Problems: problems, Indexes: invalid}
		d.Outcome = ir.OutcomeBlocked
		d.Reason = err.Error()
		recorded, recErr := provenance.Record(ctx, d)
		rep.Decision = recorded
		if recErr != nil {
			return ir.Dataset{}, rep, fmt.Errorf("record decision: %w", recErr)
		}
		r.metrics.RecordDecision(ctx, string(d.Operation), string(d.Outcome))
		return ir.Dataset{}, rep, err
	}

	d.Repairs = rep.Notes
	d.Excluded = rep.Excluded
	if rep.Repaired+rep.Excluded > 0 {
		d.Outcome = ir.OutcomeAutoResolved
	} else {
		d.Outcome = ir.OutcomeAllowed
	}
	d.Reason = fmt.Sprintf("%d of %d valid, %d repaired, %d excluded (strategy %s)",
		rep.Valid, rep.Total, rep.Repaired, rep.Excluded, strings.Join(rep.Strategy, ","))

	if rep.Repaired+rep.Excluded > 0 {
		r.logger.Info("dataset repaired",
			"dataset", ds.Name, "repaired", rep.Repaired, "excluded", rep.Excluded, "total", rep.Total)
	}
	r.metrics.RecordDecision(ctx, string(d.Operation), string(d.Outcome))
	r.metrics.RecordRepairs(ctx, string(ir.RepairRepaired), rep.Repaired)
	r.metrics.RecordRepairs(ctx, string(ir.RepairExcluded), rep.Excluded)

	recorded, err := provenance.Record(ctx, d)
	rep.Decision = recorded
	if err != nil {
		return ir.Dataset{}, rep, fmt.Errorf("record decision: %w", err)
	}
	return out, rep, nil
}

// repair tries each step in order. It returns the first valid result and
// the step that produced it, or an empty step when none succeeded. Engine
// failures inside a step count as that step failing.
func (r *Repairer) repair(g ir.Geometry) (ir.Geometry, Step, error) {
	if g.IsNull() || g.IsEmpty() {
		return ir.Geometry{}, "", nil
	}
	for _, step := range r.strategy {
		var (
			candidate ir.Geometry
			err       error
		)
		switch step {
		case StepBufferZero:
			candidate, err = r.engine.BufferZero(g)
		case StepOrientRings:
			candidate = OrientRings(g)
		case StepMakeValid:
			candidate, err = r.engine.MakeValid(g)
		}
		if err != nil {
			r.logger.Debug("repair step failed", "step", step, "error", err)
			continue
		}
		problem, err := r.Problem(candidate)
		if err != nil {
			return ir.Geometry{}, "", err
		}
		if problem == "" {
			return candidate, step, nil
		}
	}
	return ir.Geometry{}, "", nil
}

func (r *Repairer) newReport(ds ir.Dataset) Report {
	return Report{
		Dataset:  ds.Name,
		Total:    len(ds.Records),
		Issues:   map[string]int{},
		Strategy: stepNames(r.strategy),
	}
}

func (r *Repairer) count(rep *Report, problem string) {
	if problem == "" {
		rep.Valid++
		return
	}
	rep.Invalid++
	rep.Issues[problem]++
	switch problem {
	case problemNull:
		rep.Null++
	case problemEmpty:
		rep.Empty++
	}
}
