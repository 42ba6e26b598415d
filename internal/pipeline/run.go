package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/geosafe/internal/ir"
	"github.com/roach88/geosafe/internal/provenance"
	"github.com/roach88/geosafe/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ReasonCancelled is the skip reason for tasks not started because the run
// context was cancelled.
const ReasonCancelled = "cancelled"

// Result is the outcome of one pipeline run.
type Result struct {
	RunID string

	// Outputs holds the datasets produced by succeeded terminal tasks,
	// keyed by output name.
	Outputs map[string]ir.Dataset

	// Datasets holds every dataset available at the end of the run:
	// external inputs and the outputs of every succeeded task.
	Datasets map[string]ir.Dataset

	Status map[string]ir.TaskStatus

	// Errors holds the error of each failed task.
	Errors map[string]error

	Log *provenance.Log
}

// Failed returns the failed task names in execution order.
func (r *Result) Failed() []string {
	return r.withStatus(ir.TaskFailed)
}

// Skipped returns the skipped task names in execution order.
func (r *Result) Skipped() []string {
	return r.withStatus(ir.TaskSkipped)
}

// Err joins the task errors in execution order, or returns nil when every
// task succeeded.
func (r *Result) Err() error {
	var errs []error
	for _, name := range r.Failed() {
		errs = append(errs, r.Errors[name])
	}
	return errors.Join(errs...)
}

func (r *Result) withStatus(s ir.TaskStatus) []string {
	var out []string
	for _, t := range r.Log.Tasks() {
		if t.Status == s {
			out = append(out, t.Name)
		}
	}
	return out
}

type runConfig struct {
	runIDs  RunIDGenerator
	seq     provenance.Sequencer
	wall    provenance.WallClock
	env     *provenance.Environment
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// RunOption configures a run.
type RunOption func(*runConfig)

// WithRunIDGenerator sets the run ID source. Defaults to UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) RunOption {
	return func(c *runConfig) { c.runIDs = g }
}

// WithClocks sets the logical and wall clocks used for provenance.
func WithClocks(seq provenance.Sequencer, wall provenance.WallClock) RunOption {
	return func(c *runConfig) {
		c.seq = seq
		c.wall = wall
	}
}

// WithEnvironment attaches an environment record to the log.
func WithEnvironment(env provenance.Environment) RunOption {
	return func(c *runConfig) { c.env = &env }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) RunOption {
	return func(c *runConfig) { c.logger = l }
}

// WithMetrics sets the metric instruments. Defaults to telemetry.Default().
func WithMetrics(m *telemetry.Metrics) RunOption {
	return func(c *runConfig) { c.metrics = m }
}

// Run executes the graph with the given external inputs.
//
// Tasks run one at a time in Order. A task whose input-producing task
// failed or was skipped is skipped. Cancelling ctx skips every task not
// yet started. Task failures do not make Run return an error; they are
// reported on the Result and in the log. Run returns an error only when
// an external input is missing, in which case no task runs.
func (g *Graph) Run(ctx context.Context, inputs map[string]ir.Dataset, opts ...RunOption) (*Result, error) {
	cfg := runConfig{
		runIDs:  UUIDv7Generator{},
		wall:    provenance.SystemClock{},
		logger:  slog.Default(),
		metrics: telemetry.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	for _, name := range g.external {
		if _, ok := inputs[name]; !ok {
			return nil, &GraphError{Code: ErrCodeUnresolvedInput, Dataset: name,
				Message: "external input not supplied to Run"}
		}
	}

	runID := cfg.runIDs.Generate()
	recOpts := []provenance.Option{provenance.WithWallClock(cfg.wall)}
	if cfg.seq != nil {
		recOpts = append(recOpts, provenance.WithSequencer(cfg.seq))
	}
	if cfg.env != nil {
		recOpts = append(recOpts, provenance.WithEnvironment(*cfg.env))
	}
	rec := provenance.NewRecorder(runID, g.name, recOpts...)

	ctx, runSpan := telemetry.Tracer().Start(ctx, "pipeline.run/"+g.name,
		trace.WithAttributes(
			attribute.String("geosafe.pipeline", g.name),
			attribute.String("geosafe.run_id", runID),
		))
	defer runSpan.End()

	res := &Result{
		RunID:    runID,
		Outputs:  map[string]ir.Dataset{},
		Datasets: make(map[string]ir.Dataset, len(inputs)),
		Status:   make(map[string]ir.TaskStatus, len(g.tasks)),
		Errors:   map[string]error{},
	}
	for name, ds := range inputs {
		ds = ds.Clone()
		ds.Name = name
		res.Datasets[name] = ds
	}
	for _, t := range g.tasks {
		res.Status[t.Name] = ir.TaskPending
	}

	logger := cfg.logger.With("pipeline", g.name, "run_id", runID)
	logger.Info("pipeline run started", "tasks", len(g.order))

	recordErr := func(err error) {
		if err != nil {
			logger.Error("provenance append failed", "error", err)
		}
	}

	cancelled := false
	for _, name := range g.order {
		t := g.byName[name]

		if !cancelled && ctx.Err() != nil {
			cancelled = true
			logger.Warn("pipeline run cancelled", "next_task", name, "error", ctx.Err())
		}
		if reason := g.skipReason(t, res, cancelled); reason != "" {
			res.Status[name] = ir.TaskSkipped
			now := cfg.wall.Now().UTC()
			recordErr(rec.RecordTask(provenance.TaskEvent{
				Name: t.Name, Operation: t.Op.Kind, Status: ir.TaskSkipped,
				Inputs: t.Inputs, Outputs: t.Outputs, Params: provenance.CloneParams(t.Op.Params),
				Reason: reason, StartedAt: now, FinishedAt: now,
			}))
			cfg.metrics.RecordTask(ctx, t.Op.Kind, string(ir.TaskSkipped), 0)
			logger.Info("task skipped", "task", name, "reason", reason)
			continue
		}

		res.Status[name] = ir.TaskRunning
		ev, outputs, err := g.execute(provenance.WithRecorder(ctx, rec), t, res.Datasets, cfg)
		if err != nil {
			res.Status[name] = ir.TaskFailed
			res.Errors[name] = err
			logger.Error("task failed", "task", name, "operation", t.Op.Kind, "error", err)
		} else {
			res.Status[name] = ir.TaskSucceeded
			for out, ds := range outputs {
				res.Datasets[out] = ds
			}
			logger.Info("task succeeded", "task", name, "operation", t.Op.Kind,
				"duration", ev.Duration())
		}
		recordErr(rec.RecordTask(ev))
		cfg.metrics.RecordTask(ctx, t.Op.Kind, string(ev.Status), ev.Duration())
	}

	for _, name := range g.Terminal() {
		if res.Status[name] != ir.TaskSucceeded {
			continue
		}
		for _, out := range g.byName[name].Outputs {
			res.Outputs[out] = res.Datasets[out]
		}
	}

	status := provenance.RunSucceeded
	switch {
	case cancelled:
		status = provenance.RunCancelled
	case len(res.Errors) > 0:
		status = provenance.RunFailed
	}
	res.Log = rec.Freeze(status)

	runSpan.SetAttributes(attribute.String("geosafe.run.status", string(status)))
	if status != provenance.RunSucceeded {
		runSpan.SetStatus(codes.Error, string(status))
	}
	logger.Info("pipeline run finished",
		"status", status, "failed", len(res.Errors), "outputs", len(res.Outputs))
	return res, nil
}

// skipReason returns why t must not run, or "" when it may.
func (g *Graph) skipReason(t *Task, res *Result, cancelled bool) string {
	if cancelled {
		return ReasonCancelled
	}
	var blocked []string
	for _, d := range g.deps[t.Name] {
		switch res.Status[d] {
		case ir.TaskFailed:
			blocked = append(blocked, d+" failed")
		case ir.TaskSkipped:
			blocked = append(blocked, d+" skipped")
		}
	}
	if len(blocked) == 0 {
		return ""
	}
	return "upstream " + strings.Join(blocked, ", ")
}

// execute runs one task inside its own span and returns its event.
func (g *Graph) execute(ctx context.Context, t *Task, available map[string]ir.Dataset, cfg runConfig) (provenance.TaskEvent, map[string]ir.Dataset, error) {
	ev := provenance.TaskEvent{
		Name:      t.Name,
		Operation: t.Op.Kind,
		Inputs:    t.Inputs,
		Outputs:   t.Outputs,
		Params:    provenance.CloneParams(t.Op.Params),
	}

	ctx, span := telemetry.Tracer().Start(provenance.WithNode(ctx, t.Name), "pipeline.task/"+t.Name,
		trace.WithAttributes(
			attribute.String("geosafe.task", t.Name),
			attribute.String("geosafe.operation", t.Op.Kind),
		))
	defer span.End()

	in := make(map[string]ir.Dataset, len(t.Inputs))
	ev.InputFingerprints = make(map[string]string, len(t.Inputs))
	for _, name := range t.Inputs {
		ds := available[name].Clone()
		in[name] = ds
		fp, err := ir.DatasetFingerprint(ds)
		if err != nil {
			return g.fail(ev, span, cfg, fmt.Errorf("fingerprint input %s: %w", name, err))
		}
		ev.InputFingerprints[name] = fp
	}

	ev.StartedAt = cfg.wall.Now().UTC()
	out, err := runTask(ctx, t, in)
	ev.FinishedAt = cfg.wall.Now().UTC()
	if err != nil {
		return g.fail(ev, span, cfg, &TaskError{Task: t.Name, Operation: t.Op.Kind, Err: err})
	}

	if err := checkOutputs(t, out); err != nil {
		return g.fail(ev, span, cfg, &TaskError{Task: t.Name, Operation: t.Op.Kind, Err: err})
	}

	outputs := make(map[string]ir.Dataset, len(out))
	ev.OutputFingerprints = make(map[string]string, len(out))
	for _, name := range t.Outputs {
		ds := out[name]
		ds.Name = name
		fp, err := ir.DatasetFingerprint(ds)
		if err != nil {
			return g.fail(ev, span, cfg, fmt.Errorf("fingerprint output %s: %w", name, err))
		}
		ev.OutputFingerprints[name] = fp
		outputs[name] = ds
	}
	ev.Status = ir.TaskSucceeded
	span.SetAttributes(attribute.String("geosafe.task.status", string(ev.Status)))
	return ev, outputs, nil
}

func (g *Graph) fail(ev provenance.TaskEvent, span trace.Span, cfg runConfig, err error) (provenance.TaskEvent, map[string]ir.Dataset, error) {
	if ev.StartedAt.IsZero() {
		ev.StartedAt = cfg.wall.Now().UTC()
	}
	if ev.FinishedAt.IsZero() {
		ev.FinishedAt = cfg.wall.Now().UTC()
	}
	ev.Status = ir.TaskFailed
	ev.Reason = err.Error()
	ev.OutputFingerprints = nil
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("geosafe.task.status", string(ev.Status)))
	return ev, nil, err
}

// runTask calls the task function, turning a panic into an error so one
// bad task cannot take down the run.
func runTask(ctx context.Context, t *Task, in map[string]ir.Dataset) (out map[string]ir.Dataset, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Op.Run(ctx, in)
}

func checkOutputs(t *Task, out map[string]ir.Dataset) error {
	var missing []string
	for _, name := range t.Outputs {
		if _, ok := out[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing declared outputs: %s", strings.Join(missing, ", "))
	}
	extra := slices.Sorted(maps.Keys(out))
	extra = slices.DeleteFunc(extra, func(n string) bool { return slices.Contains(t.Outputs, n) })
	if len(extra) > 0 {
		return fmt.Errorf("undeclared outputs: %s", strings.Join(extra, ", "))
	}
	return nil
}
