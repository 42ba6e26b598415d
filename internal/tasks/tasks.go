// Package tasks turns named operations with parameters into pipeline
// operations backed by the safe operations and dataset I/O.
package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"github.com/roach88/geosafe/internal/ir"
	"github.com/roach88/geosafe/internal/pipeline"
	"github.com/roach88/geosafe/internal/safeops"
	"github.com/roach88/geosafe/internal/validation"
)

// Spec declares one task: which operation to run on which datasets.
type Spec struct {
	Name    string
	Op      string
	Inputs  []string
	Outputs []string
	Params  map[string]any
}

// Env is what built operations run against.
type Env struct {
	Ops *safeops.Ops

	// BaseDir resolves relative load and save paths. Empty means the
	// working directory.
	BaseDir string

	Logger *slog.Logger

	mu    sync.Mutex
	saved []string
}

// Saved returns the paths written by save tasks so far, in write order.
func (e *Env) Saved() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.saved)
}

func (e *Env) recordSave(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.saved = append(e.saved, path)
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Env) resolve(path string) string {
	if e.BaseDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(e.BaseDir, path)
}

// builder checks a spec's shape and returns its task function.
type builder struct {
	inputs int
	build  func(env *Env, spec Spec) (pipeline.TaskFunc, error)
}

var builders = map[string]builder{
	"load":      {inputs: 0, build: buildLoad},
	"save":      {inputs: 1, build: buildSave},
	"validate":  {inputs: 1, build: buildValidate},
	"reproject": {inputs: 1, build: buildReproject},
	"buffer":    {inputs: 1, build: buildBuffer},
	"join":      {inputs: 2, build: buildJoin},
	"overlay":   {inputs: 2, build: buildOverlay},
	"clip":      {inputs: 2, build: buildClip},
}

// Names returns the supported operation names in sorted order.
func Names() []string {
	names := slices.Collect(maps.Keys(builders))
	sort.Strings(names)
	return names
}

// Build returns the pipeline operation for spec.
func Build(env *Env, spec Spec) (pipeline.Operation, error) {
	b, ok := builders[spec.Op]
	if !ok {
		return pipeline.Operation{}, fmt.Errorf("task %s: unknown operation %q (known: %v)", spec.Name, spec.Op, Names())
	}
	if len(spec.Inputs) != b.inputs {
		return pipeline.Operation{}, fmt.Errorf("task %s: %s takes %d input(s), got %d", spec.Name, spec.Op, b.inputs, len(spec.Inputs))
	}
	if len(spec.Outputs) != 1 {
		return pipeline.Operation{}, fmt.Errorf("task %s: %s produces exactly one output, got %d", spec.Name, spec.Op, len(spec.Outputs))
	}
	run, err := b.build(env, spec)
	if err != nil {
		return pipeline.Operation{}, fmt.Errorf("task %s: %w", spec.Name, err)
	}
	return pipeline.Operation{Kind: spec.Op, Params: maps.Clone(spec.Params), Run: run}, nil
}

// AddAll builds every spec and declares it on p in order.
func AddAll(p *pipeline.Pipeline, env *Env, specs []Spec) error {
	for _, s := range specs {
		op, err := Build(env, s)
		if err != nil {
			return err
		}
		p.AddTask(s.Name, op, s.Inputs, s.Outputs...)
	}
	return nil
}

// decodeParams fills dst from params, rejecting unknown keys, and
// validates it.
func decodeParams(params map[string]any, dst any) error {
	if params == nil {
		params = map[string]any{}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("params: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("params: %w", err)
	}
	if err := validation.Struct(dst); err != nil {
		return fmt.Errorf("params: %w", err)
	}
	return nil
}

// single wraps a one-output result.
func single(spec Spec, run func(ctx context.Context, in map[string]ir.Dataset) (ir.Dataset, error)) pipeline.TaskFunc {
	out := spec.Outputs[0]
	return func(ctx context.Context, in map[string]ir.Dataset) (map[string]ir.Dataset, error) {
		ds, err := run(ctx, in)
		if err != nil {
			return nil, err
		}
		return map[string]ir.Dataset{out: ds}, nil
	}
}
