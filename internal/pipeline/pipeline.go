// Package pipeline declares and runs directed acyclic graphs of dataset
// tasks.
//
// A Pipeline is built explicitly with AddTask and compiled into a Graph
// that has been checked for cycles, unresolved inputs and duplicate names.
// A Graph runs its tasks one at a time in a deterministic topological
// order, records every task in a provenance log, and keeps going past
// failures by skipping only the failed task's dependents.
package pipeline

import (
	"context"
	"maps"

	"github.com/roach88/geosafe/internal/ir"
)

// TaskFunc performs a task's work. in holds the task's declared inputs by
// name. The returned map must contain exactly the declared outputs.
type TaskFunc func(ctx context.Context, in map[string]ir.Dataset) (map[string]ir.Dataset, error)

// Operation is what a task runs.
type Operation struct {
	// Kind names the operation in provenance ("buffer", "join", ...).
	Kind string

	// Params are recorded with the task event. They do not affect
	// execution; Run is expected to have captured them already.
	Params map[string]any

	Run TaskFunc
}

// Task is one declared pipeline step.
type Task struct {
	Name    string
	Op      Operation
	Inputs  []string
	Outputs []string

	order int
}

// TaskHandle refers to a declared task.
type TaskHandle struct {
	task *Task
}

// Name returns the task name.
func (h *TaskHandle) Name() string {
	return h.task.Name
}

// Output returns the task's first declared output, for chaining.
func (h *TaskHandle) Output() string {
	if len(h.task.Outputs) == 0 {
		return ""
	}
	return h.task.Outputs[0]
}

// Outputs returns the declared output names.
func (h *TaskHandle) Outputs() []string {
	return append([]string(nil), h.task.Outputs...)
}

// Pipeline is a named set of task declarations.
type Pipeline struct {
	name  string
	tasks []*Task
}

// New creates an empty pipeline.
func New(name string) *Pipeline {
	return &Pipeline{name: name}
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string {
	return p.name
}

// AddTask declares a task. Declaration order breaks ties between tasks
// that are ready at the same time. Problems with the declaration are
// reported by Compile.
func (p *Pipeline) AddTask(name string, op Operation, inputs []string, outputs ...string) *TaskHandle {
	t := &Task{
		Name:    name,
		Op:      Operation{Kind: op.Kind, Params: maps.Clone(op.Params), Run: op.Run},
		Inputs:  append([]string(nil), inputs...),
		Outputs: append([]string(nil), outputs...),
		order:   len(p.tasks),
	}
	p.tasks = append(p.tasks, t)
	return &TaskHandle{task: t}
}

// Len returns the number of declared tasks.
func (p *Pipeline) Len() int {
	return len(p.tasks)
}
