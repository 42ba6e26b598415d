package provenance

import (
	"maps"
	"slices"
	"time"

	"github.com/roach88/geosafe/internal/ir"
)

// EventKind distinguishes provenance events.
type EventKind string

const (
	EventDecision EventKind = "decision"
	EventTask     EventKind = "task"
)

// TaskEvent records the outcome of one pipeline task.
type TaskEvent struct {
	Name      string         `json:"name"`
	Operation string         `json:"operation"`
	Status    ir.TaskStatus  `json:"status"`
	Inputs    []string       `json:"inputs"`
	Outputs   []string       `json:"outputs"`
	Params    map[string]any `json:"params,omitempty"`
	Reason    string         `json:"reason,omitempty"`

	// Fingerprints maps dataset names to ir.DatasetFingerprint values for
	// the task's inputs and outputs.
	InputFingerprints  map[string]string `json:"input_fingerprints,omitempty"`
	OutputFingerprints map[string]string `json:"output_fingerprints,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns the wall-clock time the task took.
func (t TaskEvent) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.FinishedAt.IsZero() {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}

// Clone returns a copy of t that shares no slices or maps with it.
func (t TaskEvent) Clone() TaskEvent {
	out := t
	out.Inputs = slices.Clone(t.Inputs)
	out.Outputs = slices.Clone(t.Outputs)
	out.Params = CloneParams(t.Params)
	out.InputFingerprints = maps.Clone(t.InputFingerprints)
	out.OutputFingerprints = maps.Clone(t.OutputFingerprints)
	return out
}

// CloneParams deep-copies a task parameter map, including nested maps and
// slices decoded from manifests.
func CloneParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return CloneParams(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(v)
	case []float64:
		return slices.Clone(v)
	case []int:
		return slices.Clone(v)
	default:
		return v
	}
}

// Event is one entry in a provenance log.
type Event struct {
	Seq      int64        `json:"seq"`
	Kind     EventKind    `json:"kind"`
	Time     time.Time    `json:"time"`
	Decision *ir.Decision `json:"decision,omitempty"`
	Task     *TaskEvent   `json:"task,omitempty"`
}

func (e Event) clone() Event {
	out := e
	if e.Decision != nil {
		d := e.Decision.Clone()
		out.Decision = &d
	}
	if e.Task != nil {
		t := e.Task.Clone()
		out.Task = &t
	}
	return out
}
