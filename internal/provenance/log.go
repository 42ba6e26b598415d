package provenance

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/geosafe/internal/ir"
	"gopkg.in/yaml.v3"
)

// Log is the frozen provenance record of one run.
type Log struct {
	SchemaVersion string      `json:"schema_version"`
	RunID         string      `json:"run_id"`
	Pipeline      string      `json:"pipeline,omitempty"`
	Status        RunStatus   `json:"status"`
	StartedAt     time.Time   `json:"started_at"`
	FinishedAt    time.Time   `json:"finished_at"`
	Environment   Environment `json:"environment"`
	Events        []Event     `json:"events"`
}

// Canonical returns the RFC 8785 canonical JSON form of the whole log.
func (l *Log) Canonical() ([]byte, error) {
	return ir.MarshalCanonical(l)
}

// digestEvent is an event without wall-clock fields.
type digestEvent struct {
	Seq      int64        `json:"seq"`
	Kind     EventKind    `json:"kind"`
	Decision *ir.Decision `json:"decision,omitempty"`
	Task     *digestTask  `json:"task,omitempty"`
}

type digestTask struct {
	Name               string            `json:"name"`
	Operation          string            `json:"operation"`
	Status             ir.TaskStatus     `json:"status"`
	Inputs             []string          `json:"inputs"`
	Outputs            []string          `json:"outputs"`
	Params             map[string]any    `json:"params,omitempty"`
	Reason             string            `json:"reason,omitempty"`
	InputFingerprints  map[string]string `json:"input_fingerprints,omitempty"`
	OutputFingerprints map[string]string `json:"output_fingerprints,omitempty"`
}

// Digest returns a SHA-256 hash of the log's reproducible content.
//
// The run ID, every timestamp and the environment are excluded, so two
// runs of the same pipeline on the same inputs digest identically.
func (l *Log) Digest() (string, error) {
	events := make([]digestEvent, len(l.Events))
	for i, e := range l.Events {
		de := digestEvent{Seq: e.Seq, Kind: e.Kind, Decision: e.Decision}
		if e.Task != nil {
			de.Task = &digestTask{
				Name:               e.Task.Name,
				Operation:          e.Task.Operation,
				Status:             e.Task.Status,
				Inputs:             e.Task.Inputs,
				Outputs:            e.Task.Outputs,
				Params:             e.Task.Params,
				Reason:             e.Task.Reason,
				InputFingerprints:  e.Task.InputFingerprints,
				OutputFingerprints: e.Task.OutputFingerprints,
			}
		}
		events[i] = de
	}
	canonical, err := ir.MarshalCanonical(struct {
		SchemaVersion string        `json:"schema_version"`
		Pipeline      string        `json:"pipeline"`
		Status        RunStatus     `json:"status"`
		Events        []digestEvent `json:"events"`
	}{l.SchemaVersion, l.Pipeline, l.Status, events})
	if err != nil {
		return "", fmt.Errorf("provenance digest: %w", err)
	}
	return ir.HashCanonical(ir.DomainProvenance, canonical), nil
}

// Decisions returns the decisions in sequence order.
func (l *Log) Decisions() []ir.Decision {
	var out []ir.Decision
	for _, e := range l.Events {
		if e.Decision != nil {
			out = append(out, e.Decision.Clone())
		}
	}
	return out
}

// Tasks returns the task events in sequence order.
func (l *Log) Tasks() []TaskEvent {
	var out []TaskEvent
	for _, e := range l.Events {
		if e.Task != nil {
			out = append(out, e.Task.Clone())
		}
	}
	return out
}

// Task returns the event for the named task.
func (l *Log) Task(name string) (TaskEvent, bool) {
	for _, e := range l.Events {
		if e.Task != nil && e.Task.Name == name {
			return e.Task.Clone(), true
		}
	}
	return TaskEvent{}, false
}

// YAML renders the log as YAML for human review. Keys match the JSON form.
func (l *Log) YAML() ([]byte, error) {
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("provenance yaml: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("provenance yaml: %w", err)
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("provenance yaml: %w", err)
	}
	return out, nil
}
