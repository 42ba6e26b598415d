package provenance

import (
	"errors"
	"sync"
	"time"

	"github.com/roach88/geosafe/internal/ir"
)

// ErrFrozen is returned when appending to a recorder after Freeze.
var ErrFrozen = errors.New("provenance: recorder is frozen")

// RunStatus is the overall outcome of a run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Recorder accumulates events for one run.
//
// A recorder belongs to exactly one run. Appends are serialized with a
// mutex so a recorder may be shared by helpers, but event order is the
// order of Record calls.
type Recorder struct {
	mu        sync.Mutex
	runID     string
	pipeline  string
	seq       Sequencer
	wall      WallClock
	env       Environment
	startedAt time.Time
	events    []Event
	frozen    *Log
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithSequencer replaces the logical clock.
func WithSequencer(s Sequencer) Option {
	return func(r *Recorder) { r.seq = s }
}

// WithWallClock replaces the wall clock used for timestamps.
func WithWallClock(w WallClock) Option {
	return func(r *Recorder) { r.wall = w }
}

// WithEnvironment attaches an environment record to the log.
func WithEnvironment(env Environment) Option {
	return func(r *Recorder) { r.env = env }
}

// NewRecorder creates a recorder for one run of the named pipeline.
// Ad-hoc operations outside a pipeline use an empty pipeline name.
func NewRecorder(runID, pipeline string, opts ...Option) *Recorder {
	r := &Recorder{
		runID:    runID,
		pipeline: pipeline,
		seq:      NewClock(),
		wall:     SystemClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.startedAt = r.wall.Now().UTC()
	return r
}

// RunID returns the run this recorder belongs to.
func (r *Recorder) RunID() string {
	return r.runID
}

// RecordDecision appends a decision event.
func (r *Recorder) RecordDecision(d ir.Decision) error {
	d = d.Clone()
	return r.append(Event{Kind: EventDecision, Decision: &d})
}

// RecordTask appends a task event.
func (r *Recorder) RecordTask(t TaskEvent) error {
	return r.append(Event{Kind: EventTask, Task: &t})
}

func (r *Recorder) append(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen != nil {
		return ErrFrozen
	}
	e.Seq = r.seq.Next()
	e.Time = r.wall.Now().UTC()
	r.events = append(r.events, e.clone())
	return nil
}

// Len returns the number of events recorded so far.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Decisions returns copies of the decisions recorded so far.
func (r *Recorder) Decisions() []ir.Decision {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ir.Decision
	for _, e := range r.events {
		if e.Decision != nil {
			out = append(out, e.Decision.Clone())
		}
	}
	return out
}

// Freeze ends the run and returns the immutable log. Later appends fail
// with ErrFrozen; calling Freeze again returns the same log.
func (r *Recorder) Freeze(status RunStatus) *Log {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen != nil {
		return r.frozen
	}
	events := make([]Event, len(r.events))
	for i, e := range r.events {
		events[i] = e.clone()
	}
	r.frozen = &Log{
		SchemaVersion: ir.SchemaVersion,
		RunID:         r.runID,
		Pipeline:      r.pipeline,
		Status:        status,
		StartedAt:     r.startedAt,
		FinishedAt:    r.wall.Now().UTC(),
		Environment:   r.env,
		Events:        events,
	}
	return r.frozen
}
