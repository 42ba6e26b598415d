package provenance

import (
	"context"

	"github.com/roach88/geosafe/internal/ir"
)

type recorderKey struct{}

type nodeKey struct{}

// WithRecorder returns a context carrying r as the active recorder.
func WithRecorder(ctx context.Context, r *Recorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, r)
}

// FromContext returns the active recorder, or nil.
func FromContext(ctx context.Context) *Recorder {
	r, _ := ctx.Value(recorderKey{}).(*Recorder)
	return r
}

// WithNode returns a context naming the pipeline task being executed.
func WithNode(ctx context.Context, node string) context.Context {
	return context.WithValue(ctx, nodeKey{}, node)
}

// NodeFromContext returns the current task name, or "".
func NodeFromContext(ctx context.Context) string {
	n, _ := ctx.Value(nodeKey{}).(string)
	return n
}

// Record stamps d with the current task name and appends it to the active
// recorder. Without an active recorder the decision is dropped. The
// stamped decision is returned either way.
func Record(ctx context.Context, d ir.Decision) (ir.Decision, error) {
	if d.Node == "" {
		d.Node = NodeFromContext(ctx)
	}
	r := FromContext(ctx)
	if r == nil {
		return d, nil
	}
	if err := r.RecordDecision(d); err != nil {
		return d, err
	}
	return d, nil
}
