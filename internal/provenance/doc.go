// Package provenance records what a run decided and did.
//
// A Recorder accumulates events for one run: guard and validator decisions
// and task lifecycle records, each stamped with a logical sequence number.
// When the run ends the recorder is frozen into a Log, which is immutable,
// serializes to RFC 8785 canonical JSON and has a digest that ignores
// wall-clock fields and the run ID, so identical runs digest identically.
//
// The active recorder travels in the context. Components that produce
// decisions call Record(ctx, d) and never hold a recorder themselves.
package provenance
