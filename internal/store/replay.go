package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/geosafe/internal/ir"
	"github.com/roach88/geosafe/internal/provenance"
)

// Comparison is the result of checking a new run against an archived one.
type Comparison struct {
	RunID        string
	StoredDigest string
	Digest       string

	// FirstDifference is the seq of the first event that differs, or 0
	// when the event sequences agree.
	FirstDifference int64
	Detail          string
}

// Match reports whether the two runs are reproducible copies.
func (c Comparison) Match() bool {
	return c.StoredDigest == c.Digest
}

// CompareRun checks log against the archived run runID.
//
// Digests ignore run IDs, timestamps and environment, so a faithful replay
// matches. On mismatch the events are walked in seq order to locate the
// first divergence.
func (s *Store) CompareRun(ctx context.Context, runID string, log *provenance.Log) (Comparison, error) {
	stored, err := s.ReadRun(ctx, runID)
	if err != nil {
		return Comparison{}, fmt.Errorf("compare run: %w", err)
	}
	storedDigest, err := stored.Digest()
	if err != nil {
		return Comparison{}, fmt.Errorf("compare run: %w", err)
	}
	digest, err := log.Digest()
	if err != nil {
		return Comparison{}, fmt.Errorf("compare run: %w", err)
	}

	cmp := Comparison{RunID: runID, StoredDigest: storedDigest, Digest: digest}
	if cmp.Match() {
		return cmp, nil
	}

	n := min(len(stored.Events), len(log.Events))
	for i := 0; i < n; i++ {
		a, err := eventKey(stored.Events[i])
		if err != nil {
			return Comparison{}, err
		}
		b, err := eventKey(log.Events[i])
		if err != nil {
			return Comparison{}, err
		}
		if a != b {
			cmp.FirstDifference = stored.Events[i].Seq
			cmp.Detail = fmt.Sprintf("event %d differs:\n  archived: %s\n  replayed: %s", stored.Events[i].Seq, a, b)
			return cmp, nil
		}
	}
	switch {
	case len(stored.Events) > n:
		cmp.FirstDifference = stored.Events[n].Seq
		cmp.Detail = fmt.Sprintf("replay stopped after %d of %d events", n, len(stored.Events))
	case len(log.Events) > n:
		cmp.FirstDifference = log.Events[n].Seq
		cmp.Detail = fmt.Sprintf("replay produced %d extra events", len(log.Events)-n)
	default:
		cmp.Detail = "run metadata differs (pipeline, status or schema version)"
	}
	return cmp, nil
}

// eventKey is the canonical form of an event without wall-clock fields.
func eventKey(e provenance.Event) (string, error) {
	if e.Task != nil {
		t := *e.Task
		t.StartedAt, t.FinishedAt = time.Time{}, time.Time{}
		e.Task = &t
	}
	e.Time = time.Time{}
	data, err := ir.MarshalCanonical(e)
	if err != nil {
		return "", fmt.Errorf("event key: %w", err)
	}
	return string(data), nil
}
