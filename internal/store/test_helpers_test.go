package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/geosafe/internal/ir"
	"github.com/roach88/geosafe/internal/provenance"
	"github.com/roach88/geosafe/internal/testutil"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestLog builds a frozen log with one blocked decision, one
// auto-resolved decision and one task.
func createTestLog(t *testing.T, runID string, start time.Time) *provenance.Log {
	t.Helper()
	rec := provenance.NewRecorder(runID, "parcels",
		provenance.WithSequencer(testutil.NewDeterministicClock()),
		provenance.WithWallClock(testutil.NewStepClock(start, time.Second)),
	)
	mustRecord(t, rec.RecordDecision(ir.Decision{
		Operation: ir.OpBuffer,
		Node:      "buffer",
		Inputs:    []ir.CRSBinding{{Dataset: "stops", CRS: "EPSG:4326"}},
		Outcome:   ir.OutcomeBlocked,
		Reason:    "UNSAFE_UNITS: buffer measures distance",
	}))
	mustRecord(t, rec.RecordDecision(ir.Decision{
		Operation:     ir.OpJoin,
		Node:          "join",
		Inputs:        []ir.CRSBinding{{Dataset: "stops", CRS: "EPSG:4326"}, {Dataset: "districts", CRS: "EPSG:32610"}},
		TargetCRS:     "EPSG:32610",
		EffectiveCRS:  "EPSG:32610",
		Outcome:       ir.OutcomeAutoResolved,
		Reason:        "reprojected 1 input(s) to target EPSG:32610",
		Reprojections: []ir.Reprojection{{Dataset: "stops", From: "EPSG:4326", To: "EPSG:32610"}},
	}))
	mustRecord(t, rec.RecordTask(provenance.TaskEvent{
		Name:       "join",
		Operation:  "join",
		Status:     ir.TaskSucceeded,
		Inputs:     []string{"stops", "districts"},
		Outputs:    []string{"joined"},
		Params:     map[string]any{"predicate": "within", "distance": 2.5},
		StartedAt:  start.Add(3 * time.Second),
		FinishedAt: start.Add(4 * time.Second),
	}))
	return rec.Freeze(provenance.RunSucceeded)
}

func mustRecord(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("record: %v", err)
	}
}
