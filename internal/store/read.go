package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/geosafe/internal/ir"
	"github.com/roach88/geosafe/internal/provenance"
)

// ErrRunNotFound is returned when a run ID is not in the archive.
var ErrRunNotFound = errors.New("run not found")

// RunInfo summarizes one archived run.
type RunInfo struct {
	RunID      string
	Pipeline   string
	Status     provenance.RunStatus
	StartedAt  time.Time
	FinishedAt time.Time
	Digest     string
	Events     int
}

// EventRow is one archived event with its indexed columns.
type EventRow struct {
	RunID      string
	Seq        int64
	Kind       provenance.EventKind
	Node       string
	Operation  string
	Outcome    string
	RecordedAt time.Time
	Event      provenance.Event
}

// ReadRun returns the archived log for runID.
// Returns ErrRunNotFound (wrapped) if the run does not exist.
func (s *Store) ReadRun(ctx context.Context, runID string) (*provenance.Log, error) {
	var document string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM runs WHERE run_id = ?`, runID).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read run %s: %w", runID, err)
	}
	log, err := provenance.Decode([]byte(document))
	if err != nil {
		return nil, fmt.Errorf("read run %s: %w", runID, err)
	}
	return log, nil
}

// RunDigest returns the stored reproducibility digest for runID.
func (s *Store) RunDigest(ctx context.Context, runID string) (string, error) {
	var digest string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM runs WHERE run_id = ?`, runID).Scan(&digest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("run digest %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("run digest %s: %w", runID, err)
	}
	return digest, nil
}

// ListRuns returns archived runs ordered by start time then run ID. An
// empty pipeline lists every run.
//
// Returns an empty slice (not nil) if no runs match.
func (s *Store) ListRuns(ctx context.Context, pipeline string) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, r.pipeline, r.status, r.started_at, r.finished_at, r.digest,
		       (SELECT COUNT(*) FROM events e WHERE e.run_id = r.run_id)
		FROM runs r
		WHERE ? = '' OR r.pipeline = ?
		ORDER BY r.started_at ASC, r.run_id COLLATE BINARY ASC
	`, pipeline, pipeline)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunInfo{}
	for rows.Next() {
		var (
			info            RunInfo
			status          string
			started, finish string
		)
		if err := rows.Scan(&info.RunID, &info.Pipeline, &status, &started, &finish, &info.Digest, &info.Events); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		info.Status = provenance.RunStatus(status)
		if info.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if info.FinishedAt, err = parseTime(finish); err != nil {
			return nil, err
		}
		runs = append(runs, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadEvents returns the events of one run in seq order.
//
// Returns an empty slice (not nil) if the run has no events.
func (s *Store) ReadEvents(ctx context.Context, runID string) ([]EventRow, error) {
	return s.queryEvents(ctx, `
		SELECT run_id, seq, kind, node, operation, outcome, recorded_at, payload
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
}

// DecisionsByOutcome returns decision events with the given outcome
// across all runs, ordered by run ID then seq.
func (s *Store) DecisionsByOutcome(ctx context.Context, outcome ir.Outcome) ([]EventRow, error) {
	return s.queryEvents(ctx, `
		SELECT run_id, seq, kind, node, operation, outcome, recorded_at, payload
		FROM events
		WHERE kind = ? AND outcome = ?
		ORDER BY run_id COLLATE BINARY ASC, seq ASC
	`, string(provenance.EventDecision), string(outcome))
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]EventRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []EventRow{}
	for rows.Next() {
		row, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (EventRow, error) {
	var (
		row      EventRow
		kind     string
		recorded string
		payload  string
	)
	if err := rows.Scan(&row.RunID, &row.Seq, &kind, &row.Node, &row.Operation, &row.Outcome, &recorded, &payload); err != nil {
		return EventRow{}, fmt.Errorf("scan event: %w", err)
	}
	row.Kind = provenance.EventKind(kind)
	t, err := parseTime(recorded)
	if err != nil {
		return EventRow{}, err
	}
	row.RecordedAt = t
	if err := unmarshalEvent(payload, &row.Event); err != nil {
		return EventRow{}, fmt.Errorf("event %s/%d: %w", row.RunID, row.Seq, err)
	}
	return row, nil
}
