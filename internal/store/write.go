package store

import (
	"context"
	"fmt"

	"github.com/roach88/geosafe/internal/provenance"
)

// WriteRun archives a frozen provenance log and its events in one
// transaction. Uses ON CONFLICT DO NOTHING for idempotency - writing a run
// that is already archived is silently ignored.
//
// The document column holds the canonical JSON of the whole log, so
// ReadRun returns exactly what was written.
func (s *Store) WriteRun(ctx context.Context, log *provenance.Log) error {
	if log == nil {
		return fmt.Errorf("write run: nil log")
	}
	if log.RunID == "" {
		return fmt.Errorf("write run: log has no run ID")
	}

	document, err := log.Canonical()
	if err != nil {
		return fmt.Errorf("write run %s: %w", log.RunID, err)
	}
	digest, err := log.Digest()
	if err != nil {
		return fmt.Errorf("write run %s: %w", log.RunID, err)
	}
	env, err := marshalCanonical("environment", log.Environment)
	if err != nil {
		return fmt.Errorf("write run %s: %w", log.RunID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run %s: begin: %w", log.RunID, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(run_id, pipeline, status, schema_version, started_at, finished_at, digest, environment, document)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`,
		log.RunID,
		log.Pipeline,
		string(log.Status),
		log.SchemaVersion,
		formatTime(log.StartedAt),
		formatTime(log.FinishedAt),
		digest,
		env,
		string(document),
	)
	if err != nil {
		return fmt.Errorf("write run %s: %w", log.RunID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Already archived.
		return tx.Commit()
	}

	for _, e := range log.Events {
		payload, err := marshalCanonical("event", e)
		if err != nil {
			return fmt.Errorf("write run %s: %w", log.RunID, err)
		}
		node, operation, outcome := eventColumns(e)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO events
			(run_id, seq, kind, node, operation, outcome, recorded_at, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`,
			log.RunID,
			e.Seq,
			string(e.Kind),
			node,
			operation,
			outcome,
			formatTime(e.Time),
			payload,
		)
		if err != nil {
			return fmt.Errorf("write run %s: event %d: %w", log.RunID, e.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write run %s: commit: %w", log.RunID, err)
	}
	return nil
}
